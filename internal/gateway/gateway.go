package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/log"
	"github.com/daemonp/domologica2mqtt/internal/types"
)

// Client is the part of domologica.Client the gateway needs.
type Client interface {
	FetchStatuses(ctx context.Context) ([]byte, error)
	FetchElementMetadata(ctx context.Context, id types.ElementID) ([]byte, error)
	SendCommand(ctx context.Context, cmd domologica.Command) error
}

type Metrics interface {
	ObservePoll(elapsed time.Duration, err error)
	ObserveCommand(action string, err error)
	ObserveMetadataFetch(err error)
	SetElements(n int)
}

type Options struct {
	ScanInterval        time.Duration
	RefreshCooldown     time.Duration
	OptimisticTTL       time.Duration
	TurboDelays         []time.Duration
	MetadataConcurrency int
	Metrics             Metrics
}

func DefaultOptions() Options {
	return Options{
		ScanInterval:        20 * time.Second,
		RefreshCooldown:     500 * time.Millisecond,
		OptimisticTTL:       2500 * time.Millisecond,
		TurboDelays:         []time.Duration{time.Second, 3 * time.Second},
		MetadataConcurrency: domologica.DefaultMetadataConcurrency,
	}
}

type EventType int

const (
	EventUpdated EventType = iota
	EventUpdateFailed
)

func (t EventType) String() string {
	switch t {
	case EventUpdated:
		return "updated"
	case EventUpdateFailed:
		return "update_failed"
	default:
		return fmt.Sprintf("Unknown EventType(%d)", t)
	}
}

// Event is delivered to subscribers in publish order. For
// EventUpdateFailed, Snapshot is the previous, still valid state.
type Event struct {
	Type     EventType
	Snapshot types.WorldSnapshot
	Err      error
}

// Gateway owns the state of one gateway connection: the published
// snapshot, the metadata and kind caches, overlays and refresh scheduling.
// Independent connections never share any of it.
type Gateway struct {
	client  Client
	opts    Options
	log     *log.Logger
	metrics Metrics

	published atomic.Pointer[types.WorldSnapshot]

	mu          sync.Mutex
	base        types.WorldSnapshot
	overlays    map[types.ElementID]*overlay
	metadata    map[types.ElementID]types.ElementMetadata
	attempted   map[types.ElementID]bool
	kinds       map[types.ElementID]types.Kind
	subscribers map[int]func(Event)
	nextSub     int
	queue       []Event
	ready       bool
	started     bool
	lastErr     error
	lastSuccess time.Time

	// refreshMu serializes polls; a refresh requested while one is in
	// flight waits for it.
	refreshMu sync.Mutex
	debounce  *debouncer
	turbo     *turboScheduler

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(client Client, opts Options, logger *log.Logger) *Gateway {
	defaults := DefaultOptions()
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = defaults.ScanInterval
	}
	if opts.RefreshCooldown <= 0 {
		opts.RefreshCooldown = defaults.RefreshCooldown
	}
	if opts.OptimisticTTL <= 0 {
		opts.OptimisticTTL = defaults.OptimisticTTL
	}
	if opts.TurboDelays == nil {
		opts.TurboDelays = defaults.TurboDelays
	}
	if opts.MetadataConcurrency <= 0 {
		opts.MetadataConcurrency = defaults.MetadataConcurrency
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		client:      client,
		opts:        opts,
		log:         logger.Source("gateway"),
		metrics:     metrics,
		base:        types.WorldSnapshot{},
		overlays:    make(map[types.ElementID]*overlay),
		metadata:    make(map[types.ElementID]types.ElementMetadata),
		attempted:   make(map[types.ElementID]bool),
		kinds:       make(map[types.ElementID]types.Kind),
		subscribers: make(map[int]func(Event)),
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
	empty := types.WorldSnapshot{}
	g.published.Store(&empty)

	g.debounce = newDebouncer(opts.RefreshCooldown, g.backgroundRefresh)
	g.turbo = newTurboScheduler(opts.TurboDelays, g.RequestRefresh)

	g.wg.Add(1)
	go g.dispatch()
	return g
}

// Start performs the first refresh synchronously and, once it succeeds,
// starts the polling loop. A failed first refresh leaves the gateway not
// ready; Start may be called again.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.Refresh(ctx); err != nil {
		return fmt.Errorf("first refresh: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return nil
	}
	g.started = true

	g.wg.Add(1)
	go g.loop()

	g.log.Info("Polling every %s", g.opts.ScanInterval)
	return nil
}

func (g *Gateway) Stop() {
	g.cancel()
	g.debounce.Stop()
	g.turbo.StopAll()

	g.mu.Lock()
	for _, ov := range g.overlays {
		ov.timer.Stop()
	}
	g.mu.Unlock()

	g.wg.Wait()
	g.log.Info("Stopped")
}

func (g *Gateway) loop() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.Refresh(g.ctx)
		}
	}
}

// Refresh polls the gateway once. Failures keep the previous snapshot
// visible and are reported to subscribers as EventUpdateFailed.
func (g *Gateway) Refresh(ctx context.Context) error {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	start := time.Now()
	world, err := g.poll(ctx)
	g.metrics.ObservePoll(time.Since(start), err)
	if err != nil {
		g.fail(err)
		return err
	}

	g.bootstrapMetadata(ctx, world)

	g.mu.Lock()
	g.base = world
	g.classifyLocked(world)
	g.ready = true
	g.lastErr = nil
	g.lastSuccess = time.Now()
	g.publishLocked()
	g.mu.Unlock()

	g.metrics.SetElements(len(world))
	g.log.Debug("Polled %d elements in %s", len(world), time.Since(start).Round(time.Millisecond))
	return nil
}

// RequestRefresh asks for a debounced refresh. Bursts inside the cooldown
// window collapse into one trailing poll.
func (g *Gateway) RequestRefresh() {
	if g.ctx.Err() != nil {
		return
	}
	g.debounce.Call()
}

func (g *Gateway) backgroundRefresh() {
	if g.ctx.Err() != nil {
		return
	}
	g.Refresh(g.ctx)
}

func (g *Gateway) poll(ctx context.Context) (types.WorldSnapshot, error) {
	raw, err := g.client.FetchStatuses(ctx)
	if err != nil {
		return nil, err
	}
	return domologica.ParseStatuses(raw)
}

func (g *Gateway) fail(err error) {
	var merr *domologica.MalformedDocumentError
	if errors.As(err, &merr) {
		g.log.Warn("Gateway returned an unparseable status document: %v", err)
	} else {
		g.log.Warn("Update failed: %v", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastErr = err
	g.emitLocked(Event{Type: EventUpdateFailed, Snapshot: g.Data(), Err: err})
}

// Data returns the latest published snapshot. It never blocks and never
// returns a partially updated state.
func (g *Gateway) Data() types.WorldSnapshot {
	return *g.published.Load()
}

func (g *Gateway) Element(id types.ElementID) (types.ElementSnapshot, bool) {
	e, ok := g.Data()[id]
	return e, ok
}

func (g *Gateway) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Health returns the time of the last successful poll and the error of the
// last poll, nil when it succeeded.
func (g *Gateway) Health() (time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSuccess, g.lastErr
}

// Subscribe registers fn for every event. Callbacks run on a single
// dispatch goroutine and may call back into the gateway.
func (g *Gateway) Subscribe(fn func(Event)) (unsubscribe func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextSub
	g.nextSub++
	g.subscribers[id] = fn

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.subscribers, id)
	}
}

// publishLocked replaces the published snapshot with the base snapshot
// plus active overlays.
func (g *Gateway) publishLocked() {
	snap := g.composeLocked(time.Now())
	g.published.Store(&snap)
	g.emitLocked(Event{Type: EventUpdated, Snapshot: snap})
}

func (g *Gateway) emitLocked(ev Event) {
	g.queue = append(g.queue, ev)
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *Gateway) dispatch() {
	defer g.wg.Done()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-g.wake:
		}

		for {
			g.mu.Lock()
			if len(g.queue) == 0 {
				g.mu.Unlock()
				break
			}
			ev := g.queue[0]
			g.queue = g.queue[1:]
			subs := make([]func(Event), 0, len(g.subscribers))
			for _, id := range sortedKeys(g.subscribers) {
				subs = append(subs, g.subscribers[id])
			}
			g.mu.Unlock()

			for _, fn := range subs {
				fn(ev)
			}
		}
	}
}

func sortedKeys(m map[int]func(Event)) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

type noopMetrics struct{}

func (noopMetrics) ObservePoll(time.Duration, error) {}
func (noopMetrics) ObserveCommand(string, error)    {}
func (noopMetrics) ObserveMetadataFetch(error)      {}
func (noopMetrics) SetElements(int)                 {}
