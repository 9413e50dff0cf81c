package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/daemonp/domologica2mqtt/internal/types"
)

// turboScheduler runs the confirmation polls that follow a command. Each
// element has at most one chain; starting a new one cancels the old.
type turboScheduler struct {
	delays  []time.Duration
	trigger func()

	mu     sync.Mutex
	chains map[types.ElementID]*turboChain
}

type turboChain struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newTurboScheduler(delays []time.Duration, trigger func()) *turboScheduler {
	return &turboScheduler{
		delays:  delays,
		trigger: trigger,
		chains:  make(map[types.ElementID]*turboChain),
	}
}

// Start schedules the delayed refreshes for id, measured from now.
func (s *turboScheduler) Start(parent context.Context, id types.ElementID) {
	if len(s.delays) == 0 || parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	chain := &turboChain{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if prev, ok := s.chains[id]; ok {
		prev.cancel()
	}
	s.chains[id] = chain
	s.mu.Unlock()

	go s.run(ctx, id, chain, time.Now())
}

func (s *turboScheduler) run(ctx context.Context, id types.ElementID, chain *turboChain, start time.Time) {
	defer s.finish(id, chain)

	for _, delay := range s.delays {
		timer := time.NewTimer(time.Until(start.Add(delay)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.trigger()
	}
}

func (s *turboScheduler) finish(id types.ElementID, chain *turboChain) {
	chain.cancel()
	close(chain.done)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chains[id] == chain {
		delete(s.chains, id)
	}
}

// Pending reports whether id has a chain still waiting to fire.
func (s *turboScheduler) Pending(id types.ElementID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chains[id]
	return ok
}

func (s *turboScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chains)
}

func (s *turboScheduler) StopAll() {
	s.mu.Lock()
	chains := make([]*turboChain, 0, len(s.chains))
	for _, c := range s.chains {
		chains = append(chains, c)
	}
	s.mu.Unlock()

	for _, c := range chains {
		c.cancel()
		<-c.done
	}
}
