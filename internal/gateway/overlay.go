package gateway

import (
	"time"

	"github.com/daemonp/domologica2mqtt/internal/types"
)

// overlay is a short-lived optimistic delta for one element. While it is
// active it wins over polled data for the keys it touches.
type overlay struct {
	updates types.ElementSnapshot
	remove  []types.StatusKey
	expires time.Time
	timer   *time.Timer
}

func (o *overlay) apply(e types.ElementSnapshot) types.ElementSnapshot {
	out := e.Clone()
	for _, k := range o.remove {
		delete(out, k)
	}
	for k, v := range o.updates {
		out[k] = v
	}
	return out
}

// ApplyOptimistic republishes the snapshot with updates merged into the
// element after removeKeys are dropped. A second call for the same element
// replaces the first overlay and restarts its TTL.
func (g *Gateway) ApplyOptimistic(id types.ElementID, updates map[types.StatusKey]types.StatusValue, removeKeys []types.StatusKey) {
	ov := &overlay{
		updates: make(types.ElementSnapshot, len(updates)),
		remove:  append([]types.StatusKey(nil), removeKeys...),
		expires: time.Now().Add(g.opts.OptimisticTTL),
	}
	for k, v := range updates {
		ov.updates[k] = v
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.overlays[id]; ok {
		prev.timer.Stop()
	}
	ov.timer = time.AfterFunc(g.opts.OptimisticTTL, func() { g.expireOverlay(id, ov) })
	g.overlays[id] = ov

	g.log.Debug("Optimistic update for %s: set %v, remove %v", id, ov.updates.Keys(), ov.remove)
	g.publishLocked()
}

func (g *Gateway) expireOverlay(id types.ElementID, ov *overlay) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.overlays[id] != ov {
		return
	}
	delete(g.overlays, id)
	g.publishLocked()
}

// Overlays returns the number of active overlays.
func (g *Gateway) Overlays() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.overlays)
}

func (g *Gateway) composeLocked(now time.Time) types.WorldSnapshot {
	if len(g.overlays) == 0 {
		return g.base
	}

	out := g.base.Clone()
	for id, ov := range g.overlays {
		if !now.Before(ov.expires) {
			continue
		}
		out[id] = ov.apply(out[id])
	}
	return out
}
