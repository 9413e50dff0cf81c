package gateway

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/daemonp/domologica2mqtt/internal/domologica"
	"github.com/daemonp/domologica2mqtt/internal/types"
)

// bootstrapMetadata fetches descriptors for elements whose kind the status
// keys leave ambiguous. Every element gets at most one attempt per process;
// individual failures are logged and do not affect the rest of the batch.
func (g *Gateway) bootstrapMetadata(ctx context.Context, world types.WorldSnapshot) {
	g.mu.Lock()
	var candidates []types.ElementID
	for _, id := range world.IDs() {
		if g.attempted[id] {
			continue
		}
		if _, cached := g.metadata[id]; cached {
			continue
		}
		if !domologica.NeedsMetadata(world[id]) {
			continue
		}
		g.attempted[id] = true
		candidates = append(candidates, id)
	}
	g.mu.Unlock()

	if len(candidates) == 0 {
		return
	}
	g.log.Info("Fetching metadata for %d elements", len(candidates))

	var eg errgroup.Group
	eg.SetLimit(g.opts.MetadataConcurrency)
	for _, id := range candidates {
		id := id
		eg.Go(func() error {
			meta, err := g.fetchMetadata(ctx, id)
			g.metrics.ObserveMetadataFetch(err)
			if err != nil {
				g.log.Warn("Metadata for element %s unavailable: %v", id, err)
				return nil
			}

			g.mu.Lock()
			g.metadata[id] = meta
			g.mu.Unlock()
			g.log.Debug("Element %s declares class %q", id, meta.ClassID)
			return nil
		})
	}
	eg.Wait()
}

func (g *Gateway) fetchMetadata(ctx context.Context, id types.ElementID) (types.ElementMetadata, error) {
	raw, err := g.client.FetchElementMetadata(ctx, id)
	if err != nil {
		return types.ElementMetadata{}, err
	}
	return domologica.ParseMetadata(id, raw)
}

// classifyLocked resolves kinds for elements not classified yet. A resolved
// kind is never recomputed; unknown elements are retried on later polls.
func (g *Gateway) classifyLocked(world types.WorldSnapshot) {
	for _, id := range world.IDs() {
		if _, done := g.kinds[id]; done {
			continue
		}

		var meta *types.ElementMetadata
		if m, ok := g.metadata[id]; ok {
			meta = &m
		}
		kind := domologica.Classify(meta, world[id])
		if kind == types.KindUnknown {
			continue
		}
		g.kinds[id] = kind
		g.log.Info("Element %s classified as %s", id, kind)
	}
}

func (g *Gateway) Kind(id types.ElementID) types.Kind {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.kinds[id]
}

func (g *Gateway) Metadata(id types.ElementID) (types.ElementMetadata, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.metadata[id]
	return m, ok
}

// MetadataCache returns a copy of every descriptor fetched so far.
func (g *Gateway) MetadataCache() map[types.ElementID]types.ElementMetadata {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[types.ElementID]types.ElementMetadata, len(g.metadata))
	for id, m := range g.metadata {
		out[id] = m
	}
	return out
}

// SeedMetadata preloads descriptors, e.g. from the on-disk cache. Seeded
// elements are never fetched again.
func (g *Gateway) SeedMetadata(metadata map[types.ElementID]types.ElementMetadata) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, m := range metadata {
		g.metadata[id] = m
		g.attempted[id] = true
	}
}
