package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Resolver serves validated graphs by id, caching the first successful fetch.
// It is safe for concurrent use; fetches run off the tick loop.
type Resolver struct {
	source    Source
	defaultID string
	log       zerolog.Logger

	mu    sync.RWMutex
	cache map[string][]Node

	group singleflight.Group
}

// NewResolver creates a resolver over source with defaultID as the fallback graph.
func NewResolver(source Source, defaultID string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		source:    source,
		defaultID: defaultID,
		log:       logger.With().Str("component", "graph").Logger(),
		cache:     make(map[string][]Node),
	}
}

func (r *Resolver) DefaultID() string { return r.defaultID }

// Resolve returns a copy of the graph's nodes. A failed fetch falls back to
// the default graph, then to an empty list. Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, graphID string) []Node {
	if graphID == "" {
		graphID = r.defaultID
	}
	nodes, err := r.load(ctx, graphID)
	if err == nil {
		return cloneNodes(nodes)
	}
	r.log.Warn().Err(err).Str("graph", graphID).Msg("graph unavailable")
	if graphID == r.defaultID {
		return []Node{}
	}
	nodes, err = r.load(ctx, r.defaultID)
	if err != nil {
		r.log.Warn().Err(err).Str("graph", r.defaultID).Msg("default graph unavailable")
		return []Node{}
	}
	return cloneNodes(nodes)
}

// Exits resolves graphID and returns the nodes reachable in one step from nodeID.
func (r *Resolver) Exits(ctx context.Context, graphID, nodeID string) []Node {
	return ExitsOf(r.Resolve(ctx, graphID), nodeID)
}

// Node resolves graphID and returns nodeID from it.
func (r *Resolver) Node(ctx context.Context, graphID, nodeID string) (Node, bool) {
	n, ok := Find(r.Resolve(ctx, graphID), nodeID)
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// Warm caches the default graph eagerly.
func (r *Resolver) Warm(ctx context.Context) error {
	_, err := r.load(ctx, r.defaultID)
	return err
}

// Invalidate clears the cache. Call after hot-reload detects changes.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string][]Node)
}

func (r *Resolver) cached(graphID string) ([]Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodes, ok := r.cache[graphID]
	return nodes, ok
}

func (r *Resolver) load(ctx context.Context, graphID string) ([]Node, error) {
	if nodes, ok := r.cached(graphID); ok {
		return nodes, nil
	}
	v, err, _ := r.group.Do(graphID, func() (any, error) {
		if nodes, ok := r.cached(graphID); ok {
			return nodes, nil
		}
		nodes, err := r.fetch(ctx, graphID)
		if err != nil {
			return nil, err
		}
		if err := Validate(graphID, nodes); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[graphID] = nodes
		r.mu.Unlock()
		return nodes, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Node), nil
}

func (r *Resolver) fetch(ctx context.Context, graphID string) (nodes []Node, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("graph source panicked: %v", rec)
		}
	}()
	return r.source.Fetch(ctx, graphID)
}
