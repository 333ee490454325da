// Package selector runs the branching node choice between encounters.
package selector

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/xtding233/sector-run/internal/graph"
	"github.com/xtding233/sector-run/internal/loop"
	"github.com/xtding233/sector-run/internal/run"
)

var (
	ErrNoChoicePending = errors.New("no node choice is pending")
	ErrNotOffered      = errors.New("node was not offered")
)

// Phase of the selection workflow.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResolving
	PhaseAwaitingChoice
)

func (p Phase) String() string {
	switch p {
	case PhaseResolving:
		return "resolving"
	case PhaseAwaitingChoice:
		return "awaiting-choice"
	default:
		return "idle"
	}
}

// Decision is delivered to the preview continuation once per preview.
type Decision struct {
	Token         uint64
	RouteComplete bool
	Node          graph.Node
	// Auto is set when the only exit was chosen without asking.
	Auto bool
}

// ExitResolver maps a node to its next nodes.
type ExitResolver interface {
	Exits(ctx context.Context, graphID, nodeID string) []graph.Node
}

// Route is the part of the run lifecycle the selector reads and advances.
type Route interface {
	GraphID() string
	CurrentNodeID() string
	Choose(nodeID string) (run.State, bool)
}

// Selector is owned by the tick loop.
type Selector struct {
	loop     *loop.Loop
	resolver ExitResolver
	route    Route
	timeout  time.Duration
	log      zerolog.Logger

	token   uint64
	phase   Phase
	options []graph.Node
	pending func(Decision)
}

func New(lp *loop.Loop, resolver ExitResolver, route Route, timeout time.Duration, logger zerolog.Logger) *Selector {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Selector{
		loop:     lp,
		resolver: resolver,
		route:    route,
		timeout:  timeout,
		log:      logger.With().Str("component", "selector").Logger(),
	}
}

func (s *Selector) Token() uint64 { return s.token }
func (s *Selector) Phase() Phase  { return s.phase }

// Options returns copies of the nodes offered for the pending choice.
func (s *Selector) Options() []graph.Node {
	out := make([]graph.Node, len(s.options))
	for i, n := range s.options {
		out[i] = n.Clone()
	}
	return out
}

// PreviewNextNodes resolves the current node's exits off the loop and calls
// resume on a later tick: immediately for zero or one exit, after Choose for more.
// Starting a new preview invalidates any earlier one still in flight.
func (s *Selector) PreviewNextNodes(ctx context.Context, resume func(Decision)) uint64 {
	s.token++
	tok := s.token
	s.phase = PhaseResolving
	s.options = nil
	s.pending = nil

	graphID, nodeID := s.route.GraphID(), s.route.CurrentNodeID()
	loop.Async(s.loop, func() []graph.Node {
		return s.resolveExits(ctx, graphID, nodeID)
	}, func(nodes []graph.Node) {
		s.deliver(tok, nodes, resume)
	})
	return tok
}

func (s *Selector) resolveExits(ctx context.Context, graphID, nodeID string) []graph.Node {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ch := make(chan []graph.Node, 1)
	go func() { ch <- s.resolver.Exits(ctx, graphID, nodeID) }()
	select {
	case nodes := <-ch:
		return nodes
	case <-ctx.Done():
		s.log.Warn().Err(ctx.Err()).Str("graph", graphID).Str("node", nodeID).Msg("exit resolution timed out")
		return nil
	}
}

func (s *Selector) deliver(tok uint64, nodes []graph.Node, resume func(Decision)) {
	if tok != s.token {
		s.log.Debug().Uint64("token", tok).Uint64("current", s.token).Msg("discarding stale preview")
		return
	}
	switch len(nodes) {
	case 0:
		s.phase = PhaseIdle
		s.call(resume, Decision{Token: tok, RouteComplete: true})
	case 1:
		s.route.Choose(nodes[0].ID)
		s.phase = PhaseIdle
		s.call(resume, Decision{Token: tok, Node: nodes[0], Auto: true})
	default:
		s.phase = PhaseAwaitingChoice
		s.options = nodes
		s.pending = resume
	}
}

// Choose picks one of the offered nodes and resumes the held continuation.
func (s *Selector) Choose(nodeID string) error {
	if s.phase != PhaseAwaitingChoice {
		return ErrNoChoicePending
	}
	node, ok := graph.Find(s.options, nodeID)
	if !ok {
		return ErrNotOffered
	}
	resume := s.pending
	s.pending = nil
	s.options = nil
	s.phase = PhaseIdle
	s.route.Choose(node.ID)
	s.call(resume, Decision{Token: s.token, Node: node})
	return nil
}

// Cancel drops any in-flight preview and held choice.
func (s *Selector) Cancel() {
	s.token++
	s.phase = PhaseIdle
	s.options = nil
	s.pending = nil
}

func (s *Selector) call(resume func(Decision), d Decision) {
	if resume != nil {
		resume(d)
	}
}
