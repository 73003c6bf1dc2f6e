// Package graph runs a small directed graph of nodes over an append-only
// conversation state. After every node a fixed edge or a router picks the next
// node; routers may loop back to earlier nodes.
package graph

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/danshapiro/newsroom/internal/metrics"
	"github.com/danshapiro/newsroom/internal/observability"
)

// DefaultMaxSteps bounds node executions per run. Routers that always loop
// back hit this instead of running forever.
const DefaultMaxSteps = 25

type Graph struct {
	nodes map[string]Node
	edges map[string]edge
	order []string
	entry string
}

// Step is emitted after each node finishes. State is the merged state after
// the node and must be treated as read-only.
type Step struct {
	Index int
	Node  string
	Delta State
	State State
}

type runOptions struct {
	maxSteps int
	entry    string
	runID    string
}

type Option func(*runOptions)

// WithMaxSteps sets the step bound. n <= 0 disables it; the caller then owns
// the risk of a router that never terminates.
func WithMaxSteps(n int) Option {
	return func(o *runOptions) { o.maxSteps = n }
}

// WithEntry starts the run at a node other than the compiled entry.
func WithEntry(name string) Option {
	return func(o *runOptions) { o.entry = name }
}

// WithRunID labels logs and spans for this run.
func WithRunID(id string) Option {
	return func(o *runOptions) { o.runID = id }
}

func (g *Graph) Entry() string { return g.entry }

// Nodes lists node names in declaration order.
func (g *Graph) Nodes() []string { return append([]string(nil), g.order...) }

// EdgeInfo describes an outgoing edge definition.
type EdgeInfo struct {
	From        string
	To          string   // fixed edges only
	Routes      []string // conditional edges; empty means any node
	Conditional bool
}

func (g *Graph) Edges() []EdgeInfo {
	out := make([]EdgeInfo, 0, len(g.order))
	for _, from := range g.order {
		e := g.edges[from]
		info := EdgeInfo{From: from, To: e.to, Conditional: e.conditional()}
		for r := range e.routes {
			info.Routes = append(info.Routes, r)
		}
		sort.Strings(info.Routes)
		out = append(out, info)
	}
	return out
}

// Stream returns a lazy, single-use sequence of steps. The sequence ends after
// the terminal edge, or after yielding exactly one non-nil error. Breaking out
// of the loop stops the run before the next node.
func (g *Graph) Stream(ctx context.Context, initial State, opts ...Option) iter.Seq2[Step, error] {
	o := runOptions{maxSteps: DefaultMaxSteps, entry: g.entry}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = ulid.Make().String()
	}

	return func(yield func(Step, error) bool) {
		if _, ok := g.nodes[o.entry]; !ok {
			yield(Step{}, fmt.Errorf("%w: entry node %s is not declared", ErrInvalidGraph, o.entry))
			return
		}

		ctx, span := observability.StartRunSpan(ctx, o.runID, o.entry)
		defer span.End()
		logger := zerolog.Ctx(ctx).With().Str("run_id", o.runID).Logger()

		state := initial.Clone()
		current := o.entry
		for steps := 0; ; steps++ {
			if o.maxSteps > 0 && steps >= o.maxSteps {
				err := &StepLimitError{Limit: o.maxSteps, Next: current}
				observability.RecordError(span, err)
				logger.Warn().Int("limit", o.maxSteps).Str("next", current).Msg("step limit reached")
				yield(Step{}, err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(Step{}, err)
				return
			}

			delta, err := g.runNode(ctx, current, steps, state)
			if err != nil {
				observability.RecordError(span, err)
				logger.Error().Err(err).Str("node", current).Msg("node failed")
				yield(Step{}, err)
				return
			}
			state = Merge(state, delta)
			logger.Debug().Str("node", current).Int("step", steps).Int("appended", len(delta)).Msg("node finished")
			if !yield(Step{Index: steps, Node: current, Delta: delta, State: state}, nil) {
				return
			}

			next, err := g.resolve(current, state)
			if err != nil {
				observability.RecordError(span, err)
				yield(Step{}, err)
				return
			}
			if next == End {
				observability.AddRouteEvent(span, current, End)
				return
			}
			observability.AddRouteEvent(span, current, next)
			current = next
		}
	}
}

func (g *Graph) runNode(ctx context.Context, name string, step int, state State) (State, error) {
	ctx, span := observability.StartNodeSpan(ctx, name, step)
	defer span.End()

	start := time.Now()
	delta, err := g.nodes[name].Run(ctx, state)
	metrics.NodeDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.NodeExecutionsTotal.WithLabelValues(name, "error").Inc()
		observability.RecordError(span, err)
		return nil, &NodeError{Node: name, Err: err}
	}
	metrics.NodeExecutionsTotal.WithLabelValues(name, "ok").Inc()
	return delta, nil
}

// resolve returns the next node name, or End.
func (g *Graph) resolve(from string, state State) (string, error) {
	e := g.edges[from]
	if !e.conditional() {
		return e.to, nil
	}
	r := e.router(state)
	if r.IsTerminal() || r.Node() == End {
		return End, nil
	}
	if _, ok := g.nodes[r.Node()]; !ok {
		return "", &UnknownRouteError{From: from, Route: r}
	}
	if e.routes != nil {
		if _, ok := e.routes[r.Node()]; !ok {
			return "", &UnknownRouteError{From: from, Route: r}
		}
	}
	return r.Node(), nil
}

// Invoke drains Stream and returns the final state.
func (g *Graph) Invoke(ctx context.Context, initial State, opts ...Option) (State, error) {
	final := initial.Clone()
	for step, err := range g.Stream(ctx, initial, opts...) {
		if err != nil {
			return final, err
		}
		final = step.State
	}
	return final, nil
}

// Visited is a convenience for callers that only need the node order of a
// run.
func Visited(seq iter.Seq2[Step, error]) ([]string, error) {
	var names []string
	for step, err := range seq {
		if err != nil {
			return names, err
		}
		names = append(names, step.Node)
	}
	return names, nil
}
