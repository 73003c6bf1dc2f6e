package session

import (
	"context"
	"fmt"
	"iter"

	"github.com/rs/zerolog"

	"github.com/danshapiro/newsroom/internal/graph"
)

// Runner runs a graph on a thread: it loads the thread's history, appends
// the new input, streams the run and saves the resulting state. The thread
// lock is held from load until save, so concurrent invocations on one thread
// run one after the other.
type Runner struct {
	store Store
	graph *graph.Graph
	opts  []graph.Option
}

func NewRunner(store Store, g *graph.Graph, opts ...graph.Option) *Runner {
	return &Runner{store: store, graph: g, opts: opts}
}

func (r *Runner) Store() Store { return r.store }

// Stream behaves like graph.Stream over prior history ++ input. The state
// reached is saved when the run ends, including runs that fail or that the
// caller stops early.
func (r *Runner) Stream(ctx context.Context, threadID string, input graph.State, opts ...graph.Option) iter.Seq2[graph.Step, error] {
	return func(yield func(graph.Step, error) bool) {
		logger := zerolog.Ctx(ctx).With().Str("thread_id", threadID).Logger()

		unlock, err := r.store.Lock(ctx, threadID)
		if err != nil {
			yield(graph.Step{}, err)
			return
		}
		defer unlock()

		prior, err := r.store.Load(ctx, threadID)
		if err != nil {
			yield(graph.Step{}, fmt.Errorf("load thread %s: %w", threadID, err))
			return
		}
		state := graph.Merge(prior, input)
		logger.Debug().Int("prior", len(prior)).Int("input", len(input)).Msg("thread loaded")

		var runErr error
		stopped := false
		all := append(append([]graph.Option(nil), r.opts...), opts...)
		for step, err := range r.graph.Stream(ctx, state, all...) {
			if err != nil {
				runErr = err
				break
			}
			state = step.State
			if !yield(step, nil) {
				stopped = true
				break
			}
		}

		if err := r.store.Save(context.WithoutCancel(ctx), threadID, state); err != nil {
			logger.Error().Err(err).Msg("failed to save thread")
			if runErr == nil {
				runErr = fmt.Errorf("save thread %s: %w", threadID, err)
			}
		}
		if runErr != nil && !stopped {
			yield(graph.Step{}, runErr)
		}
	}
}

// Invoke drains Stream and returns the thread's state after the run.
func (r *Runner) Invoke(ctx context.Context, threadID string, input graph.State, opts ...graph.Option) (graph.State, error) {
	var final graph.State
	for step, err := range r.Stream(ctx, threadID, input, opts...) {
		if err != nil {
			return final, err
		}
		final = step.State
	}
	return final, nil
}
