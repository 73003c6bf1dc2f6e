package tools

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/danshapiro/newsroom/internal/graph"
)

// Node executes every tool call declared by the latest message and appends
// one result per call, in call order. A failing tool becomes an error result;
// the run continues.
func Node(reg *Registry) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State) (graph.State, error) {
		last, ok := state.Last()
		if !ok || !last.HasToolCalls() {
			return nil, nil
		}
		logger := zerolog.Ctx(ctx)
		delta := make(graph.State, 0, len(last.ToolCalls))
		for _, call := range last.ToolCalls {
			res := reg.Execute(ctx, call)
			ev := logger.Info()
			if res.IsError {
				ev = logger.Warn()
			}
			ev.Str("tool", res.ToolName).Str("call_id", res.CallID).Bool("error", res.IsError).Msg("tool call finished")
			delta = append(delta, res.Message())
		}
		return delta, nil
	})
}
