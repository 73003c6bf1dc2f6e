package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/danshapiro/newsroom"

// GetTracer returns the global tracer. It is a no-op until Init installs a provider.
func GetTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartRunSpan starts the span covering one graph run.
func StartRunSpan(ctx context.Context, runID, entry string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "graph.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.entry", entry),
		),
	)
}

// StartNodeSpan starts the span covering one node execution.
func StartNodeSpan(ctx context.Context, node string, step int) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "graph.node."+node,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("node.name", node),
			attribute.Int("node.step", step),
		),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddRetryEvent adds a retry event to the span active in ctx.
func AddRetryEvent(ctx context.Context, attempt int, reason string) {
	trace.SpanFromContext(ctx).AddEvent("retry",
		trace.WithAttributes(
			attribute.Int("retry.attempt", attempt),
			attribute.String("retry.reason", reason),
		),
	)
}

// AddRouteEvent records the routing decision taken after a node.
func AddRouteEvent(span trace.Span, from, to string) {
	span.AddEvent("route",
		trace.WithAttributes(
			attribute.String("route.from", from),
			attribute.String("route.to", to),
		),
	)
}
