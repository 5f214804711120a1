package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/braunsonm/cloud-controller-ng/operation"
)

// tracerName is the instrumentation scope name for operation tracing.
const tracerName = "github.com/braunsonm/cloud-controller-ng"

// Tracing returns middleware that wraps each invocation in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: ccng.operation.id, ccng.operation.kind,
// ccng.resource.guid, ccng.attempts, ccng.first_attempt.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, op *operation.Operation, next Handler) error {
		ctx, span := tracer.Start(ctx, "ccng.operation.invoke",
			trace.WithAttributes(
				attribute.String("ccng.operation.id", op.ID.String()),
				attribute.String("ccng.operation.kind", string(op.Kind)),
				attribute.String("ccng.resource.guid", op.ResourceGUID),
				attribute.Int("ccng.attempts", op.Attempts),
				attribute.Bool("ccng.first_attempt", op.FirstAttempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
