package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zeni/ledgerflow/workflow"
)

// tracerName is the instrumentation scope name for ledgerflow tracing.
const tracerName = "github.com/zeni/ledgerflow"

// Tracing returns middleware that wraps step execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through.
//
// Span attributes include: ledgerflow.run.id, ledgerflow.workflow,
// ledgerflow.instance_key, ledgerflow.step, ledgerflow.attempt.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, step *workflow.StepInfo, next Handler) error {
		ctx, span := tracer.Start(ctx, "ledgerflow.step.execute",
			trace.WithAttributes(
				attribute.String("ledgerflow.run.id", step.Run.ID.String()),
				attribute.String("ledgerflow.workflow", step.Run.Name),
				attribute.String("ledgerflow.instance_key", step.Run.InstanceKey),
				attribute.String("ledgerflow.step", step.Name),
				attribute.Int("ledgerflow.attempt", step.Run.Attempts),
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
