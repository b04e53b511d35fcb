package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zeni/ledgerflow/workflow"
)

// meterName is the instrumentation scope name for ledgerflow metrics.
const meterName = "github.com/zeni/ledgerflow"

// Metrics returns middleware that records per-step execution metrics using
// the global OTel MeterProvider.
//
// Instruments:
//   - ledgerflow.step.duration (Float64Histogram): execution time in seconds,
//     with attributes: workflow, status ("ok" or "error")
//   - ledgerflow.step.executions (Int64Counter): total executions,
//     with attributes: workflow, status ("ok" or "error")
//
// Step names embed occurrence instants, so they are not used as attributes.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"ledgerflow.step.duration",
		metric.WithDescription("Duration of step execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"ledgerflow.step.executions",
		metric.WithDescription("Total number of step executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, step *workflow.StepInfo, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("workflow", step.Run.Name),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
