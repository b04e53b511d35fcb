package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zeni/ledgerflow/ext"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/invitation"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/obligation"
	"github.com/zeni/ledgerflow/workflow"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/zeni/ledgerflow/observability"

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.WorkflowStarted    = (*MetricsExtension)(nil)
	_ ext.WorkflowSuspended  = (*MetricsExtension)(nil)
	_ ext.WorkflowCompleted  = (*MetricsExtension)(nil)
	_ ext.WorkflowFailed     = (*MetricsExtension)(nil)
	_ ext.OccurrencePosted   = (*MetricsExtension)(nil)
	_ ext.ObligationDeleted  = (*MetricsExtension)(nil)
	_ ext.InvitationSent     = (*MetricsExtension)(nil)
	_ ext.InvitationReminded = (*MetricsExtension)(nil)
	_ ext.InvitationDeclined = (*MetricsExtension)(nil)
	_ ext.CronFired          = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics through an OTel
// meter. Register it as an extension to track run outcomes, postings, and
// invitation outcomes.
type MetricsExtension struct {
	WorkflowStarted   metric.Int64Counter
	WorkflowSuspended metric.Int64Counter
	WorkflowCompleted metric.Int64Counter
	WorkflowFailed    metric.Int64Counter
	WorkflowDuration  metric.Float64Histogram
	OccurrencePosted  metric.Int64Counter
	ObligationDeleted metric.Int64Counter
	InvitationSent    metric.Int64Counter
	InvitationRemind  metric.Int64Counter
	InvitationDecline metric.Int64Counter
	CronFired         metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. Instrument creation errors fall back to the noop instruments the
// API returns alongside them.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	duration, _ := meter.Float64Histogram("ledgerflow.workflow.duration",
		metric.WithDescription("Duration of workflow executions in seconds"),
		metric.WithUnit("s"),
	)

	return &MetricsExtension{
		WorkflowStarted:   counter("ledgerflow.workflow.started", "Workflow runs created"),
		WorkflowSuspended: counter("ledgerflow.workflow.suspended", "Waits on a future deadline"),
		WorkflowCompleted: counter("ledgerflow.workflow.completed", "Workflow runs completed"),
		WorkflowFailed:    counter("ledgerflow.workflow.failed", "Workflow runs failed permanently"),
		WorkflowDuration:  duration,
		OccurrencePosted:  counter("ledgerflow.obligation.posted", "Obligation occurrences posted"),
		ObligationDeleted: counter("ledgerflow.obligation.deleted", "Canceled obligations removed"),
		InvitationSent:    counter("ledgerflow.invitation.sent", "Invitations sent"),
		InvitationRemind:  counter("ledgerflow.invitation.reminded", "Invitation reminders sent"),
		InvitationDecline: counter("ledgerflow.invitation.declined", "Invitations auto-declined"),
		CronFired:         counter("ledgerflow.cron.fired", "Maintenance job runs"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func workflowAttrs(r *workflow.Run) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("workflow", r.Name))
}

// ── Workflow lifecycle hooks ────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (m *MetricsExtension) OnWorkflowStarted(ctx context.Context, r *workflow.Run) error {
	m.WorkflowStarted.Add(ctx, 1, workflowAttrs(r))
	return nil
}

// OnWorkflowSuspended implements ext.WorkflowSuspended.
func (m *MetricsExtension) OnWorkflowSuspended(ctx context.Context, r *workflow.Run, _ time.Time) error {
	m.WorkflowSuspended.Add(ctx, 1, workflowAttrs(r))
	return nil
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (m *MetricsExtension) OnWorkflowCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	m.WorkflowCompleted.Add(ctx, 1, workflowAttrs(r))
	m.WorkflowDuration.Record(ctx, elapsed.Seconds(), workflowAttrs(r))
	return nil
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (m *MetricsExtension) OnWorkflowFailed(ctx context.Context, r *workflow.Run, _ error) error {
	m.WorkflowFailed.Add(ctx, 1, workflowAttrs(r))
	return nil
}

// ── Domain hooks ────────────────────────────────────

// OnOccurrencePosted implements ext.OccurrencePosted.
func (m *MetricsExtension) OnOccurrencePosted(ctx context.Context, _ *obligation.Obligation, rec *ledger.TransactionRecord) error {
	m.OccurrencePosted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(rec.Kind))))
	return nil
}

// OnObligationDeleted implements ext.ObligationDeleted.
func (m *MetricsExtension) OnObligationDeleted(ctx context.Context, _ id.ObligationID) error {
	m.ObligationDeleted.Add(ctx, 1)
	return nil
}

// OnInvitationSent implements ext.InvitationSent.
func (m *MetricsExtension) OnInvitationSent(ctx context.Context, _ *invitation.Invitation) error {
	m.InvitationSent.Add(ctx, 1)
	return nil
}

// OnInvitationReminded implements ext.InvitationReminded.
func (m *MetricsExtension) OnInvitationReminded(ctx context.Context, _ *invitation.Invitation) error {
	m.InvitationRemind.Add(ctx, 1)
	return nil
}

// OnInvitationDeclined implements ext.InvitationDeclined.
func (m *MetricsExtension) OnInvitationDeclined(ctx context.Context, _ *invitation.Invitation) error {
	m.InvitationDecline.Add(ctx, 1)
	return nil
}

// ── Cron hooks ──────────────────────────────────────

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(ctx context.Context, entryName string) error {
	m.CronFired.Add(ctx, 1, metric.WithAttributes(attribute.String("entry", entryName)))
	return nil
}
