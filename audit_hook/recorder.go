package audithook

import (
	"context"
	"log/slog"
	"sort"
)

// LogRecorder writes audit events to a structured logger. Critical events
// are logged at Error, warnings at Warn and the rest at Info.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder creates a LogRecorder. A nil logger uses slog.Default().
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *LogRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	level := slog.LevelInfo
	switch evt.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}

	keys := make([]string, 0, len(evt.Metadata))
	for k := range evt.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	meta := make([]any, 0, len(keys))
	for _, k := range keys {
		meta = append(meta, slog.Any(k, evt.Metadata[k]))
	}

	r.logger.LogAttrs(ctx, level, "audit",
		slog.String("action", evt.Action),
		slog.String("category", evt.Category),
		slog.String("resource", evt.Resource),
		slog.String("resource_id", evt.ResourceID),
		slog.String("outcome", evt.Outcome),
		slog.Group("metadata", meta...),
	)
	return nil
}
