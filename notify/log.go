package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes messages to a logger instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the message at Info.
func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("message sent",
		slog.String("message_id", msg.ID.String()),
		slog.String("to", msg.To),
		slog.String("topic", msg.Topic),
		slog.String("subject", msg.Subject),
	)
	return nil
}
