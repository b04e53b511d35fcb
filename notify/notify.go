// Package notify delivers user-facing messages (invitations, reminders).
// Delivery is fire-and-forget from the workflow's point of view: callers use
// Deliver, which logs failures instead of returning them.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zeni/ledgerflow/id"
)

// Message is one outgoing message.
type Message struct {
	ID        id.MessageID `json:"id"`
	To        string       `json:"to"`
	Subject   string       `json:"subject"`
	Body      string       `json:"body"`
	Topic     string       `json:"topic,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewMessage returns a message with a fresh ID stamped at the wall clock.
func NewMessage(to, subject, body string) Message {
	return NewMessageAt(id.NewMessageID(), time.Now(), to, subject, body)
}

// NewMessageAt returns a message with the given ID and creation time.
func NewMessageAt(msgID id.MessageID, at time.Time, to, subject, body string) Message {
	return Message{
		ID:        msgID,
		To:        to,
		Subject:   subject,
		Body:      body,
		CreatedAt: at.UTC(),
	}
}

// StepMessageID returns the message ID for the message sent by a workflow
// step. A replayed step gets the same ID, so idempotent notifiers can drop
// the duplicate.
func StepMessageID(runID id.RunID, step string) id.MessageID {
	return id.Derive(id.PrefixMessage, runID.String()+"/"+step)
}

// Notifier sends messages.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Deliver sends msg and logs a failure at Warn. It reports whether the
// message was accepted.
func Deliver(ctx context.Context, n Notifier, logger *slog.Logger, msg Message) bool {
	if err := n.Send(ctx, msg); err != nil {
		logger.Warn("message delivery failed",
			slog.String("message_id", msg.ID.String()),
			slog.String("to", msg.To),
			slog.String("topic", msg.Topic),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// Multi sends every message to all notifiers and joins their errors.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, msg Message) error {
		var errs []error
		for _, n := range notifiers {
			if err := n.Send(ctx, msg); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
