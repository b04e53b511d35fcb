package notify

import (
	"context"
	"sync"
)

// Outbox records sent messages in memory.
type Outbox struct {
	mu   sync.Mutex
	msgs []Message
	fail func(Message) error
}

// NewOutbox creates an empty Outbox.
func NewOutbox() *Outbox { return &Outbox{} }

// FailWith makes Send return fn's error for matching messages. A nil error
// records the message as usual.
func (o *Outbox) FailWith(fn func(Message) error) {
	o.mu.Lock()
	o.fail = fn
	o.mu.Unlock()
}

// Send records msg.
func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		if err := o.fail(msg); err != nil {
			return err
		}
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

// Messages returns a copy of every recorded message.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.msgs))
	copy(out, o.msgs)
	return out
}

// ByTopic returns the recorded messages with the given topic.
func (o *Outbox) ByTopic(topic string) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Message
	for _, m := range o.msgs {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
