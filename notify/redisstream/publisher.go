// Package redisstream publishes outgoing messages to a Redis stream, where a
// separate mail worker picks them up for delivery.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	pub := redisstream.New(client, redisstream.WithStream("ledgerflow:mail"))
//	eng, err := engine.New(s, engine.WithNotifier(pub))
package redisstream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zeni/ledgerflow/notify"
)

// DefaultStream is the stream messages are appended to.
const DefaultStream = "ledgerflow:mail"

const dedupePrefix = "ledgerflow:mail_sent:"

// Compile-time interface check.
var _ notify.Notifier = (*Publisher)(nil)

// Option configures the Publisher.
type Option func(*Publisher)

// WithStream sets the stream key.
func WithStream(name string) Option {
	return func(p *Publisher) { p.stream = name }
}

// WithMaxLen caps the stream length (approximate trimming). Zero disables it.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) { p.maxLen = n }
}

// WithDedupeTTL sets how long a message ID is remembered to suppress
// duplicate publishes.
func WithDedupeTTL(d time.Duration) Option {
	return func(p *Publisher) { p.dedupeTTL = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// Publisher is a notify.Notifier that appends messages to a Redis stream.
// A message ID is published at most once within the dedupe TTL.
type Publisher struct {
	client    goredis.Cmdable
	stream    string
	maxLen    int64
	dedupeTTL time.Duration
	logger    *slog.Logger
}

// New creates a Publisher. The caller owns the Redis client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Publisher {
	p := &Publisher{
		client:    client,
		stream:    DefaultStream,
		maxLen:    10000,
		dedupeTTL: 7 * 24 * time.Hour,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Stream returns the stream key.
func (p *Publisher) Stream() string { return p.stream }

// Ping verifies the Redis connection is alive.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Send appends msg to the stream unless its ID was already published.
func (p *Publisher) Send(ctx context.Context, msg notify.Message) error {
	mID := msg.ID.String()

	fresh, err := p.client.SetNX(ctx, dedupePrefix+mID, 1, p.dedupeTTL).Result()
	if err != nil {
		return fmt.Errorf("ledgerflow/redisstream: dedupe %s: %w", mID, err)
	}
	if !fresh {
		p.logger.Debug("message already published", slog.String("message_id", mID))
		return nil
	}

	args := &goredis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"message_id": mID,
			"to":         msg.To,
			"subject":    msg.Subject,
			"body":       msg.Body,
			"topic":      msg.Topic,
			"created_at": msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		// Release the dedupe key so a retry can publish.
		if delErr := p.client.Del(ctx, dedupePrefix+mID).Err(); delErr != nil {
			p.logger.Warn("failed to release dedupe key",
				slog.String("message_id", mID),
				slog.String("error", delErr.Error()),
			)
		}
		return fmt.Errorf("ledgerflow/redisstream: xadd %s: %w", mID, err)
	}
	return nil
}
