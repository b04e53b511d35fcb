package notify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled limits the send rate of a Notifier. Send blocks until the
// limiter admits the message or ctx is done.
type Throttled struct {
	next    Notifier
	limiter *rate.Limiter
}

// NewThrottled wraps next with a token bucket of perSecond messages per
// second and the given burst.
func NewThrottled(next Notifier, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Send waits for a token, then forwards msg.
func (t *Throttled) Send(ctx context.Context, msg Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle message %s: %w", msg.ID, err)
	}
	return t.next.Send(ctx, msg)
}
