package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manually driven Clock. Sleep advances the fake time by the
// requested duration and returns immediately, recording every sleep.
//
// Thread-safety: all methods are safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep []func(before, after time.Time)
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the fake time by d and runs the OnSleep hooks.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	before := f.now
	if d > 0 {
		f.now = f.now.Add(d)
	}
	after := f.now
	f.sleeps = append(f.sleeps, d)
	hooks := append([]func(before, after time.Time){}, f.onSleep...)
	f.mu.Unlock()

	for _, h := range hooks {
		h(before, after)
	}
	return nil
}

// Advance moves the fake time forward without recording a sleep.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set moves the fake time to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// OnSleep registers a hook called after every Sleep with the time before and
// after the sleep. Tests use it to inject external actions (a user canceling,
// an invitee accepting) at a given simulated instant.
func (f *Fake) OnSleep(h func(before, after time.Time)) {
	f.mu.Lock()
	f.onSleep = append(f.onSleep, h)
	f.mu.Unlock()
}

// Sleeps returns a copy of every duration passed to Sleep.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}

// Slept returns the total simulated time spent in Sleep.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total time.Duration
	for _, d := range f.sleeps {
		total += d
	}
	return total
}
