package clock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zeni/ledgerflow/clock"
)

func TestFake_SleepAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := clock.NewFake(start)

	var hooked []time.Time
	f.OnSleep(func(_, after time.Time) { hooked = append(hooked, after) })

	if err := f.Sleep(context.Background(), 48*time.Hour); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if err := f.Sleep(context.Background(), time.Hour); err != nil {
		t.Fatalf("Sleep: %v", err)
	}

	if got, want := f.Now(), start.Add(49*time.Hour); !got.Equal(want) {
		t.Errorf("Now = %v, want %v", got, want)
	}
	if got := f.Slept(); got != 49*time.Hour {
		t.Errorf("Slept = %v, want 49h", got)
	}
	if len(f.Sleeps()) != 2 {
		t.Errorf("len(Sleeps) = %d, want 2", len(f.Sleeps()))
	}
	if len(hooked) != 2 || !hooked[0].Equal(start.Add(48*time.Hour)) {
		t.Errorf("hook times = %v", hooked)
	}
}

func TestFake_SleepCanceledContext(t *testing.T) {
	f := clock.NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep err = %v, want context.Canceled", err)
	}
	if f.Slept() != 0 {
		t.Errorf("Slept = %v, want 0", f.Slept())
	}
}

func TestReal_SleepRespectsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := clock.New().Sleep(ctx, time.Hour)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Sleep err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on context expiry")
	}
}

func TestReal_ZeroSleep(t *testing.T) {
	if err := clock.New().Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) = %v, want nil", err)
	}
}
