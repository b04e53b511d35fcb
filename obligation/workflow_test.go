package obligation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/backoff"
	"github.com/zeni/ledgerflow/clock"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/obligation"
	"github.com/zeni/ledgerflow/store/memory"
	"github.com/zeni/ledgerflow/workflow"
)

const (
	day      = 24 * time.Hour
	ledgerID = "ldg_household"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopRunEmitter struct{}

func (nopRunEmitter) EmitStepCompleted(context.Context, *workflow.Run, string, time.Duration) {}
func (nopRunEmitter) EmitStepFailed(context.Context, *workflow.Run, string, error)           {}
func (nopRunEmitter) EmitWorkflowSuspended(context.Context, *workflow.Run, time.Time)        {}
func (nopRunEmitter) EmitWorkflowStarted(context.Context, *workflow.Run)                     {}
func (nopRunEmitter) EmitWorkflowCompleted(context.Context, *workflow.Run, time.Duration)    {}
func (nopRunEmitter) EmitWorkflowFailed(context.Context, *workflow.Run, error)               {}

// poster wraps the ledger service with injected failures and a hook that
// runs after every successful posting.
type poster struct {
	next ledger.Poster

	mu       sync.Mutex
	failures int
	calls    int
	posted   int
	after    func(posted int)
}

func (p *poster) PostLedgerTransaction(ctx context.Context, req ledger.PostRequest) (*ledger.TransactionRecord, bool, error) {
	p.mu.Lock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return nil, false, errors.New("ledger unavailable")
	}
	p.mu.Unlock()

	rec, created, err := p.next.PostLedgerTransaction(ctx, req)
	if err != nil {
		return nil, false, err
	}

	p.mu.Lock()
	p.posted++
	n := p.posted
	after := p.after
	p.mu.Unlock()
	if after != nil {
		after(n)
	}
	return rec, created, nil
}

type harness struct {
	t      *testing.T
	store  *memory.Store
	clk    *clock.Fake
	poster *poster
	runner *workflow.Runner
}

// newHarness wires a recurring workflow over a memory store. wrap, when
// set, decorates the obligation store the workflow sees.
func newHarness(t *testing.T, wrap func(*memory.Store) obligation.Store, opts ...obligation.Option) *harness {
	t.Helper()
	s := memory.New()
	var oblStore obligation.Store = s
	if wrap != nil {
		oblStore = wrap(s)
	}
	clk := clock.NewFake(epoch)
	p := &poster{next: ledger.NewService(s, testLogger())}

	opts = append([]obligation.Option{
		obligation.WithMaxChunk(7 * day),
		obligation.WithRetry(backoff.NewConstant(5 * time.Minute)),
	}, opts...)
	rec := obligation.NewRecurring(oblStore, p, opts...)

	reg := workflow.NewRegistry()
	workflow.RegisterDefinition(reg, rec.Definition())
	runner := workflow.NewRunner(reg, s, nopRunEmitter{}, testLogger(), workflow.WithClock(clk))

	return &harness{t: t, store: s, clk: clk, poster: p, runner: runner}
}

func (h *harness) create(first time.Time, interval time.Duration) *obligation.Obligation {
	h.t.Helper()
	o := obligation.New("usr_1", ledgerID, "cat_rent", decimal.RequireFromString("1200.50"),
		ledger.KindExpense, first, interval, "rent")
	if err := h.store.CreateObligation(context.Background(), o); err != nil {
		h.t.Fatalf("CreateObligation: %v", err)
	}
	return o
}

func (h *harness) cancelAfter(o *obligation.Obligation, n int) {
	h.poster.after = func(posted int) {
		if posted == n {
			if err := h.store.CancelObligation(context.Background(), o.ID); err != nil {
				h.t.Errorf("CancelObligation: %v", err)
			}
		}
	}
}

func (h *harness) start(ctx context.Context, o *obligation.Obligation) *workflow.Run {
	h.t.Helper()
	run, err := workflow.Start(ctx, h.runner, obligation.WorkflowName, o.ID.String(), obligation.NewPayload(o.ID))
	if err != nil {
		h.t.Fatalf("Start: %v", err)
	}
	return run
}

func (h *harness) occurrences() []time.Time {
	h.t.Helper()
	txns, err := h.store.ListTransactions(context.Background(), ledgerID)
	if err != nil {
		h.t.Fatal(err)
	}
	out := make([]time.Time, len(txns))
	for i, txn := range txns {
		out[i] = txn.OccurrenceAt
	}
	return out
}

func (h *harness) assertDeleted(oblID id.ObligationID) {
	h.t.Helper()
	_, err := h.store.GetObligation(context.Background(), oblID)
	if !errors.Is(err, ledgerflow.ErrObligationNotFound) {
		h.t.Errorf("obligation after cancel: err = %v, want ErrObligationNotFound", err)
	}
}

func equalTimes(a, b []time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRecurring_PostsEachOccurrence(t *testing.T) {
	h := newHarness(t, nil)
	first := epoch.Add(time.Hour)
	o := h.create(first, day)
	h.cancelAfter(o, 3)

	h.clk.OnSleep(func(time.Time, time.Time) {
		if _, err := h.store.GetObligation(context.Background(), o.ID); err != nil {
			t.Errorf("obligation missing while waiting: %v", err)
		}
	})

	run := h.start(context.Background(), o)
	if run.State != workflow.RunStateCompleted {
		t.Fatalf("state = %q (%s), want completed", run.State, run.Error)
	}

	want := []time.Time{first, first.Add(day), first.Add(2 * day)}
	if got := h.occurrences(); !equalTimes(got, want) {
		t.Errorf("occurrences = %v, want %v", got, want)
	}
	if sleeps := h.clk.Sleeps(); !equalDurations(sleeps, []time.Duration{time.Hour, day, day}) {
		t.Errorf("sleeps = %v, want [1h 24h 24h]", sleeps)
	}

	bal, err := h.store.GetBalance(context.Background(), ledgerID)
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("3601.50"); !bal.Expense.Equal(want) {
		t.Errorf("expense = %s, want %s", bal.Expense, want)
	}
	h.assertDeleted(o.ID)
}

func TestRecurring_PastOccurrencePostsImmediately(t *testing.T) {
	h := newHarness(t, nil)
	first := epoch.Add(-2 * day)
	o := h.create(first, day)
	h.cancelAfter(o, 2)

	h.start(context.Background(), o)

	// The next due time is one interval after the posting, not after the
	// overdue occurrence.
	want := []time.Time{first, first.Add(day)}
	if got := h.occurrences(); !equalTimes(got, want) {
		t.Errorf("occurrences = %v, want %v", got, want)
	}
	if sleeps := h.clk.Sleeps(); !equalDurations(sleeps, []time.Duration{day}) {
		t.Errorf("sleeps = %v, want [24h]", sleeps)
	}
}

func TestRecurring_RetriesFailedPosting(t *testing.T) {
	h := newHarness(t, nil)
	first := epoch.Add(time.Hour)
	o := h.create(first, 30*day)
	h.poster.failures = 1

	var advancedTo time.Time
	h.poster.after = func(int) {
		got, err := h.store.GetObligation(context.Background(), o.ID)
		if err != nil {
			t.Errorf("GetObligation: %v", err)
			return
		}
		advancedTo = got.NextOccurrenceAt
		if err := h.store.CancelObligation(context.Background(), o.ID); err != nil {
			t.Errorf("CancelObligation: %v", err)
		}
	}

	h.start(context.Background(), o)

	if h.poster.calls != 2 {
		t.Errorf("posting calls = %d, want 2", h.poster.calls)
	}
	if got := h.occurrences(); !equalTimes(got, []time.Time{first}) {
		t.Errorf("occurrences = %v, want [%v]", got, first)
	}
	if !advancedTo.Equal(first) {
		t.Errorf("next occurrence before advance = %v, want %v", advancedTo, first)
	}
	if sleeps := h.clk.Sleeps(); !equalDurations(sleeps, []time.Duration{time.Hour, 5 * time.Minute}) {
		t.Errorf("sleeps = %v, want [1h 5m]", sleeps)
	}
}

// advanceOnceFailing fails the first AdvanceOccurrence, simulating a crash
// between the posting and the schedule advance.
type advanceOnceFailing struct {
	*memory.Store
	failed bool
	calls  int
}

func (s *advanceOnceFailing) AdvanceOccurrence(ctx context.Context, oblID id.ObligationID, from, to time.Time) (bool, error) {
	s.calls++
	if !s.failed {
		s.failed = true
		return false, errors.New("connection reset")
	}
	return s.Store.AdvanceOccurrence(ctx, oblID, from, to)
}

func TestRecurring_AdvanceAfterInterruptedPosting(t *testing.T) {
	var flaky *advanceOnceFailing
	h := newHarness(t, func(s *memory.Store) obligation.Store {
		flaky = &advanceOnceFailing{Store: s}
		return flaky
	})
	base := h.store

	first := epoch
	o := h.create(first, 7*day)
	ctx := context.Background()

	run := h.start(ctx, o)
	if run.State != workflow.RunStateRunning {
		t.Fatalf("state = %q, want running after failed advance", run.State)
	}
	got, err := base.GetObligation(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.NextOccurrenceAt.Equal(first) {
		t.Fatalf("next occurrence = %v, want unchanged %v", got.NextOccurrenceAt, first)
	}

	h.clk.OnSleep(func(time.Time, time.Time) {
		_ = base.CancelObligation(context.Background(), o.ID)
	})
	if err := h.runner.Resume(ctx, run.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if got := h.occurrences(); !equalTimes(got, []time.Time{first}) {
		t.Errorf("occurrences = %v, want one posting at %v", got, first)
	}
	if h.poster.posted != 1 {
		t.Errorf("postings = %d, want 1", h.poster.posted)
	}
	if flaky.calls != 2 {
		t.Errorf("advance calls = %d, want 2", flaky.calls)
	}
	h.assertDeleted(o.ID)
}

func TestRecurring_CancellationLatency(t *testing.T) {
	h := newHarness(t, nil)
	o := h.create(epoch.Add(30*day), day)
	canceledAt := epoch.Add(10 * day)

	var once sync.Once
	h.clk.OnSleep(func(_, after time.Time) {
		if !after.Before(canceledAt) {
			once.Do(func() {
				if err := h.store.CancelObligation(context.Background(), o.ID); err != nil {
					t.Errorf("CancelObligation: %v", err)
				}
			})
		}
	})

	run := h.start(context.Background(), o)
	if run.State != workflow.RunStateCompleted {
		t.Fatalf("state = %q (%s), want completed", run.State, run.Error)
	}
	if len(h.occurrences()) != 0 {
		t.Errorf("occurrences = %v, want none", h.occurrences())
	}
	// Chunks end at day 7 and day 14; cancellation lands at 14.
	if got := h.clk.Now(); !got.Equal(epoch.Add(14 * day)) {
		t.Errorf("observed at %v, want %v", got, epoch.Add(14*day))
	}
	if latency := h.clk.Now().Sub(canceledAt); latency > 7*day {
		t.Errorf("cancellation latency = %v, want at most 7d", latency)
	}
	h.assertDeleted(o.ID)
}

func TestRecurring_CanceledBeforeStart(t *testing.T) {
	h := newHarness(t, nil)
	o := h.create(epoch.Add(time.Hour), day)
	if err := h.store.CancelObligation(context.Background(), o.ID); err != nil {
		t.Fatal(err)
	}

	run := h.start(context.Background(), o)
	if run.State != workflow.RunStateCompleted {
		t.Fatalf("state = %q, want completed", run.State)
	}
	if h.poster.calls != 0 {
		t.Errorf("posting calls = %d, want 0", h.poster.calls)
	}
	if len(h.clk.Sleeps()) != 0 {
		t.Errorf("sleeps = %v, want none", h.clk.Sleeps())
	}
	h.assertDeleted(o.ID)
}

func TestRecurring_ReplayAfterInterruption(t *testing.T) {
	h := newHarness(t, nil, obligation.WithMaxChunk(12*time.Hour))
	first := epoch.Add(time.Hour)
	o := h.create(first, day)
	h.cancelAfter(o, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.clk.OnSleep(func(time.Time, time.Time) {
		if h.poster.posted == 1 {
			cancel()
		}
	})

	run := h.start(ctx, o)
	if run.State != workflow.RunStateRunning {
		t.Fatalf("state = %q, want running after interruption", run.State)
	}
	if got := h.occurrences(); !equalTimes(got, []time.Time{first}) {
		t.Fatalf("occurrences before replay = %v, want [%v]", got, first)
	}

	if err := h.runner.Resume(context.Background(), run.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	stored, err := h.store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != workflow.RunStateCompleted {
		t.Errorf("state = %q (%s), want completed", stored.State, stored.Error)
	}
	want := []time.Time{first, first.Add(day)}
	if got := h.occurrences(); !equalTimes(got, want) {
		t.Errorf("occurrences = %v, want %v", got, want)
	}
	if h.poster.posted != 2 {
		t.Errorf("postings = %d, want 2", h.poster.posted)
	}
	// The second occurrence is due 24h after the first posting regardless of
	// the interruption.
	if sleeps := h.clk.Sleeps(); !equalDurations(sleeps, []time.Duration{time.Hour, 12 * time.Hour, 12 * time.Hour}) {
		t.Errorf("sleeps = %v, want [1h 12h 12h]", sleeps)
	}

	// A replay of the finished run is a no-op even though the row is gone.
	wf := workflow.NewWorkflowContext(context.Background(), stored, h.store, h.clk, nopRunEmitter{}, nil, testLogger())
	rec := obligation.NewRecurring(h.store, h.poster)
	if err := rec.Run(wf, obligation.NewPayload(o.ID)); err != nil {
		t.Errorf("replay after cleanup: %v", err)
	}
	if h.poster.posted != 2 {
		t.Errorf("postings after replay = %d, want 2", h.poster.posted)
	}
}

func TestRecurring_StartIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	o := h.create(epoch.Add(time.Hour), day)
	h.cancelAfter(o, 1)

	first := h.start(context.Background(), o)
	second := h.start(context.Background(), o)
	if first.ID != second.ID {
		t.Errorf("second start created run %s, want %s", second.ID, first.ID)
	}
	if h.poster.posted != 1 {
		t.Errorf("postings = %d, want 1", h.poster.posted)
	}
}

func TestRecurring_MissingObligationFails(t *testing.T) {
	h := newHarness(t, nil)
	oblID := id.NewObligationID()

	run, err := workflow.Start(context.Background(), h.runner, obligation.WorkflowName, oblID.String(), obligation.NewPayload(oblID))
	if err != nil {
		t.Fatal(err)
	}
	if run.State != workflow.RunStateFailed {
		t.Errorf("state = %q, want failed", run.State)
	}
}

func TestRecurring_InvalidPayloadFails(t *testing.T) {
	h := newHarness(t, nil)
	run, err := workflow.Start(context.Background(), h.runner, obligation.WorkflowName, "bad",
		obligation.Payload{Version: 99, ObligationID: id.NewObligationID()})
	if err != nil {
		t.Fatal(err)
	}
	if run.State != workflow.RunStateFailed {
		t.Errorf("state = %q, want failed", run.State)
	}
}

type postedEmitter struct {
	mu     sync.Mutex
	posted []time.Time
}

func (e *postedEmitter) EmitOccurrencePosted(_ context.Context, _ *obligation.Obligation, rec *ledger.TransactionRecord) {
	e.mu.Lock()
	e.posted = append(e.posted, rec.OccurrenceAt)
	e.mu.Unlock()
}

func (e *postedEmitter) EmitObligationDeleted(context.Context, id.ObligationID) {}

func TestRecurring_AlreadyPostedOccurrenceIsNotReEmitted(t *testing.T) {
	events := &postedEmitter{}
	h := newHarness(t, nil, obligation.WithEmitter(events))
	first := epoch
	o := h.create(first, day)
	h.cancelAfter(o, 2)
	ctx := context.Background()

	// An earlier attempt posted the first occurrence but never checkpointed it.
	if _, _, err := ledger.NewService(h.store, testLogger()).PostLedgerTransaction(ctx, o.PostRequest(first)); err != nil {
		t.Fatalf("PostLedgerTransaction: %v", err)
	}

	h.start(ctx, o)

	if got := h.occurrences(); !equalTimes(got, []time.Time{first, first.Add(day)}) {
		t.Errorf("occurrences = %v, want %v and %v", got, first, first.Add(day))
	}
	if !equalTimes(events.posted, []time.Time{first.Add(day)}) {
		t.Errorf("posted events = %v, want only the new occurrence %v", events.posted, first.Add(day))
	}
}
