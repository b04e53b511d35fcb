package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/backoff"
	"github.com/zeni/ledgerflow/clock"
	"github.com/zeni/ledgerflow/cron"
	"github.com/zeni/ledgerflow/engine"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/invitation"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/notify"
	"github.com/zeni/ledgerflow/obligation"
	"github.com/zeni/ledgerflow/store/memory"
	"github.com/zeni/ledgerflow/workflow"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, s *memory.Store, opts ...engine.Option) *engine.Engine {
	t.Helper()
	opts = append([]engine.Option{
		engine.WithLogger(quietLogger()),
		engine.WithWaitPollInterval(5 * time.Millisecond),
	}, opts...)
	eng, err := engine.New(s, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func startEngine(t *testing.T, eng *engine.Engine) {
	t.Helper()
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
}

func waitRun(t *testing.T, eng *engine.Engine, runID id.RunID) *workflow.Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := eng.Wait(ctx, runID)
	if err != nil {
		t.Fatalf("Wait(%s): %v", runID, err)
	}
	return run
}

func topics(msgs []notify.Message) string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Topic
	}
	return strings.Join(out, ",")
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestNew_NilStore(t *testing.T) {
	_, err := engine.New(nil)
	if !errors.Is(err, ledgerflow.ErrNoStore) {
		t.Fatalf("New(nil) error = %v, want %v", err, ledgerflow.ErrNoStore)
	}
}

func TestNew_NormalizesConfigAndRegistersJobs(t *testing.T) {
	eng := newEngine(t, memory.New(), engine.WithConfig(ledgerflow.Config{MaxChunk: time.Hour}))

	cfg := eng.Config()
	if cfg.MaxChunk != time.Hour {
		t.Errorf("MaxChunk = %v, want %v", cfg.MaxChunk, time.Hour)
	}
	if cfg.ReminderDelay != ledgerflow.DefaultConfig().ReminderDelay {
		t.Errorf("ReminderDelay = %v, want default %v", cfg.ReminderDelay, ledgerflow.DefaultConfig().ReminderDelay)
	}

	entries := eng.Scheduler().Entries()
	if len(entries) != 2 {
		t.Fatalf("scheduler entries = %d, want 2", len(entries))
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	if !names[cron.JobRedeliver] || !names[cron.JobReconcile] {
		t.Errorf("scheduler entries = %v, want %q and %q", names, cron.JobRedeliver, cron.JobReconcile)
	}

	if got := eng.WorkflowRunner().Registry().Names(); len(got) != 2 {
		t.Errorf("registered workflows = %v, want 2", got)
	}
}

// ──────────────────────────────────────────────────
// Recurring obligations
// ──────────────────────────────────────────────────

func TestCreateObligation_PostsEachOccurrenceUntilCanceled(t *testing.T) {
	s := memory.New()
	clk := clock.NewFake(t0)
	eng := newEngine(t, s,
		engine.WithClock(clk),
		engine.WithConfig(ledgerflow.Config{MaxChunk: 24 * time.Hour}),
	)

	interval := 7 * 24 * time.Hour
	o := obligation.New("owner-1", "ledger-1", "rent", decimal.RequireFromString("100.50"),
		ledger.KindExpense, t0, interval, "rent")

	// Cancel once the third occurrence has been posted.
	var once sync.Once
	clk.OnSleep(func(_, after time.Time) {
		if after.After(t0.Add(2 * interval)) {
			once.Do(func() {
				if err := eng.CancelObligation(context.Background(), o.ID); err != nil {
					t.Errorf("CancelObligation: %v", err)
				}
			})
		}
	})

	startEngine(t, eng)
	run, err := eng.CreateObligation(context.Background(), o)
	if err != nil {
		t.Fatalf("CreateObligation: %v", err)
	}
	if run.InstanceKey != o.ID.String() {
		t.Errorf("run.InstanceKey = %q, want %q", run.InstanceKey, o.ID.String())
	}

	final := waitRun(t, eng, run.ID)
	if final.State != workflow.RunStateCompleted {
		t.Fatalf("run state = %q, want %q (error %q)", final.State, workflow.RunStateCompleted, final.Error)
	}

	txns, err := s.ListTransactions(context.Background(), "ledger-1")
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 3 {
		t.Fatalf("transactions = %d, want 3", len(txns))
	}
	for i, txn := range txns {
		want := t0.Add(time.Duration(i) * interval)
		if !txn.OccurrenceAt.Equal(want) {
			t.Errorf("txns[%d].OccurrenceAt = %v, want %v", i, txn.OccurrenceAt, want)
		}
	}

	bal, err := eng.Ledger().Balance(context.Background(), "ledger-1")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if want := decimal.RequireFromString("-301.50"); !bal.Net().Equal(want) {
		t.Errorf("balance net = %s, want %s", bal.Net(), want)
	}

	if _, err := s.GetObligation(context.Background(), o.ID); !errors.Is(err, ledgerflow.ErrObligationNotFound) {
		t.Errorf("GetObligation after cleanup error = %v, want %v", err, ledgerflow.ErrObligationNotFound)
	}
}

func TestCreateObligation_RejectsInvalid(t *testing.T) {
	eng := newEngine(t, memory.New())
	o := obligation.New("owner-1", "ledger-1", "rent", decimal.NewFromInt(10),
		ledger.KindExpense, t0, 0, "")

	if _, err := eng.CreateObligation(context.Background(), o); !errors.Is(err, ledgerflow.ErrInvalidObligation) {
		t.Fatalf("CreateObligation error = %v, want %v", err, ledgerflow.ErrInvalidObligation)
	}
}

func TestStartRecurringWorkflow_Idempotent(t *testing.T) {
	s := memory.New()
	eng := newEngine(t, s)
	o := obligation.New("owner-1", "ledger-1", "rent", decimal.NewFromInt(10),
		ledger.KindIncome, t0, time.Hour, "")
	if err := s.CreateObligation(context.Background(), o); err != nil {
		t.Fatalf("CreateObligation: %v", err)
	}

	first, err := eng.StartRecurringWorkflow(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("StartRecurringWorkflow: %v", err)
	}
	second, err := eng.StartRecurringWorkflow(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("StartRecurringWorkflow again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second run ID = %s, want %s", second.ID, first.ID)
	}
	if second.State != workflow.RunStateRunning {
		t.Errorf("run state = %q, want %q", second.State, workflow.RunStateRunning)
	}
}

func TestStopInterruptsAndStartResumes(t *testing.T) {
	s := memory.New()
	first := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	o := obligation.New("owner-1", "ledger-1", "salary", decimal.NewFromInt(2500),
		ledger.KindIncome, first, 24*time.Hour, "")

	// The first engine waits on the wall clock and is stopped mid-wait.
	eng1 := newEngine(t, s)
	if err := eng1.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	run, err := eng1.CreateObligation(context.Background(), o)
	if err != nil {
		t.Fatalf("CreateObligation: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for !eng1.WorkflowRunner().IsActive(run.ID) {
		if time.Now().After(deadline) {
			t.Fatal("run never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := eng1.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got, err := s.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.State != workflow.RunStateRunning {
		t.Fatalf("run state after Stop = %q, want %q", got.State, workflow.RunStateRunning)
	}
	if eng1.WorkflowRunner().IsActive(run.ID) {
		t.Error("run still active after Stop")
	}

	// The second engine resumes the run once the occurrence is due and the
	// owner cancels during the following wait.
	clk := clock.NewFake(first)
	eng2 := newEngine(t, s, engine.WithClock(clk))
	var once sync.Once
	clk.OnSleep(func(_, _ time.Time) {
		once.Do(func() {
			if err := eng2.CancelObligation(context.Background(), o.ID); err != nil {
				t.Errorf("CancelObligation: %v", err)
			}
		})
	})
	startEngine(t, eng2)

	final := waitRun(t, eng2, run.ID)
	if final.State != workflow.RunStateCompleted {
		t.Fatalf("run state = %q, want %q (error %q)", final.State, workflow.RunStateCompleted, final.Error)
	}
	txns, err := s.ListTransactions(context.Background(), "ledger-1")
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txns))
	}
	if !txns[0].OccurrenceAt.Equal(first) {
		t.Errorf("OccurrenceAt = %v, want %v", txns[0].OccurrenceAt, first)
	}
}

func TestReconcile_StartsMissingWorkflows(t *testing.T) {
	s := memory.New()
	clk := clock.NewFake(t0)
	eng := newEngine(t, s, engine.WithClock(clk))

	o := obligation.New("owner-1", "ledger-1", "gym", decimal.NewFromInt(30),
		ledger.KindExpense, t0.Add(24*time.Hour), 30*24*time.Hour, "")
	if err := s.CreateObligation(context.Background(), o); err != nil {
		t.Fatalf("CreateObligation: %v", err)
	}
	if err := s.CancelObligation(context.Background(), o.ID); err != nil {
		t.Fatalf("CancelObligation: %v", err)
	}

	n, err := eng.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if n != 1 {
		t.Errorf("Reconcile started %d, want 1", n)
	}
	n, err = eng.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile again: %v", err)
	}
	if n != 0 {
		t.Errorf("second Reconcile started %d, want 0", n)
	}

	run, err := s.GetRunByKey(context.Background(), obligation.WorkflowName, o.ID.String())
	if err != nil {
		t.Fatalf("GetRunByKey: %v", err)
	}

	// Runs prepared before Start execute once the engine starts.
	startEngine(t, eng)
	final := waitRun(t, eng, run.ID)
	if final.State != workflow.RunStateCompleted {
		t.Fatalf("run state = %q, want %q (error %q)", final.State, workflow.RunStateCompleted, final.Error)
	}
	if _, err := s.GetObligation(context.Background(), o.ID); !errors.Is(err, ledgerflow.ErrObligationNotFound) {
		t.Errorf("GetObligation error = %v, want %v", err, ledgerflow.ErrObligationNotFound)
	}
	if clk.Slept() != 0 {
		t.Errorf("slept %v, want 0 for an already canceled obligation", clk.Slept())
	}
}

func TestRedeliver_HonorsBackoff(t *testing.T) {
	tests := []struct {
		name     string
		backoff  backoff.Strategy
		launched int
	}{
		{name: "within backoff", backoff: backoff.NewConstant(time.Hour), launched: 0},
		{name: "backoff elapsed", backoff: backoff.NewConstant(0), launched: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			eng := newEngine(t, s, engine.WithBackoff(tt.backoff))
			startEngine(t, eng)

			// A run for an obligation that no longer exists fails permanently
			// once it executes.
			input, err := json.Marshal(obligation.NewPayload(id.NewObligationID()))
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}
			run, err := eng.WorkflowRunner().Prepare(context.Background(), obligation.WorkflowName, "missing", input)
			if err != nil {
				t.Fatalf("Prepare: %v", err)
			}
			run.Attempts = 1
			if err := s.UpdateRun(context.Background(), run); err != nil {
				t.Fatalf("UpdateRun: %v", err)
			}

			n, err := eng.Redeliver(context.Background())
			if err != nil {
				t.Fatalf("Redeliver: %v", err)
			}
			if n != tt.launched {
				t.Fatalf("Redeliver launched %d, want %d", n, tt.launched)
			}
			if tt.launched == 0 {
				return
			}
			final := waitRun(t, eng, run.ID)
			if final.State != workflow.RunStateFailed {
				t.Errorf("run state = %q, want %q", final.State, workflow.RunStateFailed)
			}
		})
	}
}

func TestRedeliver_BackoffRunsOnEngineClock(t *testing.T) {
	s := memory.New()
	clk := clock.NewFake(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	eng := newEngine(t, s, engine.WithClock(clk), engine.WithBackoff(backoff.NewConstant(time.Hour)))
	startEngine(t, eng)

	input, err := json.Marshal(obligation.NewPayload(id.NewObligationID()))
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	run, err := eng.WorkflowRunner().Prepare(context.Background(), obligation.WorkflowName, "missing", input)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !run.UpdatedAt.Equal(clk.Now()) {
		t.Fatalf("updated at = %v, want the engine clock %v", run.UpdatedAt, clk.Now())
	}
	run.Attempts = 1
	if err := s.UpdateRun(context.Background(), run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	// The wall clock is far past the fake one; only simulated time counts.
	if n, err := eng.Redeliver(context.Background()); err != nil || n != 0 {
		t.Fatalf("Redeliver before backoff = %d, %v; want 0", n, err)
	}
	clk.Advance(2 * time.Hour)
	if n, err := eng.Redeliver(context.Background()); err != nil || n != 1 {
		t.Fatalf("Redeliver after backoff = %d, %v; want 1", n, err)
	}
	if final := waitRun(t, eng, run.ID); final.State != workflow.RunStateFailed {
		t.Errorf("run state = %q, want %q", final.State, workflow.RunStateFailed)
	}
}

// ──────────────────────────────────────────────────
// Invitations
// ──────────────────────────────────────────────────

func newInviteEngine(t *testing.T, s *memory.Store, clk *clock.Fake, outbox *notify.Outbox) *engine.Engine {
	t.Helper()
	return newEngine(t, s,
		engine.WithClock(clk),
		engine.WithNotifier(outbox),
		engine.WithConfig(ledgerflow.Config{
			ReminderDelay: 24 * time.Hour,
			DecisionDelay: 72 * time.Hour,
			MaxChunk:      12 * time.Hour,
		}),
	)
}

func TestInvite_RemindsThenDeclines(t *testing.T) {
	s := memory.New()
	clk := clock.NewFake(t0)
	outbox := notify.NewOutbox()
	eng := newInviteEngine(t, s, clk, outbox)
	startEngine(t, eng)

	req := engine.InviteRequest{
		LedgerID:     "ledger-1",
		Email:        "Bob@Example.com",
		InviterID:    "alice",
		InviterEmail: "alice@example.com",
	}
	invID, run, err := eng.Invite(context.Background(), req)
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	final := waitRun(t, eng, run.ID)
	if final.State != workflow.RunStateCompleted {
		t.Fatalf("run state = %q, want %q (error %q)", final.State, workflow.RunStateCompleted, final.Error)
	}

	inv, err := s.GetInvitation(context.Background(), invID)
	if err != nil {
		t.Fatalf("GetInvitation: %v", err)
	}
	if inv.Status != invitation.StatusDeclined {
		t.Errorf("status = %q, want %q", inv.Status, invitation.StatusDeclined)
	}
	if inv.Email != "bob@example.com" {
		t.Errorf("email = %q, want %q", inv.Email, "bob@example.com")
	}
	if inv.DecidedAt == nil || !inv.DecidedAt.Equal(t0.Add(96*time.Hour)) {
		t.Errorf("DecidedAt = %v, want %v", inv.DecidedAt, t0.Add(96*time.Hour))
	}

	want := strings.Join([]string{invitation.TopicInvite, invitation.TopicReminder, invitation.TopicDeclined}, ",")
	if got := topics(outbox.Messages()); got != want {
		t.Errorf("messages = %q, want %q", got, want)
	}

	// A declined invitation no longer blocks a new one.
	if _, _, err := eng.Invite(context.Background(), req); err != nil {
		t.Errorf("Invite after decline: %v", err)
	}
}

func TestAcceptInvitation_SkipsDecline(t *testing.T) {
	s := memory.New()
	clk := clock.NewFake(t0)
	outbox := notify.NewOutbox()
	eng := newInviteEngine(t, s, clk, outbox)

	var (
		invMu sync.Mutex
		invID id.InvitationID
		once  sync.Once
	)
	clk.OnSleep(func(_, after time.Time) {
		if after.Before(t0.Add(30 * time.Hour)) {
			return
		}
		once.Do(func() {
			invMu.Lock()
			target := invID
			invMu.Unlock()
			if err := eng.AcceptInvitation(context.Background(), target); err != nil {
				t.Errorf("AcceptInvitation: %v", err)
			}
		})
	})

	// Prepare before Start so the invitation ID is known before any sleep.
	p := invitation.Payload{
		Version:      invitation.PayloadVersion,
		InvitationID: id.NewInvitationID(),
		LedgerID:     "ledger-1",
		Email:        "bob@example.com",
		InviterID:    "alice",
		InviterEmail: "alice@example.com",
	}
	invMu.Lock()
	invID = p.InvitationID
	invMu.Unlock()
	run, err := eng.StartInvitationWorkflow(context.Background(), p)
	if err != nil {
		t.Fatalf("StartInvitationWorkflow: %v", err)
	}
	startEngine(t, eng)

	final := waitRun(t, eng, run.ID)
	if final.State != workflow.RunStateCompleted {
		t.Fatalf("run state = %q, want %q (error %q)", final.State, workflow.RunStateCompleted, final.Error)
	}

	inv, err := s.GetInvitation(context.Background(), p.InvitationID)
	if err != nil {
		t.Fatalf("GetInvitation: %v", err)
	}
	if inv.Status != invitation.StatusAccepted {
		t.Errorf("status = %q, want %q", inv.Status, invitation.StatusAccepted)
	}
	want := strings.Join([]string{invitation.TopicInvite, invitation.TopicReminder}, ",")
	if got := topics(outbox.Messages()); got != want {
		t.Errorf("messages = %q, want %q", got, want)
	}

	// Accepting twice is an invalid transition.
	if err := eng.AcceptInvitation(context.Background(), p.InvitationID); !errors.Is(err, ledgerflow.ErrInvalidTransition) {
		t.Errorf("second AcceptInvitation error = %v, want %v", err, ledgerflow.ErrInvalidTransition)
	}

	// An accepted invitation blocks a new one for the same address.
	_, _, err = eng.Invite(context.Background(), engine.InviteRequest{LedgerID: "ledger-1", Email: "BOB@example.com "})
	if !errors.Is(err, ledgerflow.ErrInvitationExists) {
		t.Errorf("duplicate Invite error = %v, want %v", err, ledgerflow.ErrInvitationExists)
	}
}

func TestStartInvitationWorkflow_Idempotent(t *testing.T) {
	eng := newEngine(t, memory.New())
	p := invitation.Payload{
		InvitationID: id.NewInvitationID(),
		LedgerID:     "ledger-1",
		Email:        "bob@example.com",
	}

	first, err := eng.StartInvitationWorkflow(context.Background(), p)
	if err != nil {
		t.Fatalf("StartInvitationWorkflow: %v", err)
	}
	second, err := eng.StartInvitationWorkflow(context.Background(), p)
	if err != nil {
		t.Fatalf("StartInvitationWorkflow again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second run ID = %s, want %s", second.ID, first.ID)
	}
}

func TestStartInvitationWorkflow_RejectsInvalidPayload(t *testing.T) {
	eng := newEngine(t, memory.New())
	_, err := eng.StartInvitationWorkflow(context.Background(), invitation.Payload{LedgerID: "ledger-1"})
	if !errors.Is(err, ledgerflow.ErrInvalidPayload) {
		t.Fatalf("error = %v, want %v", err, ledgerflow.ErrInvalidPayload)
	}
}

func TestWait_HonorsContext(t *testing.T) {
	s := memory.New()
	eng := newEngine(t, s)
	o := obligation.New("owner-1", "ledger-1", "rent", decimal.NewFromInt(10),
		ledger.KindExpense, t0, time.Hour, "")
	if err := s.CreateObligation(context.Background(), o); err != nil {
		t.Fatalf("CreateObligation: %v", err)
	}
	run, err := eng.StartRecurringWorkflow(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("StartRecurringWorkflow: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	got, err := eng.Wait(ctx, run.ID)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait error = %v, want %v", err, context.DeadlineExceeded)
	}
	if got.State != workflow.RunStateRunning {
		t.Errorf("run state = %q, want %q", got.State, workflow.RunStateRunning)
	}
}
