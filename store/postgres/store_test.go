package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/invitation"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/obligation"
	"github.com/zeni/ledgerflow/workflow"
)

// openTestStore connects to LEDGERFLOW_TEST_POSTGRES_DSN, skipping the test
// when it is unset. Tests use fresh IDs so they can share one database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("LEDGERFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGERFLOW_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestPageClause(t *testing.T) {
	tests := []struct {
		limit, offset int
		want          string
	}{
		{0, 0, ""},
		{10, 0, " LIMIT 10"},
		{0, 5, " OFFSET 5"},
		{10, 5, " LIMIT 10 OFFSET 5"},
	}
	for _, tt := range tests {
		if got := pageClause(tt.limit, tt.offset); got != tt.want {
			t.Errorf("pageClause(%d, %d) = %q, want %q", tt.limit, tt.offset, got, tt.want)
		}
	}
}

func TestRunsAndCheckpoints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &workflow.Run{
		Entity:      ledgerflow.NewEntity(),
		ID:          id.NewRunID(),
		Name:        "recurring-obligation",
		InstanceKey: id.NewObligationID().String(),
		Version:     1,
		State:       workflow.RunStateRunning,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	dup := *run
	dup.ID = id.NewRunID()
	if err := s.CreateRun(ctx, &dup); !errors.Is(err, ledgerflow.ErrRunAlreadyExists) {
		t.Fatalf("expected ErrRunAlreadyExists, got %v", err)
	}

	for _, step := range []string{"schedule:1", "post:1"} {
		if err := s.SaveCheckpoint(ctx, run.ID, step, []byte(`null`)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveCheckpoint(ctx, run.ID, "schedule:1", []byte(`"other"`)); err != nil {
		t.Fatal(err)
	}
	data, err := s.GetCheckpoint(ctx, run.ID, "schedule:1")
	if err != nil || string(data) != "null" {
		t.Fatalf("GetCheckpoint = %q, %v", data, err)
	}
	cps, err := s.ListCheckpoints(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cps) != 2 || cps[0].StepName != "schedule:1" {
		t.Fatalf("checkpoints = %+v", cps)
	}
}

func TestObligationAdvanceAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	o := obligation.New("usr_1", id.NewTransactionID().String(), "cat_rent",
		decimal.RequireFromString("1200.50"), ledger.KindExpense, first, 24*time.Hour, "")
	if err := s.CreateObligation(ctx, o); err != nil {
		t.Fatal(err)
	}

	ok, err := s.AdvanceOccurrence(ctx, o.ID, first, first.Add(24*time.Hour))
	if err != nil || !ok {
		t.Fatalf("advance = %v, %v", ok, err)
	}
	ok, err = s.AdvanceOccurrence(ctx, o.ID, first, first.Add(24*time.Hour))
	if err != nil || ok {
		t.Fatalf("repeated advance = %v, %v", ok, err)
	}

	got, err := s.GetObligation(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Amount.Equal(o.Amount) {
		t.Fatalf("amount = %s, want %s", got.Amount, o.Amount)
	}

	if err := s.DeleteObligation(ctx, o.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AdvanceOccurrence(ctx, o.ID, first, first); !errors.Is(err, ledgerflow.ErrObligationNotFound) {
		t.Fatalf("expected ErrObligationNotFound, got %v", err)
	}
}

func TestInvitationLiveUniqueness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ledgerID := id.NewTransactionID().String()

	newInv := func() *invitation.Invitation {
		return &invitation.Invitation{
			Entity:   ledgerflow.NewEntity(),
			ID:       id.NewInvitationID(),
			LedgerID: ledgerID,
			Email:    "Dana@Example.com",
			Status:   invitation.StatusPending,
			SentAt:   time.Now().UTC(),
		}
	}

	inv := newInv()
	if err := s.CreateInvitation(ctx, inv); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateInvitation(ctx, newInv()); !errors.Is(err, ledgerflow.ErrInvitationExists) {
		t.Fatalf("expected ErrInvitationExists, got %v", err)
	}

	declined, err := s.DeclineIfPending(ctx, inv.ID, time.Now())
	if err != nil || !declined {
		t.Fatalf("DeclineIfPending = %v, %v", declined, err)
	}
	if err := s.AcceptInvitation(ctx, inv.ID, time.Now()); !errors.Is(err, ledgerflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.CreateInvitation(ctx, newInv()); err != nil {
		t.Fatalf("re-invite after decline: %v", err)
	}
}

func TestRecordPostingAppliesOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ledgerID := id.NewTransactionID().String()
	occ := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	oblID := id.NewObligationID()

	newTxn := func() *ledger.TransactionRecord {
		return &ledger.TransactionRecord{
			Entity:       ledgerflow.NewEntity(),
			ID:           id.NewTransactionID(),
			LedgerID:     ledgerID,
			CategoryID:   "cat_food",
			ObligationID: oblID,
			OccurrenceAt: occ,
			Amount:       decimal.RequireFromString("19.99"),
			Kind:         ledger.KindExpense,
		}
	}

	first, created, err := s.RecordPosting(ctx, newTxn())
	if err != nil || !created {
		t.Fatalf("first posting = %v, %v", created, err)
	}
	second, created, err := s.RecordPosting(ctx, newTxn())
	if err != nil || created {
		t.Fatalf("second posting = %v, %v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("second id = %s, want %s", second.ID, first.ID)
	}

	bal, err := s.GetBalance(ctx, ledgerID)
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("-19.99"); !bal.Net().Equal(want) {
		t.Fatalf("net = %s, want %s", bal.Net(), want)
	}
	sum, err := s.SumExpenses(ctx, ledgerID, occ, occ.Add(time.Millisecond))
	if err != nil || !sum.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("SumExpenses = %s, %v", sum, err)
	}
}
