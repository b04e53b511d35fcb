package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
)

// Service is the Ledger Posting Service.
type Service struct {
	store  Store
	logger *slog.Logger
}

// Compile-time interface check.
var _ Poster = (*Service)(nil)

// NewService creates a posting service over store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// PostLedgerTransaction posts one occurrence. A repeated request for the
// same occurrence returns the existing record with created false.
func (s *Service) PostLedgerTransaction(ctx context.Context, req PostRequest) (*TransactionRecord, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	rec := &TransactionRecord{
		Entity:       ledgerflow.NewEntity(),
		ID:           id.NewTransactionID(),
		LedgerID:     req.LedgerID,
		CategoryID:   req.CategoryID,
		ObligationID: req.ObligationID,
		OccurrenceAt: req.OccurrenceAt.UTC(),
		Amount:       req.Amount,
		Kind:         req.Kind,
		Note:         req.Note,
	}

	stored, created, err := s.store.RecordPosting(ctx, rec)
	if err != nil {
		return nil, false, fmt.Errorf("record posting for obligation %s at %s: %w",
			req.ObligationID, req.OccurrenceAt.Format(time.RFC3339), err)
	}

	if created {
		s.logger.Info("ledger transaction posted",
			slog.String("txn_id", stored.ID.String()),
			slog.String("ledger_id", stored.LedgerID),
			slog.String("obligation_id", stored.ObligationID.String()),
			slog.Time("occurrence_at", stored.OccurrenceAt),
			slog.String("amount", stored.Amount.String()),
			slog.String("kind", string(stored.Kind)),
		)
	} else {
		s.logger.Debug("ledger transaction already posted",
			slog.String("txn_id", stored.ID.String()),
			slog.String("obligation_id", stored.ObligationID.String()),
		)
	}
	return stored, created, nil
}

// ExpenseTotal returns the total expense of a ledger for occurrences in
// [from, to).
func (s *Service) ExpenseTotal(ctx context.Context, ledgerID string, from, to time.Time) (decimal.Decimal, error) {
	if !to.After(from) {
		return decimal.Zero, nil
	}
	total, err := s.store.SumExpenses(ctx, ledgerID, from.UTC(), to.UTC())
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses of ledger %s: %w", ledgerID, err)
	}
	return total, nil
}

// Balance returns the aggregate of a ledger.
func (s *Service) Balance(ctx context.Context, ledgerID string) (*Balance, error) {
	return s.store.GetBalance(ctx, ledgerID)
}
