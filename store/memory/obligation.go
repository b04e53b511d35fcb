package memory

import (
	"context"
	"sort"
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/obligation"
)

func cloneObligation(o *obligation.Obligation) *obligation.Obligation {
	cp := *o
	return &cp
}

// CreateObligation persists a new obligation.
func (m *Store) CreateObligation(_ context.Context, o *obligation.Obligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := o.ID.String()
	if _, exists := m.obligations[key]; exists {
		return ledgerflow.ErrObligationAlreadyExists
	}
	m.obligations[key] = cloneObligation(o)
	return nil
}

// GetObligation retrieves an obligation by ID.
func (m *Store) GetObligation(_ context.Context, oblID id.ObligationID) (*obligation.Obligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.obligations[oblID.String()]
	if !ok {
		return nil, ledgerflow.ErrObligationNotFound
	}
	return cloneObligation(o), nil
}

// ListObligations returns obligations ordered by creation time.
func (m *Store) ListObligations(_ context.Context, opts obligation.ListOpts) ([]*obligation.Obligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*obligation.Obligation, 0, len(m.obligations))
	for _, o := range m.obligations {
		if opts.Status != "" && o.Status != opts.Status {
			continue
		}
		result = append(result, cloneObligation(o))
	}
	sort.Slice(result, func(i, k int) bool {
		if result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].ID.String() < result[k].ID.String()
		}
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return page(result, opts.Offset, opts.Limit), nil
}

// CancelObligation marks an obligation CANCELED.
func (m *Store) CancelObligation(_ context.Context, oblID id.ObligationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obligations[oblID.String()]
	if !ok {
		return ledgerflow.ErrObligationNotFound
	}
	if o.Status != obligation.StatusCanceled {
		o.Status = obligation.StatusCanceled
		o.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// AdvanceOccurrence moves NextOccurrenceAt from from to to.
func (m *Store) AdvanceOccurrence(_ context.Context, oblID id.ObligationID, from, to time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obligations[oblID.String()]
	if !ok {
		return false, ledgerflow.ErrObligationNotFound
	}
	if !o.NextOccurrenceAt.Equal(from) {
		return false, nil
	}
	o.NextOccurrenceAt = to.UTC()
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

// DeleteObligation removes an obligation.
func (m *Store) DeleteObligation(_ context.Context, oblID id.ObligationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.obligations, oblID.String())
	return nil
}
