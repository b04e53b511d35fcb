package obligation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/backoff"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/ledger"
	"github.com/zeni/ledgerflow/workflow"
)

// WorkflowName is the registered name of the recurring workflow.
const WorkflowName = "recurring-obligation"

// PayloadVersion is the current Payload layout.
const PayloadVersion = 1

const stepDelete = "delete"

// Payload starts a recurring workflow. Its instance key is the obligation ID.
type Payload struct {
	Version      int             `json:"version"`
	ObligationID id.ObligationID `json:"obligation_id"`
}

// NewPayload returns a current-version payload for oblID.
func NewPayload(oblID id.ObligationID) Payload {
	return Payload{Version: PayloadVersion, ObligationID: oblID}
}

// Validate checks the payload version and obligation ID.
func (p Payload) Validate() error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("%w: recurring payload version %d, want %d", ledgerflow.ErrInvalidPayload, p.Version, PayloadVersion)
	}
	if p.ObligationID.IsNil() {
		return fmt.Errorf("%w: missing obligation id", ledgerflow.ErrInvalidPayload)
	}
	return nil
}

// Emitter receives obligation lifecycle events. It is satisfied by
// ext.Registry.
type Emitter interface {
	EmitOccurrencePosted(ctx context.Context, o *Obligation, rec *ledger.TransactionRecord)
	EmitObligationDeleted(ctx context.Context, oblID id.ObligationID)
}

type nopEmitter struct{}

func (nopEmitter) EmitOccurrencePosted(context.Context, *Obligation, *ledger.TransactionRecord) {}
func (nopEmitter) EmitObligationDeleted(context.Context, id.ObligationID)                       {}

// Option configures a Recurring workflow.
type Option func(*Recurring)

// WithMaxChunk bounds a single suspension and so the cancellation latency.
func WithMaxChunk(d time.Duration) Option {
	return func(r *Recurring) { r.maxChunk = d }
}

// WithRetry sets the wait between failed posting attempts.
func WithRetry(s backoff.Strategy) Option {
	return func(r *Recurring) { r.retry = s }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(r *Recurring) { r.emitter = e }
}

// Recurring posts an obligation once per interval until it is canceled,
// then deletes it. One instance runs per obligation.
type Recurring struct {
	store    Store
	poster   ledger.Poster
	maxChunk time.Duration
	retry    backoff.Strategy
	emitter  Emitter
}

// NewRecurring creates the recurring workflow.
func NewRecurring(store Store, poster ledger.Poster, opts ...Option) *Recurring {
	r := &Recurring{
		store:    store,
		poster:   poster,
		maxChunk: ledgerflow.DefaultConfig().MaxChunk,
		retry:    backoff.DefaultRetry(),
		emitter:  nopEmitter{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Definition returns the registrable workflow definition.
func (r *Recurring) Definition() *workflow.Definition[Payload] {
	return workflow.NewWorkflow(WorkflowName, r.Run)
}

// Run is the workflow handler.
func (r *Recurring) Run(wf *workflow.Workflow, p Payload) error {
	if err := p.Validate(); err != nil {
		return workflow.Permanent(err)
	}
	ctx := wf.Context()

	o, err := r.store.GetObligation(ctx, p.ObligationID)
	if errors.Is(err, ledgerflow.ErrObligationNotFound) {
		// The row is gone after cleanup; a replay of a finished cleanup is done.
		deleted, doneErr := wf.Done(stepDelete)
		if doneErr != nil {
			return doneErr
		}
		if deleted {
			return nil
		}
		return workflow.Permanent(fmt.Errorf("%w: obligation %s: %w", ledgerflow.ErrInvalidPayload, p.ObligationID, err))
	}
	if err != nil {
		return fmt.Errorf("load obligation %s: %w", p.ObligationID, err)
	}
	if o.IntervalMs <= 0 {
		return workflow.Permanent(fmt.Errorf("%w: obligation %s interval %dms", ledgerflow.ErrInvalidPayload, o.ID, o.IntervalMs))
	}

	m := &machine{
		Recurring: r,
		wf:        wf,
		ob:        o,
		log:       wf.Logger().With(slog.String("obligation_id", o.ID.String())),
		occ:       o.NextOccurrenceAt,
	}
	return m.run()
}

type state int

const (
	stateScheduling state = iota
	stateWaiting
	statePosting
	stateRetrying
	stateCanceled
)

func (s state) String() string {
	switch s {
	case stateScheduling:
		return "scheduling"
	case stateWaiting:
		return "waiting"
	case statePosting:
		return "posting"
	case stateRetrying:
		return "retrying"
	case stateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// machine is one execution of the recurring state machine. occ is the
// occurrence being scheduled or posted; deadline is when it is due.
type machine struct {
	*Recurring

	wf       *workflow.Workflow
	ob       *Obligation
	log      *slog.Logger
	occ      time.Time
	deadline time.Time
	retries  int
}

func (m *machine) run() error {
	st := stateScheduling
	for {
		var (
			next state
			err  error
		)
		switch st {
		case stateScheduling:
			next, err = m.schedule()
		case stateWaiting:
			next, err = m.wait()
		case statePosting:
			next, err = m.post()
		case stateRetrying:
			next, err = m.retrying()
		case stateCanceled:
			return m.cleanup()
		}
		if err != nil {
			return err
		}
		m.log.Debug("recurring transition",
			slog.String("from", st.String()),
			slog.String("to", next.String()),
			slog.Time("occurrence_at", m.occ),
		)
		st = next
	}
}

// schedule resolves the due time of the current occurrence. The first
// occurrence is due at its own instant; later ones are due one interval
// after the previous posting, as memoized when that posting succeeded.
func (m *machine) schedule() (state, error) {
	occ := m.occ
	deadline, err := workflow.StepWithResult(m.wf, stepName("schedule", occ), func(context.Context) (time.Time, error) {
		return occ, nil
	})
	if err != nil {
		return 0, err
	}
	m.deadline = deadline
	if !deadline.After(m.wf.Now()) {
		return statePosting, nil
	}
	return stateWaiting, nil
}

func (m *machine) wait() (state, error) {
	outcome, err := m.wf.WaitUntil(m.deadline, m.canceled, m.maxChunk)
	if err != nil {
		return 0, err
	}
	if outcome == workflow.WaitCanceled {
		return stateCanceled, nil
	}
	return statePosting, nil
}

func (m *machine) post() (state, error) {
	ctx := m.wf.Context()
	canceled, err := m.canceled(ctx)
	if err != nil {
		return 0, err
	}
	if canceled {
		return stateCanceled, nil
	}

	occ := m.occ
	_, err = workflow.StepWithResult(m.wf, stepName("post", occ), func(ctx context.Context) (*ledger.TransactionRecord, error) {
		rec, created, postErr := m.poster.PostLedgerTransaction(ctx, m.ob.PostRequest(occ))
		if postErr != nil {
			return nil, postErr
		}
		if created {
			m.emitter.EmitOccurrencePosted(ctx, m.ob, rec)
		}
		return rec, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		m.retries++
		m.log.Warn("posting failed, retrying",
			slog.Time("occurrence_at", occ),
			slog.Int("retry", m.retries),
			slog.String("error", err.Error()),
		)
		return stateRetrying, nil
	}
	m.retries = 0

	interval := m.ob.Interval()
	next := occ.Add(interval)
	if _, err := workflow.StepWithResult(m.wf, stepName("schedule", next), func(context.Context) (time.Time, error) {
		return m.wf.Now().Add(interval), nil
	}); err != nil {
		return 0, err
	}

	if err := m.wf.Step(stepName("advance", occ), func(ctx context.Context) error {
		advanced, advErr := m.store.AdvanceOccurrence(ctx, m.ob.ID, occ, next)
		if advErr != nil {
			return advErr
		}
		if !advanced {
			m.log.Debug("occurrence already advanced", slog.Time("occurrence_at", occ))
		}
		return nil
	}); err != nil {
		return 0, err
	}

	m.occ = next
	return stateScheduling, nil
}

// retrying is the Retrying state: a cancelable wait before posting the same
// occurrence again.
func (m *machine) retrying() (state, error) {
	deadline := m.wf.Now().Add(m.retry.Delay(m.retries))
	outcome, err := m.wf.WaitUntil(deadline, m.canceled, m.maxChunk)
	if err != nil {
		return 0, err
	}
	if outcome == workflow.WaitCanceled {
		return stateCanceled, nil
	}
	return statePosting, nil
}

func (m *machine) cleanup() error {
	err := m.wf.Step(stepDelete, func(ctx context.Context) error {
		if err := m.store.DeleteObligation(ctx, m.ob.ID); err != nil {
			return err
		}
		m.emitter.EmitObligationDeleted(ctx, m.ob.ID)
		return nil
	})
	if err != nil {
		return err
	}
	m.log.Info("obligation canceled and removed")
	return nil
}

// canceled is the cancel check of every wait. A missing row counts as
// canceled so the workflow exits.
func (m *machine) canceled(ctx context.Context) (bool, error) {
	st, err := ReadStatus(ctx, m.store, m.ob.ID)
	if err != nil {
		return false, fmt.Errorf("read obligation status: %w", err)
	}
	return st == StatusCanceled || st == StatusNotFound, nil
}

func stepName(kind string, occ time.Time) string {
	return fmt.Sprintf("%s:%d", kind, occ.UnixMilli())
}
