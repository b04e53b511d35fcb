package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/notify"
	"github.com/zeni/ledgerflow/workflow"
)

// WorkflowName is the registered name of the lifecycle workflow.
const WorkflowName = "invitation-lifecycle"

// PayloadVersion is the current Payload layout.
const PayloadVersion = 1

// Step names, in execution order.
const (
	StepSend   = "send"
	StepRemind = "remind"
	StepDecide = "decide"
)

// Payload starts a lifecycle workflow. Its instance key is the invitation ID.
type Payload struct {
	Version      int             `json:"version"`
	InvitationID id.InvitationID `json:"invitation_id"`
	LedgerID     string          `json:"ledger_id"`
	Email        string          `json:"email"`
	InviterID    string          `json:"inviter_id"`
	InviterEmail string          `json:"inviter_email,omitempty"`
	TargetUserID string          `json:"target_user_id,omitempty"`
}

// Validate checks the payload version and identity fields.
func (p Payload) Validate() error {
	switch {
	case p.Version != PayloadVersion:
		return fmt.Errorf("%w: invitation payload version %d, want %d", ledgerflow.ErrInvalidPayload, p.Version, PayloadVersion)
	case p.InvitationID.IsNil():
		return fmt.Errorf("%w: missing invitation id", ledgerflow.ErrInvalidPayload)
	case p.LedgerID == "" || p.Email == "":
		return fmt.Errorf("%w: missing ledger id or email", ledgerflow.ErrInvalidPayload)
	}
	return nil
}

// Emitter receives invitation lifecycle events. It is satisfied by
// ext.Registry.
type Emitter interface {
	EmitInvitationSent(ctx context.Context, inv *Invitation)
	EmitInvitationReminded(ctx context.Context, inv *Invitation)
	EmitInvitationDeclined(ctx context.Context, inv *Invitation)
}

type nopEmitter struct{}

func (nopEmitter) EmitInvitationSent(context.Context, *Invitation)     {}
func (nopEmitter) EmitInvitationReminded(context.Context, *Invitation) {}
func (nopEmitter) EmitInvitationDeclined(context.Context, *Invitation) {}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithReminderDelay sets T1, the wait between send and reminder.
func WithReminderDelay(d time.Duration) Option {
	return func(l *Lifecycle) { l.reminderDelay = d }
}

// WithDecisionDelay sets T2, the wait between reminder and auto-decline.
func WithDecisionDelay(d time.Duration) Option {
	return func(l *Lifecycle) { l.decisionDelay = d }
}

// WithMaxChunk bounds a single suspension.
func WithMaxChunk(d time.Duration) Option {
	return func(l *Lifecycle) { l.maxChunk = d }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(l *Lifecycle) { l.emitter = e }
}

// Lifecycle sends an invitation, reminds the invitee once after the
// reminder delay, and declines the invitation if it is still pending after
// the decision delay.
type Lifecycle struct {
	store         Store
	notifier      notify.Notifier
	reminderDelay time.Duration
	decisionDelay time.Duration
	maxChunk      time.Duration
	emitter       Emitter
}

// NewLifecycle creates the lifecycle workflow.
func NewLifecycle(store Store, notifier notify.Notifier, opts ...Option) *Lifecycle {
	cfg := ledgerflow.DefaultConfig()
	l := &Lifecycle{
		store:         store,
		notifier:      notifier,
		reminderDelay: cfg.ReminderDelay,
		decisionDelay: cfg.DecisionDelay,
		maxChunk:      cfg.MaxChunk,
		emitter:       nopEmitter{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Definition returns the registrable workflow definition.
func (l *Lifecycle) Definition() *workflow.Definition[Payload] {
	return workflow.NewWorkflow(WorkflowName, l.Run)
}

// Run is the workflow handler. The reminder wait is measured from the
// persisted send time and the decision wait from the persisted reminder
// time, so replays do not extend them and a late reminder still leaves the
// invitee the full decision delay.
func (l *Lifecycle) Run(wf *workflow.Workflow, p Payload) error {
	if err := p.Validate(); err != nil {
		return workflow.Permanent(err)
	}
	p.Email = NormalizeEmail(p.Email)
	log := wf.Logger().With(slog.String("invitation_id", p.InvitationID.String()))

	// Sent
	sentAt, err := workflow.StepWithResult(wf, StepSend, func(ctx context.Context) (time.Time, error) {
		return l.send(ctx, wf, p, log)
	})
	if err != nil {
		return err
	}

	// ReminderWindow
	reminderAt := sentAt.Add(l.reminderDelay)
	if _, err := wf.WaitUntil(reminderAt, workflow.NeverCancel, l.maxChunk); err != nil {
		return err
	}

	// Reminded
	remindedAt, err := workflow.StepWithResult(wf, StepRemind, func(ctx context.Context) (time.Time, error) {
		return l.remind(ctx, wf, p, log)
	})
	if err != nil {
		return err
	}
	if remindedAt.IsZero() {
		// Checkpoint written before the step carried its time.
		remindedAt = reminderAt
	}

	// DecisionWindow
	decisionAt := remindedAt.Add(l.decisionDelay)
	if _, err := wf.WaitUntil(decisionAt, workflow.NeverCancel, l.maxChunk); err != nil {
		return err
	}

	// Decided
	return wf.Step(StepDecide, func(ctx context.Context) error {
		return l.decide(ctx, wf, p, log)
	})
}

func (l *Lifecycle) send(ctx context.Context, wf *workflow.Workflow, p Payload, log *slog.Logger) (time.Time, error) {
	inv := &Invitation{
		Entity:       ledgerflow.NewEntity(),
		ID:           p.InvitationID,
		LedgerID:     p.LedgerID,
		Email:        p.Email,
		InviterID:    p.InviterID,
		TargetUserID: p.TargetUserID,
		Status:       StatusPending,
		SentAt:       wf.Now(),
	}

	err := l.store.CreateInvitation(ctx, inv)
	if errors.Is(err, ledgerflow.ErrInvitationExists) {
		// An earlier attempt may have created the row before crashing.
		existing, getErr := l.store.GetInvitation(ctx, p.InvitationID)
		switch {
		case errors.Is(getErr, ledgerflow.ErrInvitationNotFound):
			return time.Time{}, workflow.Permanent(err)
		case getErr != nil:
			return time.Time{}, getErr
		}
		inv = existing
	} else if err != nil {
		return time.Time{}, err
	}

	notify.Deliver(ctx, l.notifier, log, inviteMessage(wf, p))
	l.emitter.EmitInvitationSent(ctx, inv)
	log.Info("invitation sent", slog.String("ledger_id", p.LedgerID))
	return inv.SentAt, nil
}

// remind sends the reminder and returns when it was sent. A skipped reminder
// returns the current time.
func (l *Lifecycle) remind(ctx context.Context, wf *workflow.Workflow, p Payload, log *slog.Logger) (time.Time, error) {
	inv, err := l.store.GetInvitation(ctx, p.InvitationID)
	if errors.Is(err, ledgerflow.ErrInvitationNotFound) {
		log.Info("invitation gone, skipping reminder")
		return wf.Now(), nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if inv.Status != StatusPending {
		log.Debug("invitation answered, skipping reminder", slog.String("status", string(inv.Status)))
		return wf.Now(), nil
	}
	if inv.RemindedAt != nil {
		// An earlier attempt got as far as marking the row.
		return *inv.RemindedAt, nil
	}

	notify.Deliver(ctx, l.notifier, log, reminderMessage(wf, p))
	now := wf.Now()
	if err := l.store.MarkReminded(ctx, inv.ID, now); err != nil {
		return time.Time{}, err
	}
	inv.RemindedAt = &now
	l.emitter.EmitInvitationReminded(ctx, inv)
	return now, nil
}

func (l *Lifecycle) decide(ctx context.Context, wf *workflow.Workflow, p Payload, log *slog.Logger) error {
	now := wf.Now()
	declined, err := l.store.DeclineIfPending(ctx, p.InvitationID, now)
	if errors.Is(err, ledgerflow.ErrInvitationNotFound) {
		log.Info("invitation gone, nothing to decide")
		return nil
	}
	if err != nil {
		return err
	}
	if !declined {
		log.Debug("invitation answered before the decision deadline")
		return nil
	}

	inv, err := l.store.GetInvitation(ctx, p.InvitationID)
	if err != nil {
		return err
	}
	if p.InviterEmail != "" {
		notify.Deliver(ctx, l.notifier, log, declinedMessage(wf, p, p.InviterEmail))
	}
	l.emitter.EmitInvitationDeclined(ctx, inv)
	log.Info("invitation auto-declined")
	return nil
}
