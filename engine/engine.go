package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zeni/ledgerflow"
	"github.com/zeni/ledgerflow/backoff"
	"github.com/zeni/ledgerflow/clock"
	"github.com/zeni/ledgerflow/cron"
	"github.com/zeni/ledgerflow/ext"
	"github.com/zeni/ledgerflow/id"
	"github.com/zeni/ledgerflow/invitation"
	"github.com/zeni/ledgerflow/ledger"
	mw "github.com/zeni/ledgerflow/middleware"
	"github.com/zeni/ledgerflow/notify"
	"github.com/zeni/ledgerflow/obligation"
	"github.com/zeni/ledgerflow/observability"
	"github.com/zeni/ledgerflow/store"
	"github.com/zeni/ledgerflow/workflow"
)

const instrumentationName = "github.com/zeni/ledgerflow"

// Engine runs ledgerflow workflows against a store.
type Engine struct {
	store      store.Store
	config     ledgerflow.Config
	logger     *slog.Logger
	clock      clock.Clock
	notifier   notify.Notifier
	extensions *ext.Registry
	pendingExt []ext.Extension
	mws        []mw.Middleware
	redelivery backoff.Strategy
	stepLimit  time.Duration
	pollEvery  time.Duration

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	wfRegistry *workflow.Registry
	runner     *workflow.Runner
	ledger     *ledger.Service
	recurring  *obligation.Recurring
	lifecycle  *invitation.Lifecycle
	scheduler  *cron.Scheduler

	mu      sync.Mutex
	runCtx  context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock sets the clock workflows wait against. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithNotifier sets where invitation mail is delivered. Defaults to a
// notify.LogNotifier.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithExtension registers a lifecycle extension.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.pendingExt = append(e.pendingExt, x) }
}

// WithMiddleware appends step middleware after the default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithBackoff sets the delay before a run that failed with a transient
// error is redelivered, by attempt number. Defaults to exponential from
// RedeliveryInterval up to one hour.
func WithBackoff(b backoff.Strategy) Option {
	return func(e *Engine) { e.redelivery = b }
}

// WithConfig sets the timing configuration. Zero fields take defaults.
func WithConfig(cfg ledgerflow.Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithStepTimeout bounds each step attempt. Zero disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) { e.stepLimit = d }
}

// WithTracerProvider sets the OTel TracerProvider used by the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets the OTel MeterProvider used by the metrics
// middleware and the observability extension. If not set, the global
// provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// WithWaitPollInterval sets how often Wait re-reads a run. Defaults to 50ms.
func WithWaitPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollEvery = d }
}

// New builds an Engine on s.
func New(s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, ledgerflow.ErrNoStore
	}

	e := &Engine{
		store:     s,
		config:    ledgerflow.DefaultConfig(),
		logger:    slog.Default(),
		clock:     clock.New(),
		pollEvery: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.config = e.config.Normalized()
	e.extensions = ext.NewRegistry(e.logger)
	for _, x := range e.pendingExt {
		e.extensions.Register(x)
	}
	if e.notifier == nil {
		e.notifier = notify.NewLogNotifier(e.logger)
	}
	if e.redelivery == nil {
		e.redelivery = backoff.NewExponential(e.config.RedeliveryInterval, time.Hour)
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if e.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(e.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	e.extensions.Register(obsExt)

	e.ledger = ledger.NewService(s, e.logger)
	e.recurring = obligation.NewRecurring(s, e.ledger,
		obligation.WithMaxChunk(e.config.MaxChunk),
		obligation.WithRetry(backoff.NewConstant(e.config.PostRetryBackoff)),
		obligation.WithEmitter(e.extensions),
	)
	e.lifecycle = invitation.NewLifecycle(s, e.notifier,
		invitation.WithReminderDelay(e.config.ReminderDelay),
		invitation.WithDecisionDelay(e.config.DecisionDelay),
		invitation.WithMaxChunk(e.config.MaxChunk),
		invitation.WithEmitter(e.extensions),
	)

	e.wfRegistry = workflow.NewRegistry()
	workflow.RegisterDefinition(e.wfRegistry, e.recurring.Definition())
	workflow.RegisterDefinition(e.wfRegistry, e.lifecycle.Definition())

	e.runner = workflow.NewRunner(e.wfRegistry, s, e.extensions, e.logger,
		workflow.WithClock(e.clock),
		workflow.WithStepMiddleware(mw.Chain(e.middlewareStack()...)),
	)

	e.scheduler = cron.NewScheduler(e.extensions, e.logger)
	if err := e.scheduler.Add(cron.JobRedeliver, cron.Every(e.config.RedeliveryInterval),
		cron.RedeliverJob(e, e.logger)); err != nil {
		return nil, err
	}
	if err := e.scheduler.Add(cron.JobReconcile, cron.Every(e.config.ReconcileInterval),
		cron.ReconcileJob(e, e.logger)); err != nil {
		return nil, err
	}

	return e, nil
}

// middlewareStack builds recover → tracing → metrics → logging → timeout,
// followed by the user middleware.
func (e *Engine) middlewareStack() []mw.Middleware {
	tracing := mw.Tracing()
	if e.tracerProvider != nil {
		tracing = mw.TracingWithTracer(e.tracerProvider.Tracer(instrumentationName))
	}
	metrics := mw.Metrics()
	if e.meterProvider != nil {
		metrics = mw.MetricsWithMeter(e.meterProvider.Meter(instrumentationName))
	}

	stack := []mw.Middleware{
		mw.Recover(e.logger),
		tracing,
		metrics,
		mw.Logging(e.logger),
		mw.Timeout(e.stepLimit),
	}
	return append(stack, e.mws...)
}

// Start resumes interrupted runs, starts workflows for obligations that
// have none, and begins the periodic redelivery and reconciliation jobs.
// Runs launched from now on execute until Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.runCtx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.group = new(errgroup.Group)
	e.started = true
	e.mu.Unlock()

	n, err := e.redeliver(ctx, true)
	if err != nil {
		e.logger.Warn("failed to resume workflow runs", slog.String("error", err.Error()))
	} else if n > 0 {
		e.logger.Info("resumed workflow runs", slog.Int("runs", n))
	}
	if _, err := e.Reconcile(ctx); err != nil {
		e.logger.Warn("failed to reconcile obligations", slog.String("error", err.Error()))
	}

	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start cron scheduler: %w", err)
	}
	e.logger.Info("ledgerflow engine started",
		slog.Duration("max_chunk", e.config.MaxChunk),
		slog.Any("workflows", e.wfRegistry.Names()),
	)
	return nil
}

// Stop stops the cron jobs and interrupts running workflows at their next
// suspension point. Interrupted runs stay in running state and resume on
// the next Start. It waits up to ShutdownTimeout for them to return.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	cancel, group := e.cancel, e.group
	e.mu.Unlock()

	if err := e.scheduler.Stop(ctx); err != nil {
		e.logger.Error("cron scheduler stop error", slog.String("error", err.Error()))
	}
	cancel()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	timeout := time.NewTimer(e.config.ShutdownTimeout)
	defer timeout.Stop()
	select {
	case <-done:
	case <-timeout.C:
		e.logger.Warn("shutdown timeout exceeded, workflow runs still returning")
	case <-ctx.Done():
		return ctx.Err()
	}

	e.extensions.EmitShutdown(ctx)
	e.logger.Info("ledgerflow engine stopped")
	return nil
}

// launch executes run in the background until Stop. Before Start the run
// stays persisted and is picked up by Start.
func (e *Engine) launch(run *workflow.Run) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return false
	}
	runCtx := e.runCtx
	e.group.Go(func() error {
		if err := e.runner.Resume(runCtx, run.ID); err != nil && !errors.Is(err, ledgerflow.ErrInvalidTransition) {
			e.logger.Error("failed to execute workflow run",
				slog.String("run_id", run.ID.String()),
				slog.String("workflow", run.Name),
				slog.String("error", err.Error()),
			)
		}
		return nil
	})
	return true
}

// ──────────────────────────────────────────────────
// Trigger surface
// ──────────────────────────────────────────────────

// StartRecurringWorkflow starts the recurring workflow of an obligation.
// It is idempotent: an existing run for the obligation is returned, and
// resumed if it is not executing.
func (e *Engine) StartRecurringWorkflow(ctx context.Context, oblID id.ObligationID) (*workflow.Run, error) {
	p := obligation.NewPayload(oblID)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return e.startRun(ctx, obligation.WorkflowName, oblID.String(), p)
}

// StartInvitationWorkflow starts the lifecycle workflow of an invitation.
// It is idempotent per invitation ID.
func (e *Engine) StartInvitationWorkflow(ctx context.Context, p invitation.Payload) (*workflow.Run, error) {
	if p.Version == 0 {
		p.Version = invitation.PayloadVersion
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Email = invitation.NormalizeEmail(p.Email)
	return e.startRun(ctx, invitation.WorkflowName, p.InvitationID.String(), p)
}

func (e *Engine) startRun(ctx context.Context, name, key string, payload any) (*workflow.Run, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for workflow %q: %w", name, err)
	}
	run, err := e.runner.Prepare(ctx, name, key, data)
	if err != nil {
		return nil, err
	}
	if !run.Terminal() && !e.runner.IsActive(run.ID) {
		e.launch(run)
	}
	return run, nil
}

// Redeliver resumes the runs in running state that are not executing here
// and whose redelivery backoff has elapsed. It returns how many it launched.
func (e *Engine) Redeliver(ctx context.Context) (int, error) {
	return e.redeliver(ctx, false)
}

func (e *Engine) redeliver(ctx context.Context, immediate bool) (int, error) {
	pending, err := e.runner.Pending(ctx)
	if err != nil {
		return 0, err
	}

	now := e.clock.Now()
	launched := 0
	for _, run := range pending {
		if !immediate && run.Attempts > 0 && now.Sub(run.UpdatedAt) < e.redelivery.Delay(run.Attempts) {
			continue
		}
		if e.launch(run) {
			launched++
		}
	}
	return launched, nil
}

// Reconcile starts the recurring workflow of every ACTIVE or CANCELED
// obligation that has no run yet. CANCELED ones are started so the
// workflow observes the cancellation and deletes the row.
func (e *Engine) Reconcile(ctx context.Context) (int, error) {
	started := 0
	for _, status := range []obligation.Status{obligation.StatusActive, obligation.StatusCanceled} {
		obls, err := e.store.ListObligations(ctx, obligation.ListOpts{Status: status})
		if err != nil {
			return started, fmt.Errorf("list %s obligations: %w", status, err)
		}
		for _, o := range obls {
			_, err := e.store.GetRunByKey(ctx, obligation.WorkflowName, o.ID.String())
			if err == nil {
				continue
			}
			if !errors.Is(err, ledgerflow.ErrRunNotFound) {
				return started, fmt.Errorf("lookup run of obligation %s: %w", o.ID, err)
			}
			if _, err := e.StartRecurringWorkflow(ctx, o.ID); err != nil {
				return started, err
			}
			e.logger.Info("started missing recurring workflow",
				slog.String("obligation_id", o.ID.String()),
				slog.String("status", string(status)),
			)
			started++
		}
	}
	return started, nil
}

// ──────────────────────────────────────────────────
// User actions
// ──────────────────────────────────────────────────

// CreateObligation persists an ACTIVE obligation and starts its recurring
// workflow.
func (e *Engine) CreateObligation(ctx context.Context, o *obligation.Obligation) (*workflow.Run, error) {
	if o.Status == "" {
		o.Status = obligation.StatusActive
	}
	if o.Status != obligation.StatusActive {
		return nil, fmt.Errorf("%w: new obligation must be %s, got %s",
			ledgerflow.ErrInvalidObligation, obligation.StatusActive, o.Status)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := e.store.CreateObligation(ctx, o); err != nil {
		return nil, err
	}
	e.extensions.EmitObligationCreated(ctx, o)
	e.logger.Info("obligation created",
		slog.String("obligation_id", o.ID.String()),
		slog.String("ledger_id", o.LedgerID),
		slog.Time("first_occurrence_at", o.NextOccurrenceAt),
		slog.Duration("interval", o.Interval()),
	)
	return e.StartRecurringWorkflow(ctx, o.ID)
}

// CancelObligation marks an obligation CANCELED. Its workflow observes the
// cancellation within MaxChunk and deletes the row.
func (e *Engine) CancelObligation(ctx context.Context, oblID id.ObligationID) error {
	if err := e.store.CancelObligation(ctx, oblID); err != nil {
		return err
	}
	e.extensions.EmitObligationCanceled(ctx, oblID)
	e.logger.Info("obligation canceled", slog.String("obligation_id", oblID.String()))
	return nil
}

// InviteRequest describes an invitation to a shared ledger.
type InviteRequest struct {
	LedgerID     string
	Email        string
	InviterID    string
	InviterEmail string
	TargetUserID string
}

// Invite starts the lifecycle of a new invitation. It returns
// ledgerflow.ErrInvitationExists when a live invitation already exists for
// the ledger and email.
func (e *Engine) Invite(ctx context.Context, req InviteRequest) (id.InvitationID, *workflow.Run, error) {
	status, err := invitation.ReadStatus(ctx, e.store, req.LedgerID, req.Email)
	if err != nil {
		return id.Nil, nil, err
	}
	if status.Live() {
		return id.Nil, nil, fmt.Errorf("%w: ledger %s, %s", ledgerflow.ErrInvitationExists, req.LedgerID, invitation.NormalizeEmail(req.Email))
	}

	invID := id.NewInvitationID()
	run, err := e.StartInvitationWorkflow(ctx, invitation.Payload{
		Version:      invitation.PayloadVersion,
		InvitationID: invID,
		LedgerID:     req.LedgerID,
		Email:        req.Email,
		InviterID:    req.InviterID,
		InviterEmail: req.InviterEmail,
		TargetUserID: req.TargetUserID,
	})
	if err != nil {
		return id.Nil, nil, err
	}
	return invID, run, nil
}

// AcceptInvitation records the invitee's acceptance. It fails with
// ledgerflow.ErrInvalidTransition when the invitation is no longer pending.
func (e *Engine) AcceptInvitation(ctx context.Context, invID id.InvitationID) error {
	if err := e.store.AcceptInvitation(ctx, invID, e.clock.Now()); err != nil {
		return err
	}
	inv, err := e.store.GetInvitation(ctx, invID)
	if err != nil {
		return err
	}
	e.extensions.EmitInvitationAccepted(ctx, inv)
	e.logger.Info("invitation accepted",
		slog.String("invitation_id", invID.String()),
		slog.String("ledger_id", inv.LedgerID),
	)
	return nil
}

// Wait blocks until the run is completed or failed, or ctx is done.
func (e *Engine) Wait(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	ticker := time.NewTicker(e.pollEvery)
	defer ticker.Stop()
	for {
		run, err := e.store.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ──────────────────────────────────────────────────
// Accessors
// ──────────────────────────────────────────────────

// Store returns the engine's store.
func (e *Engine) Store() store.Store { return e.store }

// Config returns the normalized configuration.
func (e *Engine) Config() ledgerflow.Config { return e.config }

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Ledger returns the ledger posting service.
func (e *Engine) Ledger() *ledger.Service { return e.ledger }

// WorkflowRunner returns the workflow runner.
func (e *Engine) WorkflowRunner() *workflow.Runner { return e.runner }

// Scheduler returns the cron scheduler.
func (e *Engine) Scheduler() *cron.Scheduler { return e.scheduler }
