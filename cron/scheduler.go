package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Job names registered by the engine.
const (
	JobRedeliver = "redeliver"
	JobReconcile = "reconcile"
)

// JobFunc is the work a scheduled entry performs.
type JobFunc func(ctx context.Context) error

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string)
}

// Redeliverer resumes runs that are not executing. It returns how many runs
// were handed off.
type Redeliverer interface {
	Redeliver(ctx context.Context) (int, error)
}

// Reconciler starts workflows for obligations without a run. It returns how
// many workflows were started.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// RedeliverJob adapts a Redeliverer to a JobFunc.
func RedeliverJob(r Redeliverer, logger *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		n, err := r.Redeliver(ctx)
		if n > 0 {
			logger.Info("redelivered workflow runs", slog.Int("runs", n))
		}
		return err
	}
}

// ReconcileJob adapts a Reconciler to a JobFunc.
func ReconcileJob(r Reconciler, logger *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		n, err := r.Reconcile(ctx)
		if n > 0 {
			logger.Info("started missing recurring workflows", slog.Int("workflows", n))
		}
		return err
	}
}

// Every returns the schedule expression for a fixed interval.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("cron: unknown job")

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithJobTimeout bounds a single job run. Zero means no bound.
func WithJobTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.jobTimeout = d }
}

// WithLocation sets the time zone schedules are evaluated in.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(s *Scheduler) { s.location = loc }
}

type job struct {
	entry   Entry
	fn      JobFunc
	entryID cronlib.EntryID
	running sync.Mutex
}

// Scheduler runs named jobs on cron schedules within this process.
type Scheduler struct {
	emitter    Emitter
	logger     *slog.Logger
	jobTimeout time.Duration
	location   *time.Location

	cron *cronlib.Cron

	mu      sync.Mutex
	jobs    map[string]*job
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
}

// NewScheduler creates a Scheduler. emitter may be nil.
func NewScheduler(emitter Emitter, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		emitter:  emitter,
		logger:   logger,
		location: time.UTC,
		jobs:     make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.cron = cronlib.New(
		cronlib.WithParser(cronParser),
		cronlib.WithLocation(s.location),
		cronlib.WithLogger(slogAdapter{logger}),
	)
	return s
}

// Add registers fn under name on the given schedule expression.
func (s *Scheduler) Add(name, schedule string, fn JobFunc) error {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("parse schedule %q for job %s: %w", schedule, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron: job %q already registered", name)
	}

	j := &job{entry: Entry{Name: name, Schedule: schedule}, fn: fn}
	j.entryID = s.cron.Schedule(sched, cronlib.FuncJob(func() {
		s.fire(s.context(), j)
	}))
	s.jobs[name] = j
	return nil
}

// Start begins firing jobs. Jobs run with a context derived from ctx's
// values that is canceled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.Unlock()

	s.cron.Start()
	sort.Strings(names)
	s.logger.Info("cron scheduler started", slog.Any("jobs", names))
	return nil
}

// Stop cancels running jobs and waits for them to return, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.started = false
	s.mu.Unlock()

	cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("cron scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron scheduler stop: %w", ctx.Err())
	}
}

// RunNow runs a job synchronously, outside its schedule. A tick that is
// already running the job makes RunNow return without running it.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.fire(ctx, j)
}

// Entries returns a snapshot of the registered jobs sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := j.entry
		if next := s.cron.Entry(j.entryID).Next; !next.IsZero() {
			e.NextRunAt = &next
		}
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// fire runs j unless it is already running.
func (s *Scheduler) fire(ctx context.Context, j *job) error {
	if !j.running.TryLock() {
		s.logger.Debug("cron job still running, skipping tick", slog.String("job", j.entry.Name))
		return nil
	}
	defer j.running.Unlock()

	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := j.fn(ctx)
	now := time.Now().UTC()

	s.mu.Lock()
	j.entry.Runs++
	j.entry.LastRunAt = &now
	j.entry.LastError = ""
	if err != nil {
		j.entry.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("cron job failed",
			slog.String("job", j.entry.Name),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Debug("cron job completed",
			slog.String("job", j.entry.Name),
			slog.Duration("elapsed", time.Since(start)),
		)
	}

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, j.entry.Name)
	}
	return err
}

// slogAdapter routes robfig/cron's internal logging to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}
