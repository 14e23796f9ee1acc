package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"news_crawler/internal/metrics"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobRunning = errors.New("job already running")
	ErrStopped    = errors.New("scheduler stopped")
)

// Job is a unit of periodic work.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a plain function to Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type entry struct {
	name string
	job  Job
	// guards against a cron tick and a manual trigger overlapping
	running sync.Mutex
}

type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	baseCtx context.Context
	// set once Start begins draining; guards wg.Add against wg.Wait
	stopping bool

	wg sync.WaitGroup
}

func NewScheduler(timeout time.Duration, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}

	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		timeout: timeout,
		logger:  logger,
		entries: make(map[string]*entry),
		baseCtx: context.Background(),
	}
}

// Register schedules job under name using a standard five field cron spec.
func (s *Scheduler) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	e := &entry{name: name, job: job}
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.run(s.context(), e); err != nil && !errors.Is(err, ErrJobRunning) {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule job %q: %w", name, err)
	}

	s.entries[name] = e
	s.logger.Info("job registered", "job", name, "spec", spec)
	return nil
}

// RunNow runs the named job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	e, err := s.entry(name)
	if err != nil {
		return err
	}
	return s.run(ctx, e)
}

// Trigger starts the named job in the background and returns immediately.
// The run is bound to the scheduler's lifetime, not to the caller. It returns
// ErrJobRunning when the job is already running and ErrStopped once shutdown
// has begun.
func (s *Scheduler) Trigger(name string) error {
	e, err := s.entry(name)
	if err != nil {
		return err
	}

	if !e.running.TryLock() {
		return ErrJobRunning
	}

	// wg.Add must not race with the Wait in Start.
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		e.running.Unlock()
		return ErrStopped
	}
	s.wg.Add(1)
	ctx := s.baseCtx
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer e.running.Unlock()
		if err := s.execute(ctx, e); err != nil {
			s.logger.Error("triggered job failed", "job", name, "error", err)
		}
	}()
	return nil
}

// Start runs the cron loop until ctx is done, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entries))

	<-ctx.Done()

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.wg.Wait()

	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	if !e.running.TryLock() {
		s.logger.Warn("job still running, skipping", "job", e.name)
		return ErrJobRunning
	}
	defer e.running.Unlock()

	return s.execute(ctx, e)
}

// execute runs e with the job timeout. The caller holds e.running.
func (s *Scheduler) execute(ctx context.Context, e *entry) error {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info("job started", "job", e.name)

	err := e.job.Run(runCtx)

	d := time.Since(start)
	metrics.ObserveJob(e.name, err, d)
	if err != nil {
		return fmt.Errorf("run job %q: %w", e.name, err)
	}

	s.logger.Info("job finished", "job", e.name, "duration", d)
	return nil
}

func (s *Scheduler) entry(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return e, nil
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseCtx
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
