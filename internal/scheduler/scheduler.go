// Package scheduler fires ingestion cycles on a cron schedule and on demand.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"curator/internal/logger"
	"curator/internal/pipeline"
	"curator/internal/runlock"
)

// DefaultSchedule runs at the top of every hour.
const DefaultSchedule = "0 * * * *"

// ErrStopped is returned by triggers that arrive once Stop has begun.
var ErrStopped = errors.New("scheduler is stopped")

// Runner executes one ingestion cycle
type Runner interface {
	RunCycle(ctx context.Context, opts pipeline.RunOptions) (*pipeline.RunResult, error)
}

// Options configures the scheduler
type Options struct {
	Cron       string
	Timezone   string
	RunOnStart bool
	Logger     *slog.Logger
}

// RunRecord is the outcome of the most recent trigger
type RunRecord struct {
	Source     string              `json:"source"` // schedule, startup or api
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Result     *pipeline.RunResult `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
	Skipped    bool                `json:"skipped,omitempty"`
}

// Scheduler owns the cron loop and guards against overlapping runs in this process.
// Cross-process exclusion is left to the pipeline's run lock.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	schedule   string
	runOnStart bool
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// gate orders wg.Add against Stop's wg.Wait.
	gate    sync.Mutex
	stopped bool

	running atomic.Bool
	mu      sync.RWMutex
	last    *RunRecord
}

// New validates the schedule and timezone and returns a stopped scheduler
func New(runner Runner, opts Options) (*Scheduler, error) {
	if opts.Cron == "" {
		opts.Cron = DefaultSchedule
	}
	if opts.Logger == nil {
		opts.Logger = logger.Component("scheduler")
	}

	loc := time.UTC
	if opts.Timezone != "" {
		l, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", opts.Timezone, err)
		}
		loc = l
	}

	cl := cronLogger{log: opts.Logger}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:       c,
		runner:     runner,
		schedule:   opts.Cron,
		runOnStart: opts.RunOnStart,
		log:        opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	if _, err := c.AddFunc(opts.Cron, func() { _, _ = s.RunNow("schedule") }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron expression %q: %w", opts.Cron, err)
	}
	return s, nil
}

// Start begins firing on schedule and, when configured, triggers one run immediately
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started", "cron", s.schedule, "next", s.Next())

	if s.runOnStart {
		if err := s.TriggerAsync("startup"); err != nil {
			s.log.Warn("Startup run skipped", "error", err)
		}
	}
}

// Stop halts the schedule and waits for an in-flight run until ctx expires,
// after which the run's context is canceled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.gate.Lock()
	s.stopped = true
	s.gate.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	defer s.cancel()
	select {
	case <-done:
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timed out, canceling in-flight run")
		return ctx.Err()
	}
}

// Next returns the next scheduled fire time
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if next := entries[0].Next; !next.IsZero() {
		return next
	}
	return entries[0].Schedule.Next(time.Now())
}

// Running reports whether this process is executing a cycle
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastRun returns the most recent run record, or nil before the first run
func (s *Scheduler) LastRun() *RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	record := *s.last
	return &record
}

// TriggerAsync starts a cycle in the background.
// It returns runlock.ErrRunInProgress when this process is already running one
// and ErrStopped once Stop has been called.
func (s *Scheduler) TriggerAsync(source string) error {
	if err := s.begin(); err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		_, _ = s.execute(source)
	}()
	return nil
}

// RunNow runs a cycle synchronously
func (s *Scheduler) RunNow(source string) (*pipeline.RunResult, error) {
	if err := s.begin(); err != nil {
		s.log.Info("Run skipped", "source", source, "reason", err)
		return nil, err
	}
	defer s.wg.Done()
	defer s.running.Store(false)
	return s.execute(source)
}

// begin claims the in-process run slot and registers the run with the wait group.
func (s *Scheduler) begin() error {
	s.gate.Lock()
	defer s.gate.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		return runlock.ErrRunInProgress
	}
	s.wg.Add(1)
	return nil
}

func (s *Scheduler) execute(source string) (*pipeline.RunResult, error) {
	record := &RunRecord{Source: source, StartedAt: time.Now().UTC()}
	s.log.Info("Triggering run", "source", source)

	result, err := s.runner.RunCycle(s.ctx, pipeline.RunOptions{})
	record.FinishedAt = time.Now().UTC()
	record.Result = result

	switch {
	case errors.Is(err, runlock.ErrRunInProgress):
		record.Skipped = true
		s.log.Info("Run skipped, lock held elsewhere", "source", source)
	case err != nil:
		record.Error = err.Error()
		s.log.Error("Run failed", "source", source, "error", err)
	}

	s.mu.Lock()
	s.last = record
	s.mu.Unlock()
	return result, err
}

// cronLogger adapts slog to cron.Logger. Cron's own info chatter goes to debug.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
