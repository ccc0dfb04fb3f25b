package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"curator/internal/logger"
	"curator/internal/pipeline"
	"curator/internal/runlock"
)

type fakeRunner struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (f *fakeRunner) RunCycle(ctx context.Context, opts pipeline.RunOptions) (*pipeline.RunResult, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.RunResult{RunID: "run-1", Enriched: 3}, nil
}

func newTestScheduler(t *testing.T, runner Runner, opts Options) *Scheduler {
	t.Helper()
	opts.Logger = logger.Discard()
	s, err := New(runner, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", Options{}, false},
		{"hourly in a named zone", Options{Cron: "0 * * * *", Timezone: "America/New_York"}, false},
		{"bad cron", Options{Cron: "every hour"}, true},
		{"bad timezone", Options{Timezone: "Mars/Olympus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = logger.Discard()
			_, err := New(&fakeRunner{}, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNext_IsTopOfHour(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{}, Options{})
	next := s.Next()
	if !next.After(time.Now()) {
		t.Fatalf("next fire %v should be in the future", next)
	}
	if next.Minute() != 0 || next.Second() != 0 {
		t.Errorf("default schedule should fire on the hour, got %v", next)
	}
}

func TestRunNow_RecordsLastRun(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{}, Options{})
	if s.LastRun() != nil {
		t.Fatal("no run recorded yet")
	}

	result, err := s.RunNow("api")
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if result.Enriched != 3 {
		t.Errorf("unexpected result: %+v", result)
	}

	last := s.LastRun()
	if last == nil || last.Source != "api" || last.Result == nil || last.Error != "" {
		t.Errorf("unexpected record: %+v", last)
	}
	if s.Running() {
		t.Error("running flag should clear after the run")
	}
}

func TestRunNow_RecordsFailureAndSkip(t *testing.T) {
	boom := errors.New("database down")
	s := newTestScheduler(t, &fakeRunner{err: boom}, Options{})
	if _, err := s.RunNow("schedule"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if s.LastRun().Error != boom.Error() {
		t.Errorf("error not recorded: %+v", s.LastRun())
	}

	skipped := newTestScheduler(t, &fakeRunner{err: runlock.ErrRunInProgress}, Options{})
	_, _ = skipped.RunNow("schedule")
	if !skipped.LastRun().Skipped {
		t.Error("lock contention should be recorded as a skip")
	}
}

func TestTriggerAsync_RejectsOverlap(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	s := newTestScheduler(t, runner, Options{})

	if err := s.TriggerAsync("api"); err != nil {
		t.Fatalf("first trigger failed: %v", err)
	}
	waitFor(t, func() bool { return runner.calls.Load() == 1 })

	if err := s.TriggerAsync("api"); !errors.Is(err, runlock.ErrRunInProgress) {
		t.Errorf("second trigger = %v, want ErrRunInProgress", err)
	}
	if _, err := s.RunNow("schedule"); !errors.Is(err, runlock.ErrRunInProgress) {
		t.Errorf("scheduled run during a manual run = %v, want ErrRunInProgress", err)
	}

	close(runner.release)
	waitFor(t, func() bool { return !s.Running() })
	if runner.calls.Load() != 1 {
		t.Errorf("runner called %d times, want 1", runner.calls.Load())
	}
}

func TestStartAndStop_RunOnStart(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner, Options{RunOnStart: true})

	s.Start()
	waitFor(t, func() bool { return s.LastRun() != nil })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.LastRun().Source != "startup" {
		t.Errorf("source = %q, want startup", s.LastRun().Source)
	}
}

func TestStop_CancelsStuckRun(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	s := newTestScheduler(t, runner, Options{})
	s.Start()

	if err := s.TriggerAsync("api"); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	waitFor(t, func() bool { return runner.calls.Load() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop = %v, want deadline exceeded", err)
	}
	waitFor(t, func() bool { return !s.Running() })
	if last := s.LastRun(); last == nil || last.Error == "" {
		t.Errorf("canceled run should record its error: %+v", last)
	}
}

func TestStop_RejectsLaterTriggers(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner, Options{})
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := s.TriggerAsync("api"); !errors.Is(err, ErrStopped) {
		t.Errorf("TriggerAsync after Stop = %v, want ErrStopped", err)
	}
	if _, err := s.RunNow("schedule"); !errors.Is(err, ErrStopped) {
		t.Errorf("RunNow after Stop = %v, want ErrStopped", err)
	}
	if s.Running() {
		t.Error("rejected trigger must not hold the run slot")
	}
	if runner.calls.Load() != 0 {
		t.Errorf("runner called %d times after Stop", runner.calls.Load())
	}
}

func TestStop_ConcurrentTriggers(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner, Options{})
	s.Start()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.TriggerAsync("api")
			if err != nil && !errors.Is(err, ErrStopped) && !errors.Is(err, runlock.ErrRunInProgress) {
				t.Errorf("unexpected trigger error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	wg.Wait()

	// Anything accepted before Stop finished; nothing starts afterwards.
	calls := runner.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if s.Running() || runner.calls.Load() != calls {
		t.Errorf("run started after Stop returned: running=%v calls=%d->%d", s.Running(), calls, runner.calls.Load())
	}
}
