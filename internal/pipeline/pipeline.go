// Package pipeline runs the ingestion cycle: discover links per category, then
// drain the unprocessed backlog through acquisition, enrichment and parsing.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"curator/internal/core"
	"curator/internal/persistence"
	"curator/internal/runlock"
)

// Pipeline orchestrates one ingestion cycle at a time
type Pipeline struct {
	db        persistence.Database
	searcher  LinkSearcher
	extractor ContentExtractor
	enricher  ArticleEnricher
	parser    ResponseParser
	locker    runlock.Locker
	sleeper   Sleeper
	now       func() time.Time
	log       *slog.Logger

	config *Config
}

// Config holds pipeline configuration
type Config struct {
	Categories []core.Category

	// Discovery settings
	SearchResults int
	Recency       string // provider time filter, "qdr:h" is the past hour

	// Acquisition settings
	MinContentLength int

	// Batching
	BatchSize  int
	MaxBatches int

	// Fixed delays
	CategoryDelay   time.Duration
	SuccessDelay    time.Duration
	FailureDelay    time.Duration
	InterBatchDelay time.Duration

	// MaxAttempts is how many failed attempts consume a stub
	MaxAttempts int
}

// DefaultConfig returns the design defaults
func DefaultConfig() *Config {
	return &Config{
		Categories:       core.Categories(),
		SearchResults:    10,
		Recency:          "qdr:h",
		MinContentLength: 500,
		BatchSize:        5,
		MaxBatches:       20,
		CategoryDelay:    1 * time.Second,
		SuccessDelay:     3 * time.Second,
		FailureDelay:     5 * time.Second,
		InterBatchDelay:  2 * time.Second,
		MaxAttempts:      1,
	}
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if len(c.Categories) == 0 {
		c.Categories = d.Categories
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = d.MaxBatches
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Recency == "" {
		c.Recency = d.Recency
	}
}

// RunOptions adjusts a single cycle
type RunOptions struct {
	SkipDiscover bool
	MaxBatches   int // overrides Config.MaxBatches when positive
}

// ArticleFailure describes one isolated per-article failure
type ArticleFailure struct {
	StubID  int64  `json:"stub_id"`
	Link    string `json:"link"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// RunResult summarizes one cycle
type RunResult struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Discovery  *DiscoveryResult `json:"discovery,omitempty"`
	Batches    int              `json:"batches"`
	Enriched   int              `json:"enriched"`
	Failed     int              `json:"failed"`
	Failures   []ArticleFailure `json:"failures,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Duration returns the wall time of the run
func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunCycle runs DISCOVER then ENRICH under the single-flight lock.
// It returns runlock.ErrRunInProgress without doing any work when another cycle holds the lock.
// Per-article failures are recorded in the result; storage failures abort the run and are returned.
func (p *Pipeline) RunCycle(ctx context.Context, opts RunOptions) (*RunResult, error) {
	unlock, err := p.locker.TryLock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: p.now().UTC(),
	}
	log := p.log.With("run_id", result.RunID)
	log.Info("Starting run", "skip_discover", opts.SkipDiscover)

	err = p.runPhases(ctx, log, opts, result)
	result.FinishedAt = p.now().UTC()
	if err != nil {
		result.Error = err.Error()
		log.Error("Run aborted", "error", err, "enriched", result.Enriched, "failed", result.Failed)
		return result, err
	}

	log.Info("Run completed",
		"batches", result.Batches,
		"enriched", result.Enriched,
		"failed", result.Failed,
		"duration", result.Duration().String())
	return result, nil
}

func (p *Pipeline) runPhases(ctx context.Context, log *slog.Logger, opts RunOptions, result *RunResult) error {
	if !opts.SkipDiscover {
		discovery, err := p.discover(ctx, log)
		result.Discovery = discovery
		var perr *PersistenceError
		switch {
		case errors.As(err, &perr):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			// Nothing new was found; the existing backlog is still drained.
			log.Warn("Discovery failed", "error", err)
		}
	}

	maxBatches := p.config.MaxBatches
	if opts.MaxBatches > 0 {
		maxBatches = opts.MaxBatches
	}
	return p.drainBacklog(ctx, log, maxBatches, result)
}

// drainBacklog processes batches of unprocessed stubs until a batch comes back
// short or maxBatches is reached. Stubs attempted earlier in the run are not drawn again.
func (p *Pipeline) drainBacklog(ctx context.Context, log *slog.Logger, maxBatches int, result *RunResult) error {
	var attempted []int64

	for batch := 0; batch < maxBatches; batch++ {
		stubs, err := p.db.Stubs().ListUnprocessed(ctx, persistence.UnprocessedOptions{
			Limit:      p.config.BatchSize,
			ExcludeIDs: attempted,
		})
		if err != nil {
			return &PersistenceError{Op: "list unprocessed stubs", Err: err}
		}
		if len(stubs) == 0 {
			return nil
		}
		if batch > 0 {
			if err := p.sleeper.Sleep(ctx, p.config.InterBatchDelay); err != nil {
				return err
			}
		}

		result.Batches++
		log.Info("Processing batch", "batch", result.Batches, "size", len(stubs))

		for i, stub := range stubs {
			attempted = append(attempted, stub.ID)

			delay := p.config.SuccessDelay
			err := p.ProcessStub(ctx, stub)
			var stageErr *StageError
			switch {
			case err == nil:
				result.Enriched++
				log.Info("Enriched article", "stub_id", stub.ID, "link", stub.Link)
			case errors.As(err, &stageErr):
				result.Failed++
				result.Failures = append(result.Failures, ArticleFailure{
					StubID:  stub.ID,
					Link:    stub.Link,
					Stage:   stageErr.Stage,
					Message: stageErr.Error(),
				})
				log.Warn("Article failed", "stub_id", stub.ID, "link", stub.Link, "stage", stageErr.Stage, "error", stageErr.Err)
				delay = p.config.FailureDelay
			default:
				return err
			}

			if i < len(stubs)-1 {
				if err := p.sleeper.Sleep(ctx, delay); err != nil {
					return err
				}
			}
		}

		if len(stubs) < p.config.BatchSize {
			return nil
		}
	}

	log.Info("Reached batch limit", "max_batches", maxBatches)
	return nil
}
