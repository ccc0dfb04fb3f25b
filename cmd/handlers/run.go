package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/config"
	"curator/internal/pipeline"
	"curator/internal/runlock"
)

// NewRunCmd creates the command that executes a single ingestion cycle
func NewRunCmd() *cobra.Command {
	var (
		skipDiscover bool
		maxBatches   int
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one discover and enrich cycle",
		Long: `Run one ingestion cycle in the foreground and print its summary.

The cycle takes the same single-flight lock as the scheduler, so it exits
with an error when another process is already running one.

Examples:
  # Full cycle
  curator run

  # Only drain the backlog, at most 2 batches
  curator run --skip-discover --max-batches 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCycle(ctx, pipeline.RunOptions{SkipDiscover: skipDiscover, MaxBatches: maxBatches}, asJSON)
		},
	}

	cmd.Flags().BoolVar(&skipDiscover, "skip-discover", false, "Skip link discovery and only process the backlog")
	cmd.Flags().IntVarP(&maxBatches, "max-batches", "b", 0, "Cap the number of batches (0 uses pipeline.max_batches)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run result as JSON")

	return cmd
}

func runCycle(ctx context.Context, opts pipeline.RunOptions, asJSON bool) error {
	cfg := config.Get()

	in, err := buildIngestion(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer in.Close()

	result, err := in.pipeline.RunCycle(ctx, opts)
	if errors.Is(err, runlock.ErrRunInProgress) {
		return fmt.Errorf("another run holds the %s lock; try again later", in.locker.Name())
	}
	if result != nil {
		if asJSON {
			if encErr := printJSON(result); encErr != nil {
				return encErr
			}
		} else {
			printRunSummary(result)
		}
	}
	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}
	return nil
}

func printRunSummary(r *pipeline.RunResult) {
	fmt.Printf("Run %s finished in %s\n", r.RunID, r.Duration().Round(time.Millisecond))
	if d := r.Discovery; d != nil {
		fmt.Printf("  Discovery: %d categories queried, %d new stubs, %d duplicates\n",
			d.CategoriesQueried, len(d.NewStubIDs), d.Duplicates)
		for _, c := range d.CategoriesFailed {
			fmt.Printf("    ✗ %s: %s\n", c, d.Errors[c])
		}
	}
	fmt.Printf("  Enrichment: %d batches, %d enriched, %d failed\n", r.Batches, r.Enriched, r.Failed)
	for _, f := range r.Failures {
		fmt.Printf("    ✗ stub %d (%s) %s\n", f.StubID, f.Link, f.Message)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
