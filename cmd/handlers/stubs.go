package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"curator/internal/config"
	"curator/internal/persistence"
)

// NewStubsCmd creates the command group for inspecting the stub backlog
func NewStubsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stubs",
		Short: "Inspect and repair the article stub backlog",
	}

	cmd.AddCommand(newStubsStatsCmd())
	cmd.AddCommand(newStubsFailedCmd())
	cmd.AddCommand(newStubsRetryCmd())

	return cmd
}

func newStubsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show backlog counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := getDatabase(config.Get())
			if err != nil {
				return err
			}
			defer db.Close()

			counts, err := db.Stubs().Counts(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to count stubs: %w", err)
			}
			fmt.Printf("Total: %d | Pending: %d | Processed: %d | Failed: %d | Enriched: %d\n",
				counts.Total, counts.Pending, counts.Processed, counts.Failed, counts.Enriched)
			return nil
		},
	}
}

func newStubsFailedCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List stubs whose last attempt failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStubsFailed(cmd.Context(), persistence.ListOptions{Limit: limit, Offset: offset})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum number of stubs")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many stubs")

	return cmd
}

func newStubsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [stub-id...]",
		Short: "Make failed stubs eligible for the next run",
		Long: `Clear the failure state of the given stubs so the next cycle draws them
again. With no ids every failed stub without an enrichment is reset.

Examples:
  curator stubs retry 41 42
  curator stubs retry`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid stub id %q", arg)
				}
				ids = append(ids, id)
			}
			return runStubsRetry(cmd.Context(), ids)
		},
	}
}

func runStubsFailed(ctx context.Context, opts persistence.ListOptions) error {
	db, err := getDatabase(config.Get())
	if err != nil {
		return err
	}
	defer db.Close()

	stubs, err := db.Stubs().ListFailed(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list failed stubs: %w", err)
	}
	if len(stubs) == 0 {
		fmt.Println("No failed stubs")
		return nil
	}

	for _, s := range stubs {
		fmt.Printf("[%d] %s  (%s, %d attempt(s))\n", s.ID, s.Link, stubStatus(s), s.Attempts)
		fmt.Printf("     %s\n", *s.ProcessingError)
	}
	return nil
}

func runStubsRetry(ctx context.Context, ids []int64) error {
	db, err := getDatabase(config.Get())
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := db.Stubs().ResetFailed(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to reset stubs: %w", err)
	}
	fmt.Printf("♻️  %d stub(s) queued for retry\n", n)
	return nil
}
