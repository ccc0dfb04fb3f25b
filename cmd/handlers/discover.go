package handlers

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"curator/internal/config"
)

// NewDiscoverCmd creates the command that runs link discovery on its own
func NewDiscoverCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Search every category and store new article stubs",
		Long: `Run only the discovery phase: one search per category for recent
articles, storing each unseen link as an unprocessed stub.

No scraping or LLM credentials are needed.

Example:
  curator discover`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			in, err := buildIngestion(ctx, config.Get(), true)
			if err != nil {
				return err
			}
			defer in.Close()

			result, err := in.pipeline.DiscoverLinks(ctx)
			if result != nil {
				if asJSON {
					if encErr := printJSON(result); encErr != nil {
						return encErr
					}
				} else {
					fmt.Printf("Queried %d categories: %d new stubs, %d duplicates\n",
						result.CategoriesQueried, len(result.NewStubIDs), result.Duplicates)
					for _, c := range result.CategoriesFailed {
						fmt.Printf("  ✗ %s: %s\n", c, result.Errors[c])
					}
				}
			}
			if err != nil {
				return fmt.Errorf("discovery failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the discovery result as JSON")

	return cmd
}
