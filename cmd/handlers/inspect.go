package handlers

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/config"
	"curator/internal/parser"
	"curator/internal/scrape"
)

// NewScrapeCmd creates a command that runs content acquisition on one URL
func NewScrapeCmd() *cobra.Command {
	var minLength int

	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Fetch one URL through the configured content extractor",
		Long: `Fetch one URL the way the enrichment phase does and print what came back.
Useful for checking why a stub failed acquisition.

Example:
  curator scrape https://example.com/story`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			extractor, err := buildExtractor(cfg)
			if err != nil {
				return err
			}

			if minLength < 0 {
				minLength = cfg.Scrape.MinContentLength
			}
			doc, err := extractor.Extract(cmd.Context(), scrape.Request{URL: args[0], MinContentLength: minLength})
			if err != nil {
				return fmt.Errorf("acquisition failed: %w", err)
			}

			fmt.Printf("Title:   %s\n", doc.Title)
			fmt.Printf("Length:  %d chars\n", len(doc.Content))
			fmt.Println(strings.Repeat("━", 60))
			fmt.Println(doc.Content)
			return nil
		},
	}

	cmd.Flags().IntVar(&minLength, "min-length", -1, "Minimum content length (default from scrape.min_content_length)")

	return cmd
}

// NewParseCmd creates a command that runs the reply extractor over saved model output
func NewParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file|->",
		Short: "Extract the enrichment JSON from a saved model reply",
		Long: `Run the response extractor over a saved model reply and print the
strategy that matched and the resulting enrichment. Reads stdin for "-".

Example:
  curator parse reply.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read reply: %w", err)
			}

			chain := parser.DefaultChain()
			_, strategy, err := chain.Extract(string(data))
			if err != nil {
				return fmt.Errorf("parse failed: %w", err)
			}
			enrichment, err := chain.ExtractEnrichment(string(data))
			if err != nil {
				return fmt.Errorf("parse failed (%s strategy): %w", strategy, err)
			}

			fmt.Printf("Matched by the %s strategy\n", strategy)
			return printJSON(enrichment)
		},
	}
}
