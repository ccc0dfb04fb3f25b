package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/config"
	"curator/internal/core"
	"curator/internal/persistence"
)

// NewArticlesCmd creates the command group for browsing enriched articles
func NewArticlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "Browse enriched articles",
	}

	cmd.AddCommand(newArticlesListCmd())
	cmd.AddCommand(newArticlesShowCmd())

	return cmd
}

func newArticlesListCmd() *cobra.Command {
	var (
		category string
		limit    int
		offset   int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enriched articles, newest first",
		Long: fmt.Sprintf(`List enriched articles, newest first.

Categories: %s

Examples:
  curator articles list
  curator articles list --category ai --limit 5`, categoryList()),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cat core.Category
			if category != "" {
				parsed, err := core.ParseCategory(category)
				if err != nil {
					return err
				}
				cat = parsed
			}
			return runArticlesList(cmd.Context(), cat, persistence.ListOptions{Limit: limit, Offset: offset}, asJSON)
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Only list this category")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of articles")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many articles")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}

func newArticlesShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <stub-id>",
		Short: "Show a stub and its enrichment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid stub id %q", args[0])
			}
			return runArticlesShow(cmd.Context(), id, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")

	return cmd
}

func runArticlesList(ctx context.Context, category core.Category, opts persistence.ListOptions, asJSON bool) error {
	db, err := getDatabase(config.Get())
	if err != nil {
		return err
	}
	defer db.Close()

	articles, err := db.Enriched().ListByCategory(ctx, category, opts)
	if err != nil {
		return fmt.Errorf("failed to list articles: %w", err)
	}

	if asJSON {
		return printJSON(articles)
	}
	if len(articles) == 0 {
		fmt.Println("No enriched articles yet")
		return nil
	}

	for _, a := range articles {
		fmt.Printf("[%d] %s  (%s, %s)\n", a.ArticleID, a.RefinedTitle, a.Category, a.ProcessedAt.Format("2006-01-02 15:04"))
		fmt.Printf("     %s\n", a.Link)
	}
	return nil
}

// articleDetail is the JSON shape of 'articles show'
type articleDetail struct {
	Stub     *core.ArticleStub     `json:"stub"`
	Enriched *core.EnrichedArticle `json:"enriched,omitempty"`
}

func runArticlesShow(ctx context.Context, id int64, asJSON bool) error {
	db, err := getDatabase(config.Get())
	if err != nil {
		return err
	}
	defer db.Close()

	stub, err := db.Stubs().Get(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("stub %d not found", id)
	}
	if err != nil {
		return err
	}

	enriched, err := db.Enriched().GetByArticleID(ctx, id)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return err
	}

	if asJSON {
		return printJSON(articleDetail{Stub: stub, Enriched: enriched})
	}

	fmt.Printf("Stub %d  [%s]\n", stub.ID, stub.Category)
	fmt.Printf("  Title:    %s\n", stub.Title)
	fmt.Printf("  Link:     %s\n", stub.Link)
	fmt.Printf("  Status:   %s\n", stubStatus(*stub))
	fmt.Printf("  Attempts: %d\n", stub.Attempts)
	if stub.Failed() {
		fmt.Printf("  Error:    %s\n", *stub.ProcessingError)
	}

	if enriched == nil {
		return nil
	}
	fmt.Println()
	fmt.Println(enriched.RefinedTitle)
	fmt.Println(strings.Repeat("━", 60))
	fmt.Printf("Summary: %s\n\n", enriched.Summary)
	fmt.Println("Key takeaways:")
	for _, t := range enriched.KeyTakeaways {
		fmt.Printf("  • %s\n", t)
	}
	fmt.Println()
	fmt.Println(enriched.RefinedArticle)
	return nil
}

func stubStatus(s core.ArticleStub) string {
	switch {
	case s.Failed() && s.Processed:
		return "failed"
	case s.Failed():
		return "failed, will retry"
	case s.Processed:
		return "processed"
	default:
		return "pending"
	}
}

func categoryList() string {
	names := make([]string, 0, len(core.Categories()))
	for _, c := range core.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
