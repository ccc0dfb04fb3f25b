package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"curator/internal/core"
	"curator/internal/persistence"
	"curator/internal/search"
)

// DiscoveryResult reports what one discovery pass did per category
type DiscoveryResult struct {
	CategoriesQueried int                      `json:"categories_queried"`
	CategoriesFailed  []core.Category          `json:"categories_failed,omitempty"`
	NewStubIDs        []int64                  `json:"new_stub_ids,omitempty"`
	Duplicates        int                      `json:"duplicates"`
	Errors            map[core.Category]string `json:"errors,omitempty"`
}

// DiscoveryQuery is the search text issued for a category
func DiscoveryQuery(category core.Category) string {
	return fmt.Sprintf("latest %s articles", category)
}

// DiscoverLinks runs the DISCOVER phase on its own, without taking the run lock.
func (p *Pipeline) DiscoverLinks(ctx context.Context) (*DiscoveryResult, error) {
	return p.discover(ctx, p.log)
}

// discover issues one query per category and stores every unseen link as a new stub.
// A failed category is recorded and skipped. Storage failures abort with a PersistenceError;
// stubs inserted before the failure stay committed.
func (p *Pipeline) discover(ctx context.Context, log *slog.Logger) (*DiscoveryResult, error) {
	result := &DiscoveryResult{Errors: make(map[core.Category]string)}
	cfg := search.Config{MaxResults: p.config.SearchResults, Recency: p.config.Recency}

	for i, category := range p.config.Categories {
		if i > 0 {
			if err := p.sleeper.Sleep(ctx, p.config.CategoryDelay); err != nil {
				return result, err
			}
		}

		results, err := p.searcher.Search(ctx, DiscoveryQuery(category), cfg)
		if err != nil {
			result.CategoriesFailed = append(result.CategoriesFailed, category)
			result.Errors[category] = err.Error()
			log.Warn("Category search failed", "category", category, "provider", p.searcher.GetName(), "error", err)
			continue
		}
		result.CategoriesQueried++

		created := 0
		for _, r := range results {
			link := strings.TrimSpace(r.URL)
			if link == "" {
				continue
			}
			stub := core.ArticleStub{
				Title:    r.Title,
				Link:     link,
				Snippet:  r.Snippet,
				Category: category,
				Position: r.Rank,
				Date:     r.Date,
			}
			// Cheap pre-check; Create's conflict handling still covers concurrent inserts.
			if _, err := p.db.Stubs().GetByLink(ctx, link); err == nil {
				result.Duplicates++
				continue
			} else if !errors.Is(err, persistence.ErrNotFound) {
				return result, &PersistenceError{Op: "look up stub", Err: err}
			}
			isNew, err := p.db.Stubs().Create(ctx, &stub)
			if err != nil {
				return result, &PersistenceError{Op: "create stub", Err: err}
			}
			if !isNew {
				result.Duplicates++
				continue
			}
			created++
			result.NewStubIDs = append(result.NewStubIDs, stub.ID)
		}
		log.Info("Discovered links", "category", category, "results", len(results), "new", created)
	}

	if len(p.config.Categories) > 0 && result.CategoriesQueried == 0 {
		return result, ErrDiscoveryFailed
	}
	return result, nil
}
