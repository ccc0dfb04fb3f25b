package pipeline

import (
	"context"
	"time"

	"curator/internal/core"
	"curator/internal/scrape"
	"curator/internal/search"
)

// LinkSearcher finds candidate article links for a query
type LinkSearcher interface {
	// Search returns ranked results restricted by config (recency, result count)
	Search(ctx context.Context, query string, config search.Config) ([]search.Result, error)

	// GetName returns the provider name for logs
	GetName() string
}

// ContentExtractor acquires the full text behind a stub's link
type ContentExtractor interface {
	// Extract returns the scraped document or an error describing why acquisition failed
	Extract(ctx context.Context, req scrape.Request) (*core.ScrapedDocument, error)
}

// ArticleEnricher asks the generative provider to rewrite a scraped article
type ArticleEnricher interface {
	// Enrich returns the raw model reply; parsing happens in a separate stage
	Enrich(ctx context.Context, stub core.ArticleStub, doc *core.ScrapedDocument) (string, error)
}

// ResponseParser extracts the structured enrichment from a model reply
type ResponseParser interface {
	ExtractEnrichment(text string) (core.Enrichment, error)
}

// Sleeper waits between provider calls
type Sleeper interface {
	// Sleep blocks for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
}
