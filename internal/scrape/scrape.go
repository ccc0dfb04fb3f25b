// Package scrape acquires the full text of a discovered article.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"curator/internal/core"
	"curator/internal/throttle"
)

var (
	// ErrExtractionFailed is returned when the provider reports an unsuccessful extraction.
	ErrExtractionFailed = errors.New("content extraction failed")

	// ErrMissingAPIKey is returned when a hosted extractor has no credentials.
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrUnsupportedProvider is returned for an unknown extractor name.
	ErrUnsupportedProvider = errors.New("unsupported scrape provider")
)

// Request describes one article to acquire.
type Request struct {
	URL              string
	Title            string
	Snippet          string
	MinContentLength int
}

// Extractor fetches and extracts the main content behind a link.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*core.ScrapedDocument, error)
	Name() string
}

// Options configures extractor construction.
type Options struct {
	Provider          string
	APIKey            string
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerMinute int
}

// New builds the configured extractor wrapped with its rate limiter and timeout.
func New(opts Options) (Extractor, error) {
	var inner Extractor
	switch opts.Provider {
	case "firecrawl", "":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("firecrawl: %w", ErrMissingAPIKey)
		}
		inner = NewFirecrawlExtractor(opts.APIKey, opts.BaseURL, opts.Timeout)
	case "readability":
		inner = NewReadabilityExtractor(opts.UserAgent, opts.Timeout)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, opts.Provider)
	}
	return NewThrottledExtractor(inner, opts.RequestsPerMinute, opts.Timeout), nil
}

// ThrottledExtractor paces calls to the wrapped extractor and bounds each one.
type ThrottledExtractor struct {
	inner   Extractor
	limiter *rate.Limiter
	timeout time.Duration
}

// NewThrottledExtractor wraps e. Zero values disable the respective control.
func NewThrottledExtractor(e Extractor, requestsPerMinute int, timeout time.Duration) *ThrottledExtractor {
	return &ThrottledExtractor{
		inner:   e,
		limiter: throttle.PerMinute(requestsPerMinute),
		timeout: timeout,
	}
}

func (t *ThrottledExtractor) Name() string { return t.inner.Name() }

func (t *ThrottledExtractor) Extract(ctx context.Context, req Request) (*core.ScrapedDocument, error) {
	if err := throttle.Wait(ctx, t.limiter, t.inner.Name()); err != nil {
		return nil, err
	}
	callCtx, cancel := throttle.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Extract(callCtx, req)
}
