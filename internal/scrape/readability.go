package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"curator/internal/core"
)

const maxBodySize = 20 << 20

var blankLinesRegex = regexp.MustCompile(`\n\s*\n\s*\n+`)

// ReadabilityExtractor fetches the page itself and extracts the main content locally.
// PDF responses are routed to the PDF text extractor.
type ReadabilityExtractor struct {
	client    *http.Client
	userAgent string
}

// NewReadabilityExtractor creates a local extractor
func NewReadabilityExtractor(userAgent string, timeout time.Duration) *ReadabilityExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ReadabilityExtractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (r *ReadabilityExtractor) Name() string { return "Readability" }

// Extract fetches req.URL and returns its main text
func (r *ReadabilityExtractor) Extract(ctx context.Context, req Request) (*core.ScrapedDocument, error) {
	pageURL, err := url.Parse(req.URL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid URL %q", ErrExtractionFailed, req.URL)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", req.URL, err)
	}
	if r.userAgent != "" {
		httpReq.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrExtractionFailed, req.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", req.URL, err)
	}

	var doc *core.ScrapedDocument
	if IsPDF(req.URL, resp.Header.Get("Content-Type")) {
		doc, err = extractPDF(body, req.URL)
	} else {
		doc, err = extractHTML(body, pageURL)
	}
	if err != nil {
		return nil, err
	}

	if doc.Title == "" {
		doc.Title = req.Title
	}
	return doc, nil
}

func extractHTML(body []byte, pageURL *url.URL) (*core.ScrapedDocument, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: readability: %v", ErrExtractionFailed, err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = extractTitle(body)
	}

	return &core.ScrapedDocument{
		Title:   title,
		Content: cleanText(article.TextContent),
	}, nil
}

// extractTitle tries head title, then OpenGraph, then the first h1.
func extractTitle(htmlContent []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if ogTitle, _ := doc.Find("meta[property='og:title']").Attr("content"); strings.TrimSpace(ogTitle) != "" {
		return strings.TrimSpace(ogTitle)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankLinesRegex.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
