package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curator/internal/core"
)

const defaultFirecrawlBaseURL = "https://api.firecrawl.dev/v1"

// FirecrawlExtractor asks the Firecrawl scrape endpoint for a structured {title, content} document.
type FirecrawlExtractor struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewFirecrawlExtractor creates a Firecrawl-backed extractor
func NewFirecrawlExtractor(apiKey, baseURL string, timeout time.Duration) *FirecrawlExtractor {
	if baseURL == "" {
		baseURL = defaultFirecrawlBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FirecrawlExtractor{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (f *FirecrawlExtractor) Name() string { return "Firecrawl" }

type firecrawlRequest struct {
	URL         string               `json:"url"`
	Formats     []string             `json:"formats"`
	JSONOptions firecrawlJSONOptions `json:"jsonOptions"`
}

type firecrawlJSONOptions struct {
	Prompt string         `json:"prompt"`
	Schema map[string]any `json:"schema"`
}

type firecrawlResponse struct {
	Success bool `json:"success"`
	Data    struct {
		JSON     *core.ScrapedDocument `json:"json"`
		Title    string                `json:"title"`
		Content  string                `json:"content"`
		Markdown string                `json:"markdown"`
		Metadata struct {
			Title string `json:"title"`
		} `json:"metadata"`
	} `json:"data"`
	Error string `json:"error"`
}

// documentSchema is the expected shape sent alongside the extraction prompt.
var documentSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":   map[string]any{"type": "string"},
		"content": map[string]any{"type": "string"},
	},
	"required": []string{"title", "content"},
}

// BuildPrompt anchors the extraction on the stub's title and snippet.
func BuildPrompt(req Request) string {
	minLen := req.MinContentLength
	if minLen <= 0 {
		minLen = 800
	}
	return fmt.Sprintf(
		"Extract the full article from this page. The article is titled %q and is described as: %q. "+
			"Return the article title and the complete main body text as plain text, without navigation, ads, or comments. "+
			"The content must be at least %d characters long when the page contains that much article text.",
		req.Title, req.Snippet, minLen)
}

// Extract scrapes req.URL through Firecrawl
func (f *FirecrawlExtractor) Extract(ctx context.Context, req Request) (*core.ScrapedDocument, error) {
	body, err := json.Marshal(firecrawlRequest{
		URL:     req.URL,
		Formats: []string{"json"},
		JSONOptions: firecrawlJSONOptions{
			Prompt: BuildPrompt(req),
			Schema: documentSchema,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode Firecrawl request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create Firecrawl request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+f.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute Firecrawl request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Firecrawl response: %w", err)
	}

	var apiResponse firecrawlResponse
	if err := json.Unmarshal(raw, &apiResponse); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: Firecrawl status %d", ErrExtractionFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to parse Firecrawl response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !apiResponse.Success {
		msg := apiResponse.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrExtractionFailed, msg)
	}

	// A successful scrape with no text is still a document; enrichment falls back to the stub metadata.
	return apiResponse.document(), nil
}

// document prefers the structured json payload and falls back to the flat fields.
func (r *firecrawlResponse) document() *core.ScrapedDocument {
	doc := &core.ScrapedDocument{}
	if r.Data.JSON != nil {
		doc.Title = r.Data.JSON.Title
		doc.Content = r.Data.JSON.Content
	}
	if doc.Title == "" {
		doc.Title = firstNonEmpty(r.Data.Title, r.Data.Metadata.Title)
	}
	if doc.Content == "" {
		doc.Content = firstNonEmpty(r.Data.Content, r.Data.Markdown)
	}
	doc.Title = strings.TrimSpace(doc.Title)
	doc.Content = strings.TrimSpace(doc.Content)
	return doc
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
