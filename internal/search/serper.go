package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curator/internal/logger"
)

const defaultSerperBaseURL = "https://google.serper.dev"

// SerperProvider implements Provider using the Serper Google search API
type SerperProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSerperProvider creates a new Serper search provider
func NewSerperProvider(apiKey, baseURL string, timeout time.Duration) *SerperProvider {
	if baseURL == "" {
		baseURL = defaultSerperBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SerperProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// GetName returns the name of this provider
func (s *SerperProvider) GetName() string {
	return "Serper"
}

type serperRequest struct {
	Query string `json:"q"`
	TBS   string `json:"tbs,omitempty"`
	Num   int    `json:"num,omitempty"`
	HL    string `json:"hl,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
		Date     string `json:"date"`
	} `json:"organic"`
	Message string `json:"message"`
}

// Search performs a search using Serper
func (s *SerperProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	body, err := json.Marshal(serperRequest{
		Query: query,
		TBS:   config.Recency,
		Num:   config.MaxResults,
		HL:    config.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode Serper request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create Serper request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute Serper request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError("Serper", resp); err != nil {
		return nil, err
	}

	var apiResponse serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse Serper response: %w", err)
	}

	results := make([]Result, 0, len(apiResponse.Organic))
	for i, item := range apiResponse.Organic {
		if item.Link == "" {
			continue
		}
		rank := item.Position
		if rank == 0 {
			rank = i + 1
		}
		results = append(results, Result{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			Domain:  extractDomain(item.Link),
			Date:    item.Date,
			Source:  "Serper",
			Rank:    rank,
		})
	}

	logger.Debug("Serper search completed", "query", query, "results_found", len(results))
	return results, nil
}

// statusError maps provider HTTP status codes onto the package sentinel errors.
func statusError(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(detail))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w (status %d)", provider, ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", provider, ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: %w (status %d)", provider, ErrProviderUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%s request failed with status %d: %s", provider, resp.StatusCode, msg)
	}
}
