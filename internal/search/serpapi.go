package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"curator/internal/logger"
)

const defaultSerpAPIBaseURL = "https://serpapi.com/search"

// SerpAPIProvider implements Provider using SerpAPI (premium option)
type SerpAPIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSerpAPIProvider creates a new SerpAPI search provider
func NewSerpAPIProvider(apiKey, baseURL string, timeout time.Duration) *SerpAPIProvider {
	if baseURL == "" {
		baseURL = defaultSerpAPIBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SerpAPIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetName returns the name of this provider
func (s *SerpAPIProvider) GetName() string {
	return "SerpAPI"
}

// Search performs a search using SerpAPI
func (s *SerpAPIProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("engine", "google")
	params.Set("api_key", s.apiKey)
	if config.MaxResults > 0 {
		params.Set("num", strconv.Itoa(config.MaxResults))
	}
	if config.Recency != "" {
		params.Set("tbs", config.Recency)
	}
	if config.Language != "" {
		params.Set("hl", config.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create SerpAPI request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute SerpAPI request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError("SerpAPI", resp); err != nil {
		return nil, err
	}

	var apiResponse struct {
		OrganicResults []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Position int    `json:"position"`
			Date     string `json:"date"`
		} `json:"organic_results"`
		Error string `json:"error,omitempty"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse SerpAPI response: %w", err)
	}

	// SerpAPI reports "no results" through the error field with a 200 status
	if apiResponse.Error != "" && len(apiResponse.OrganicResults) == 0 {
		if apiResponse.Error == "Google hasn't returned any results for this query." {
			return []Result{}, nil
		}
		return nil, fmt.Errorf("SerpAPI error: %s", apiResponse.Error)
	}

	results := make([]Result, 0, len(apiResponse.OrganicResults))
	for _, item := range apiResponse.OrganicResults {
		results = append(results, Result{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			Domain:  extractDomain(item.Link),
			Date:    item.Date,
			Source:  "SerpAPI",
			Rank:    item.Position,
		})
	}

	logger.Debug("SerpAPI search completed", "query", query, "results_found", len(results))
	return results, nil
}
