package search

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Provider defines the unified interface for search providers
type Provider interface {
	// Search performs a search with configuration
	Search(ctx context.Context, query string, config Config) ([]Result, error)

	// GetName returns the name of the search provider
	GetName() string
}

// Config holds configuration for search requests
type Config struct {
	MaxResults int    // Maximum number of results to return
	Recency    string // Provider time filter, e.g. "qdr:h" for the past hour
	Language   string // Language preference (e.g., "en", "es")
}

// Result represents a unified search result
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Domain  string `json:"domain"`
	Date    string `json:"date,omitempty"` // Provider date text, e.g. "2 hours ago"
	Source  string `json:"source"`         // Provider-specific source identifier
	Rank    int    `json:"rank"`           // Position in search results
}

// ProviderType represents the type of search provider
type ProviderType string

const (
	ProviderTypeSerper  ProviderType = "serper"
	ProviderTypeSerpAPI ProviderType = "serpapi"
	ProviderTypeMock    ProviderType = "mock"
)

// ProviderFactory creates search providers based on type and configuration
type ProviderFactory struct {
	timeout time.Duration
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{timeout: 30 * time.Second}
}

// WithTimeout sets the HTTP client timeout used by created providers.
func (f *ProviderFactory) WithTimeout(d time.Duration) *ProviderFactory {
	if d > 0 {
		f.timeout = d
	}
	return f
}

// CreateProvider creates a search provider of the specified type.
// Recognized config keys are "api_key" and "base_url".
func (f *ProviderFactory) CreateProvider(providerType ProviderType, config map[string]string) (Provider, error) {
	switch providerType {
	case ProviderTypeSerper:
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewSerperProvider(apiKey, config["base_url"], f.timeout), nil
	case ProviderTypeSerpAPI:
		apiKey := config["api_key"]
		if apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		return NewSerpAPIProvider(apiKey, config["base_url"], f.timeout), nil
	case ProviderTypeMock:
		return NewMockProvider(), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// GetAvailableProviders returns a list of available provider types
func (f *ProviderFactory) GetAvailableProviders() []ProviderType {
	return []ProviderType{
		ProviderTypeSerper,
		ProviderTypeSerpAPI,
		ProviderTypeMock,
	}
}

// extractDomain extracts the domain name from a URL
func extractDomain(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}
