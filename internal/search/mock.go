package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockProvider implements Provider for testing and offline runs.
// Results and errors can be scripted per query.
type MockProvider struct {
	mu      sync.Mutex
	name    string
	results []Result
	byQuery map[string][]Result
	errs    map[string]error
	queries []string
	configs []Config
}

// NewMockProvider creates a new mock search provider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name: "Mock",
		results: []Result{
			{
				URL:     "https://example.com/article1",
				Title:   "Example Article 1",
				Snippet: "This is a mock search result for testing purposes.",
				Domain:  "example.com",
				Source:  "Mock",
				Rank:    1,
			},
			{
				URL:     "https://test.org/article2",
				Title:   "Test Article 2",
				Snippet: "Another mock search result with different content.",
				Domain:  "test.org",
				Source:  "Mock",
				Rank:    2,
			},
		},
		byQuery: make(map[string][]Result),
		errs:    make(map[string]error),
	}
}

// GetName returns the name of this provider
func (m *MockProvider) GetName() string {
	return m.name
}

// Search returns scripted results. Default results get a query-specific URL so
// every category yields distinct links.
func (m *MockProvider) Search(ctx context.Context, query string, config Config) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, query)
	m.configs = append(m.configs, config)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.errs[query]; ok {
		return nil, err
	}

	var results []Result
	if scripted, ok := m.byQuery[query]; ok {
		results = append(results, scripted...)
	} else {
		slug := strings.ReplaceAll(query, " ", "-")
		for _, r := range m.results {
			r.URL = fmt.Sprintf("%s?q=%s", r.URL, slug)
			results = append(results, r)
		}
	}

	if config.MaxResults > 0 && len(results) > config.MaxResults {
		results = results[:config.MaxResults]
	}
	return results, nil
}

// SetResults replaces the default results returned for unscripted queries
func (m *MockProvider) SetResults(results []Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
}

// SetQueryResults scripts the exact results for one query
func (m *MockProvider) SetQueryResults(query string, results []Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byQuery[query] = results
}

// SetQueryError makes one query fail
func (m *MockProvider) SetQueryError(query string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[query] = err
}

// SetName allows customization of provider name for testing
func (m *MockProvider) SetName(name string) {
	m.name = name
}

// Queries returns every query issued so far, in order.
func (m *MockProvider) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// Configs returns the request configs that accompanied each query.
func (m *MockProvider) Configs() []Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Config(nil), m.configs...)
}
