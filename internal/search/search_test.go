package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProviderTypeConstants(t *testing.T) {
	expectedTypes := map[ProviderType]string{
		ProviderTypeSerper:  "serper",
		ProviderTypeSerpAPI: "serpapi",
		ProviderTypeMock:    "mock",
	}

	for providerType, expectedValue := range expectedTypes {
		if string(providerType) != expectedValue {
			t.Errorf("Expected %s to be %s, got %s", providerType, expectedValue, string(providerType))
		}
	}
}

func TestCreateProvider(t *testing.T) {
	factory := NewProviderFactory()

	tests := []struct {
		name         string
		providerType ProviderType
		config       map[string]string
		wantErr      error
		wantName     string
	}{
		{"serper ok", ProviderTypeSerper, map[string]string{"api_key": "k"}, nil, "Serper"},
		{"serper missing key", ProviderTypeSerper, map[string]string{}, ErrMissingAPIKey, ""},
		{"serpapi ok", ProviderTypeSerpAPI, map[string]string{"api_key": "k"}, nil, "SerpAPI"},
		{"serpapi missing key", ProviderTypeSerpAPI, nil, ErrMissingAPIKey, ""},
		{"mock", ProviderTypeMock, nil, nil, "Mock"},
		{"unsupported", "bing", nil, ErrUnsupportedProvider, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := factory.CreateProvider(tt.providerType, tt.config)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				if provider != nil {
					t.Error("Expected nil provider when creation fails")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if provider.GetName() != tt.wantName {
				t.Errorf("Expected name %s, got %s", tt.wantName, provider.GetName())
			}
		})
	}
}

func TestSerperProvider_Search(t *testing.T) {
	var gotReq serperRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-API-KEY") != "secret" {
			t.Errorf("missing API key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"organic": [
				{"title": "AI news", "link": "https://www.example.com/a", "snippet": "s1", "position": 1, "date": "1 hour ago"},
				{"title": "No link", "link": "", "snippet": "skip", "position": 2},
				{"title": "More AI", "link": "https://news.test/b", "snippet": "s2", "position": 3}
			]
		}`))
	}))
	defer server.Close()

	p := NewSerperProvider("secret", server.URL, time.Second)
	results, err := p.Search(context.Background(), "latest ai articles", Config{Recency: "qdr:h"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if gotReq.Query != "latest ai articles" || gotReq.TBS != "qdr:h" {
		t.Errorf("unexpected request body: %+v", gotReq)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Domain != "example.com" || results[0].Date != "1 hour ago" || results[0].Rank != 1 {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].Rank != 3 {
		t.Errorf("Expected provider position to be kept, got %d", results[1].Rank)
	}
}

func TestSerperProvider_StatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusBadGateway, ErrProviderUnavailable},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		p := NewSerperProvider("k", server.URL, time.Second)
		_, err := p.Search(context.Background(), "q", Config{})
		server.Close()

		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}
}

func TestSerpAPIProvider_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("tbs") != "qdr:h" || q.Get("api_key") != "k" || q.Get("q") != "latest science articles" {
			t.Errorf("unexpected query: %v", q)
		}
		_, _ = w.Write([]byte(`{"organic_results":[{"title":"T","link":"https://x.org/1","snippet":"S","position":1}]}`))
	}))
	defer server.Close()

	p := NewSerpAPIProvider("k", server.URL, time.Second)
	results, err := p.Search(context.Background(), "latest science articles", Config{Recency: "qdr:h"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].URL != "https://x.org/1" || results[0].Source != "SerpAPI" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestSerpAPIProvider_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Google hasn't returned any results for this query."}`))
	}))
	defer server.Close()

	p := NewSerpAPIProvider("k", server.URL, time.Second)
	results, err := p.Search(context.Background(), "q", Config{})
	if err != nil {
		t.Fatalf("Expected empty result set, got error %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected 0 results, got %d", len(results))
	}
}

func TestMockProviderScripting(t *testing.T) {
	provider := NewMockProvider()
	boom := errors.New("boom")
	provider.SetQueryError("bad", boom)
	provider.SetQueryResults("good", []Result{{URL: "https://custom.com/a", Rank: 1}})

	if _, err := provider.Search(context.Background(), "bad", Config{}); !errors.Is(err, boom) {
		t.Errorf("Expected scripted error, got %v", err)
	}

	results, err := provider.Search(context.Background(), "good", Config{})
	if err != nil || len(results) != 1 || results[0].URL != "https://custom.com/a" {
		t.Errorf("unexpected scripted results: %+v, %v", results, err)
	}

	a, _ := provider.Search(context.Background(), "one", Config{})
	b, _ := provider.Search(context.Background(), "two", Config{})
	if a[0].URL == b[0].URL {
		t.Error("default results should differ per query")
	}

	if got := provider.Queries(); len(got) != 4 || got[0] != "bad" {
		t.Errorf("unexpected recorded queries: %v", got)
	}
}

func TestThrottledProvider_AppliesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := NewThrottledProvider(NewSerperProvider("k", server.URL, 5*time.Second), 0, 50*time.Millisecond)
	start := time.Now()
	_, err := p.Search(context.Background(), "q", Config{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Errorf("call was not bounded by the timeout")
	}
	if p.GetName() != "Serper" {
		t.Errorf("unexpected name %s", p.GetName())
	}
}
