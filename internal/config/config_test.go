package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withTempDir(t *testing.T) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(orig)
		Reset()
	})
	Reset()
}

func TestLoad_Defaults(t *testing.T) {
	withTempDir(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.BatchSize != 5 {
		t.Errorf("batch_size = %d, want 5", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.MaxBatches != 20 {
		t.Errorf("max_batches = %d, want 20", cfg.Pipeline.MaxBatches)
	}
	if cfg.Pipeline.Retry.MaxAttempts != 1 {
		t.Errorf("retry.max_attempts = %d, want 1", cfg.Pipeline.Retry.MaxAttempts)
	}
	if got := Duration(cfg.Pipeline.SuccessDelay, 0); got != 3*time.Second {
		t.Errorf("success_delay = %v, want 3s", got)
	}
	if got := Duration(cfg.Pipeline.FailureDelay, 0); got != 5*time.Second {
		t.Errorf("failure_delay = %v, want 5s", got)
	}
	if got := Duration(cfg.Pipeline.InterBatchDelay, 0); got != 2*time.Second {
		t.Errorf("inter_batch_delay = %v, want 2s", got)
	}
	if got := Duration(cfg.Pipeline.CategoryDelay, 0); got != time.Second {
		t.Errorf("category_delay = %v, want 1s", got)
	}
	if cfg.Search.Recency != "qdr:h" {
		t.Errorf("search.recency = %q", cfg.Search.Recency)
	}
	if cfg.Scheduler.Cron != "0 * * * *" {
		t.Errorf("scheduler.cron = %q", cfg.Scheduler.Cron)
	}
}

func TestLoad_EnvironmentAliases(t *testing.T) {
	withTempDir(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SERPER_API_KEY", "serper-test")
	t.Setenv("FIRECRAWL_API_KEY", "fc-test")
	t.Setenv("GEMINI_API_KEY", "gem-test")
	t.Setenv("DATABASE_URL", "postgres://localhost/curator")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Search.Providers.Serper.APIKey != "serper-test" {
		t.Errorf("serper key = %q", cfg.Search.Providers.Serper.APIKey)
	}
	if cfg.Scrape.Firecrawl.APIKey != "fc-test" {
		t.Errorf("firecrawl key = %q", cfg.Scrape.Firecrawl.APIKey)
	}
	if cfg.AI.Gemini.APIKey != "gem-test" {
		t.Errorf("gemini key = %q", cfg.AI.Gemini.APIKey)
	}
	if cfg.Database.URL != "postgres://localhost/curator" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if err := cfg.RequireProviders(true); err != nil {
		t.Errorf("RequireProviders returned %v", err)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	withTempDir(t)
	path := filepath.Join(t.TempDir(), "curator.yaml")
	content := `
pipeline:
  batch_size: 3
  success_delay: 10ms
  retry:
    max_attempts: 2
scrape:
  provider: readability
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.BatchSize != 3 {
		t.Errorf("batch_size = %d, want 3", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.Retry.MaxAttempts != 2 {
		t.Errorf("max_attempts = %d, want 2", cfg.Pipeline.Retry.MaxAttempts)
	}
	if cfg.Scrape.Provider != "readability" {
		t.Errorf("scrape.provider = %q", cfg.Scrape.Provider)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	withTempDir(t)
	path := filepath.Join(t.TempDir(), "curator.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n  failure_delay: soon\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "pipeline.failure_delay") {
		t.Errorf("error should name the key, got %v", err)
	}
}

func TestValidateConfig_UnknownProvider(t *testing.T) {
	cfg := &Config{
		Pipeline: Pipeline{BatchSize: 5, MaxBatches: 20, Retry: Retry{MaxAttempts: 1}},
		Search:   Search{Provider: "bing"},
		Scrape:   Scrape{Provider: "firecrawl"},
		Lock:     Lock{Backend: "memory"},
	}
	err := validateConfig(cfg)
	if err == nil || !strings.Contains(err.Error(), "Unknown search provider: bing") {
		t.Errorf("expected unknown provider error, got %v", err)
	}
}

func TestRequireProviders_MissingKeys(t *testing.T) {
	cfg := &Config{
		Search: Search{Provider: "serper"},
		Scrape: Scrape{Provider: "firecrawl"},
	}

	err := cfg.RequireProviders(false)
	if err == nil || !strings.Contains(err.Error(), "SERPER_API_KEY") {
		t.Errorf("discovery-only should still require the search key, got %v", err)
	}
	if strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Errorf("discovery-only should not require Gemini: %v", err)
	}

	err = cfg.RequireProviders(true)
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") || !strings.Contains(err.Error(), "FIRECRAWL_API_KEY") {
		t.Errorf("full cycle should require every provider key, got %v", err)
	}
}

func TestIsValidAPIKey(t *testing.T) {
	if isValidAPIKey("") || isValidAPIKey("CHANGE_ME") {
		t.Error("placeholders should be rejected")
	}
	if !isValidAPIKey("abc123") {
		t.Error("real key should be accepted")
	}
}
