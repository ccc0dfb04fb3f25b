package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	"curator/internal/config"
	"curator/internal/core"
	"curator/internal/persistence"
)

func offlineConfig() *config.Config {
	return &config.Config{
		Search: config.Search{
			Provider:   "mock",
			MaxResults: 10,
			Recency:    "qdr:h",
		},
		Scrape: config.Scrape{Provider: "readability", MinContentLength: 500},
		Pipeline: config.Pipeline{
			BatchSize:     5,
			MaxBatches:    20,
			CategoryDelay: "1ms",
			Retry:         config.Retry{MaxAttempts: 1},
		},
		Lock: config.Lock{Backend: "auto", Key: "curator:test"},
	}
}

func TestPipelineConfig(t *testing.T) {
	cfg := offlineConfig()
	cfg.Pipeline.SuccessDelay = "250ms"
	cfg.Pipeline.Retry.MaxAttempts = 3

	pc := pipelineConfig(cfg)

	if pc.BatchSize != 5 || pc.MaxBatches != 20 || pc.MaxAttempts != 3 {
		t.Errorf("batching not mapped: %+v", pc)
	}
	if pc.SearchResults != 10 || pc.Recency != "qdr:h" || pc.MinContentLength != 500 {
		t.Errorf("discovery settings not mapped: %+v", pc)
	}
	if pc.CategoryDelay != time.Millisecond || pc.SuccessDelay != 250*time.Millisecond {
		t.Errorf("configured delays not mapped: category=%v success=%v", pc.CategoryDelay, pc.SuccessDelay)
	}
	if pc.FailureDelay != 5*time.Second || pc.InterBatchDelay != 2*time.Second {
		t.Errorf("unset delays should keep defaults: failure=%v inter=%v", pc.FailureDelay, pc.InterBatchDelay)
	}
	if len(pc.Categories) != len(core.Categories()) {
		t.Errorf("categories = %v", pc.Categories)
	}
}

func TestGetDatabase_MemoryFallback(t *testing.T) {
	db, err := getDatabase(offlineConfig())
	if err != nil {
		t.Fatalf("getDatabase failed: %v", err)
	}
	defer db.Close()

	if _, ok := db.(*persistence.MemoryDB); !ok {
		t.Errorf("expected in-memory store without a URL, got %T", db)
	}
	if _, err := getPostgres(offlineConfig()); err == nil {
		t.Error("getPostgres should refuse to run without a URL")
	}
}

func TestBuildLocker_AutoFallsBackToMemory(t *testing.T) {
	locker, err := buildLocker(offlineConfig(), persistence.NewMemoryDB())
	if err != nil {
		t.Fatalf("buildLocker failed: %v", err)
	}
	if locker.Name() != "memory" {
		t.Errorf("locker = %s, want memory", locker.Name())
	}
}

func TestBuildIngestion_DiscoverOnly(t *testing.T) {
	in, err := buildIngestion(context.Background(), offlineConfig(), true)
	if err != nil {
		t.Fatalf("buildIngestion failed: %v", err)
	}
	defer in.Close()

	result, err := in.pipeline.DiscoverLinks(context.Background())
	if err != nil {
		t.Fatalf("DiscoverLinks failed: %v", err)
	}
	if result.CategoriesQueried != len(core.Categories()) {
		t.Errorf("queried %d categories", result.CategoriesQueried)
	}

	counts, err := in.db.Stubs().Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.Pending != int64(len(result.NewStubIDs)) || counts.Pending == 0 {
		t.Errorf("pending = %d, new = %d", counts.Pending, len(result.NewStubIDs))
	}
}

func TestBuildIngestion_RequiresCredentials(t *testing.T) {
	cfg := offlineConfig()
	cfg.Search.Provider = "serper"

	if _, err := buildIngestion(context.Background(), cfg, true); err == nil || !strings.Contains(err.Error(), "Serper") {
		t.Errorf("expected missing Serper key error, got %v", err)
	}

	cfg = offlineConfig()
	if _, err := buildIngestion(context.Background(), cfg, false); err == nil || !strings.Contains(err.Error(), "Gemini") {
		t.Errorf("full cycle without a Gemini key should fail, got %v", err)
	}
}

func TestParseCmd(t *testing.T) {
	reply := "Here you go:\n```json\n" +
		`{"refinedTitle":"T","refinedArticle":"Body","summary":"S","keyTakeaways":["a","b"]}` +
		"\n```"

	cmd := NewParseCmd()
	cmd.SetArgs([]string{"-"})
	cmd.SetIn(strings.NewReader(reply))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	bad := NewParseCmd()
	bad.SetArgs([]string{"-"})
	bad.SetIn(strings.NewReader(`{"refinedTitle":"only a title"}`))
	bad.SilenceErrors = true
	bad.SilenceUsage = true
	if err := bad.Execute(); err == nil {
		t.Error("incomplete reply should fail")
	}
}
