package handlers

import (
	"context"
	"fmt"
	"time"

	"curator/internal/config"
	"curator/internal/enrich"
	"curator/internal/llm"
	"curator/internal/logger"
	"curator/internal/persistence"
	"curator/internal/pipeline"
	"curator/internal/runlock"
	"curator/internal/scrape"
	"curator/internal/search"
)

// getDatabase opens Postgres when a URL is configured and falls back to the in-memory store otherwise.
func getDatabase(cfg *config.Config) (persistence.Database, error) {
	if cfg.Database.URL == "" {
		logger.Warn("No database.url configured, using in-memory store; data is lost on exit")
		return persistence.NewMemoryDB(), nil
	}

	db, err := persistence.NewPostgresDB(cfg.Database.URL, persistence.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: config.Duration(cfg.Database.ConnMaxLifetime, 30*time.Minute),
		ConnectTimeout:  config.Duration(cfg.Database.Timeout, 10*time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// getPostgres is getDatabase for commands that only make sense against Postgres.
func getPostgres(cfg *config.Config) (*persistence.PostgresDB, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database connection string not configured (set database.url in config or DATABASE_URL env var)")
	}
	db, err := getDatabase(cfg)
	if err != nil {
		return nil, err
	}
	return db.(*persistence.PostgresDB), nil
}

func buildSearcher(cfg *config.Config) (pipeline.LinkSearcher, error) {
	timeout := config.Duration(cfg.Search.Timeout, 15*time.Second)

	settings := map[string]string{}
	switch cfg.Search.Provider {
	case "serper":
		settings["api_key"] = cfg.Search.Providers.Serper.APIKey
		settings["base_url"] = cfg.Search.Providers.Serper.BaseURL
	case "serpapi":
		settings["api_key"] = cfg.Search.Providers.SerpAPI.APIKey
		settings["base_url"] = cfg.Search.Providers.SerpAPI.BaseURL
	}

	provider, err := search.NewProviderFactory().
		WithTimeout(timeout).
		CreateProvider(search.ProviderType(cfg.Search.Provider), settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s search provider: %w", cfg.Search.Provider, err)
	}
	return search.NewThrottledProvider(provider, cfg.Search.RequestsPerMinute, timeout), nil
}

func buildExtractor(cfg *config.Config) (pipeline.ContentExtractor, error) {
	extractor, err := scrape.New(scrape.Options{
		Provider:          cfg.Scrape.Provider,
		APIKey:            cfg.Scrape.Firecrawl.APIKey,
		BaseURL:           cfg.Scrape.Firecrawl.BaseURL,
		UserAgent:         cfg.Scrape.UserAgent,
		Timeout:           config.Duration(cfg.Scrape.Timeout, 60*time.Second),
		RequestsPerMinute: cfg.Scrape.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create content extractor: %w", err)
	}
	return extractor, nil
}

func buildEnricher(ctx context.Context, cfg *config.Config) (pipeline.ArticleEnricher, error) {
	gemini := cfg.AI.Gemini
	client, err := llm.NewClient(ctx, llm.Config{
		APIKey:      gemini.APIKey,
		Model:       gemini.Model,
		MaxTokens:   gemini.MaxTokens,
		Temperature: gemini.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	traced := llm.NewTracedClient(client, gemini.RequestsPerMinute,
		config.Duration(gemini.Timeout, 60*time.Second), logger.Component("llm"))
	return enrich.New(traced, enrich.WithStructuredOutput(gemini.StructuredOutput)), nil
}

func buildLocker(cfg *config.Config, db persistence.Database) (runlock.Locker, error) {
	opts := runlock.Options{
		Backend:  cfg.Lock.Backend,
		Key:      cfg.Lock.Key,
		TTL:      config.Duration(cfg.Lock.TTL, runlock.DefaultTTL),
		RedisURL: cfg.Lock.RedisURL,
	}
	if pg, ok := db.(*persistence.PostgresDB); ok {
		opts.DB = pg.DB()
	}

	locker, err := runlock.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create run lock: %w", err)
	}
	return locker, nil
}

// pipelineConfig maps the config file onto the pipeline's tunables
func pipelineConfig(cfg *config.Config) *pipeline.Config {
	d := pipeline.DefaultConfig()
	p := cfg.Pipeline

	return &pipeline.Config{
		Categories:       d.Categories,
		SearchResults:    cfg.Search.MaxResults,
		Recency:          cfg.Search.Recency,
		MinContentLength: cfg.Scrape.MinContentLength,
		BatchSize:        p.BatchSize,
		MaxBatches:       p.MaxBatches,
		CategoryDelay:    config.Duration(p.CategoryDelay, d.CategoryDelay),
		SuccessDelay:     config.Duration(p.SuccessDelay, d.SuccessDelay),
		FailureDelay:     config.Duration(p.FailureDelay, d.FailureDelay),
		InterBatchDelay:  config.Duration(p.InterBatchDelay, d.InterBatchDelay),
		MaxAttempts:      p.Retry.MaxAttempts,
	}
}

// ingestion bundles what a cycle needs so commands can release it in one call
type ingestion struct {
	db       persistence.Database
	locker   runlock.Locker
	pipeline *pipeline.Pipeline
}

func (in *ingestion) Close() {
	if in.locker != nil {
		_ = in.locker.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

// buildIngestion wires providers, storage and the run lock into a pipeline.
// discoverOnly skips the scrape and LLM providers and their credentials.
func buildIngestion(ctx context.Context, cfg *config.Config, discoverOnly bool) (*ingestion, error) {
	if err := cfg.RequireProviders(!discoverOnly); err != nil {
		return nil, err
	}

	searcher, err := buildSearcher(cfg)
	if err != nil {
		return nil, err
	}

	db, err := getDatabase(cfg)
	if err != nil {
		return nil, err
	}
	in := &ingestion{db: db}

	in.locker, err = buildLocker(cfg, db)
	if err != nil {
		in.Close()
		return nil, err
	}

	builder := pipeline.NewBuilder().
		WithDatabase(db).
		WithSearcher(searcher).
		WithLocker(in.locker).
		WithLogger(logger.Component("pipeline")).
		WithConfig(pipelineConfig(cfg))

	if discoverOnly {
		in.pipeline, err = builder.BuildDiscoverer()
	} else {
		var (
			extractor pipeline.ContentExtractor
			enricher  pipeline.ArticleEnricher
		)
		if extractor, err = buildExtractor(cfg); err != nil {
			in.Close()
			return nil, err
		}
		if enricher, err = buildEnricher(ctx, cfg); err != nil {
			in.Close()
			return nil, err
		}
		in.pipeline, err = builder.WithExtractor(extractor).WithEnricher(enricher).Build()
	}
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	logger.Info("Ingestion wired",
		"search", searcher.GetName(),
		"scrape", cfg.Scrape.Provider,
		"lock", in.locker.Name(),
		"discover_only", discoverOnly,
	)
	return in, nil
}
