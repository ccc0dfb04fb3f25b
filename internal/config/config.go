package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	Logging   Logging   `mapstructure:"logging"`
	Database  Database  `mapstructure:"database"`
	Search    Search    `mapstructure:"search"`
	Scrape    Scrape    `mapstructure:"scrape"`
	AI        AI        `mapstructure:"ai"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Lock      Lock      `mapstructure:"lock"`
	Server    Server    `mapstructure:"server"`
}

// App holds general application configuration
type App struct {
	Name  string `mapstructure:"name"`
	Debug bool   `mapstructure:"debug"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database holds relational store configuration.
// An empty URL selects the in-memory store.
type Database struct {
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	Timeout         string `mapstructure:"timeout"`
}

// Search holds search provider configuration
type Search struct {
	Provider          string          `mapstructure:"provider"`
	MaxResults        int             `mapstructure:"max_results"`
	Timeout           string          `mapstructure:"timeout"`
	Recency           string          `mapstructure:"recency"`
	RequestsPerMinute int             `mapstructure:"requests_per_minute"`
	Providers         SearchProviders `mapstructure:"providers"`
}

// SearchProviders holds configuration for all search providers
type SearchProviders struct {
	Serper  SerperConfig  `mapstructure:"serper"`
	SerpAPI SerpAPIConfig `mapstructure:"serpapi"`
}

// SerperConfig holds Serper configuration
type SerperConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// SerpAPIConfig holds SerpAPI configuration
type SerpAPIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// Scrape holds content acquisition configuration
type Scrape struct {
	Provider          string          `mapstructure:"provider"`
	Timeout           string          `mapstructure:"timeout"`
	MinContentLength  int             `mapstructure:"min_content_length"`
	UserAgent         string          `mapstructure:"user_agent"`
	RequestsPerMinute int             `mapstructure:"requests_per_minute"`
	Firecrawl         FirecrawlConfig `mapstructure:"firecrawl"`
}

// FirecrawlConfig holds Firecrawl configuration
type FirecrawlConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	Timeout           string  `mapstructure:"timeout"`
	MaxTokens         int32   `mapstructure:"max_tokens"`
	Temperature       float32 `mapstructure:"temperature"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
	StructuredOutput  bool    `mapstructure:"structured_output"`
}

// Pipeline holds the batch enrichment workflow configuration
type Pipeline struct {
	BatchSize       int    `mapstructure:"batch_size"`
	MaxBatches      int    `mapstructure:"max_batches"`
	CategoryDelay   string `mapstructure:"category_delay"`
	SuccessDelay    string `mapstructure:"success_delay"`
	FailureDelay    string `mapstructure:"failure_delay"`
	InterBatchDelay string `mapstructure:"inter_batch_delay"`
	Retry           Retry  `mapstructure:"retry"`
}

// Retry holds the per-stub retry policy
type Retry struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// Scheduler holds the periodic trigger configuration
type Scheduler struct {
	Enabled    bool   `mapstructure:"enabled"`
	Cron       string `mapstructure:"cron"`
	Timezone   string `mapstructure:"timezone"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// Lock holds the single-flight guard configuration
type Lock struct {
	Backend  string `mapstructure:"backend"`
	Key      string `mapstructure:"key"`
	TTL      string `mapstructure:"ttl"`
	RedisURL string `mapstructure:"redis_url"`
}

// Server holds the operational HTTP server configuration
type Server struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".curator")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.name", "curator")
	viper.SetDefault("app.debug", false)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("database.url", "")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "30m")
	viper.SetDefault("database.timeout", "10s")

	viper.SetDefault("search.provider", "serper")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.timeout", "15s")
	viper.SetDefault("search.recency", "qdr:h")
	viper.SetDefault("search.requests_per_minute", 0)
	viper.SetDefault("search.providers.serper.base_url", "https://google.serper.dev")
	viper.SetDefault("search.providers.serpapi.base_url", "https://serpapi.com/search")

	viper.SetDefault("scrape.provider", "firecrawl")
	viper.SetDefault("scrape.timeout", "60s")
	viper.SetDefault("scrape.min_content_length", 800)
	viper.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; curator/1.0)")
	viper.SetDefault("scrape.requests_per_minute", 0)
	viper.SetDefault("scrape.firecrawl.base_url", "https://api.firecrawl.dev/v1")

	viper.SetDefault("ai.gemini.model", "gemini-2.0-flash")
	viper.SetDefault("ai.gemini.timeout", "60s")
	viper.SetDefault("ai.gemini.max_tokens", 8192)
	viper.SetDefault("ai.gemini.temperature", 0.4)
	viper.SetDefault("ai.gemini.requests_per_minute", 0)
	viper.SetDefault("ai.gemini.structured_output", false)

	viper.SetDefault("pipeline.batch_size", 5)
	viper.SetDefault("pipeline.max_batches", 20)
	viper.SetDefault("pipeline.category_delay", "1s")
	viper.SetDefault("pipeline.success_delay", "3s")
	viper.SetDefault("pipeline.failure_delay", "5s")
	viper.SetDefault("pipeline.inter_batch_delay", "2s")
	viper.SetDefault("pipeline.retry.max_attempts", 1)

	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.cron", "0 * * * *")
	viper.SetDefault("scheduler.timezone", "UTC")
	viper.SetDefault("scheduler.run_on_start", true)

	viper.SetDefault("lock.backend", "auto")
	viper.SetDefault("lock.key", "curator:run")
	viper.SetDefault("lock.ttl", "2h")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.cors_origins", []string{})
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("search.providers.serper.api_key", []string{
		"SERPER_API_KEY",
		"SERPER_KEY",
	})

	bindEnvKeys("search.providers.serpapi.api_key", []string{
		"SERPAPI_API_KEY",
		"SERPAPI_KEY",
	})

	bindEnvKeys("scrape.firecrawl.api_key", []string{
		"FIRECRAWL_API_KEY",
		"FIRECRAWL_KEY",
	})

	bindEnvKeys("database.url", []string{
		"DATABASE_URL",
		"CURATOR_DATABASE_URL",
	})

	bindEnvKeys("lock.redis_url", []string{
		"REDIS_URL",
		"CURATOR_REDIS_URL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"CURATOR_DEBUG",
	})

	bindEnvKeys("server.port", []string{
		"PORT",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.Debug {
		config.Logging.Level = "debug"
	}

	durations := map[string]string{
		"database.conn_max_lifetime": config.Database.ConnMaxLifetime,
		"database.timeout":           config.Database.Timeout,
		"search.timeout":             config.Search.Timeout,
		"scrape.timeout":             config.Scrape.Timeout,
		"ai.gemini.timeout":          config.AI.Gemini.Timeout,
		"pipeline.category_delay":    config.Pipeline.CategoryDelay,
		"pipeline.success_delay":     config.Pipeline.SuccessDelay,
		"pipeline.failure_delay":     config.Pipeline.FailureDelay,
		"pipeline.inter_batch_delay": config.Pipeline.InterBatchDelay,
		"lock.ttl":                   config.Lock.TTL,
		"server.read_timeout":        config.Server.ReadTimeout,
		"server.write_timeout":       config.Server.WriteTimeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	if config.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(config.Scheduler.Timezone); err != nil {
			return fmt.Errorf("invalid scheduler.timezone %q: %w", config.Scheduler.Timezone, err)
		}
	}

	return nil
}

// validateConfig checks structural settings. Provider credentials are checked
// separately by RequireProviders because read-only commands do not need them.
func validateConfig(config *Config) error {
	var errors []string

	if config.Pipeline.BatchSize <= 0 {
		errors = append(errors, "pipeline.batch_size must be positive")
	}
	if config.Pipeline.MaxBatches <= 0 {
		errors = append(errors, "pipeline.max_batches must be positive")
	}
	if config.Pipeline.Retry.MaxAttempts <= 0 {
		errors = append(errors, "pipeline.retry.max_attempts must be at least 1")
	}

	switch config.Search.Provider {
	case "serper", "serpapi", "mock":
	default:
		errors = append(errors, fmt.Sprintf("Unknown search provider: %s. Supported: serper, serpapi, mock", config.Search.Provider))
	}

	switch config.Scrape.Provider {
	case "firecrawl", "readability":
	default:
		errors = append(errors, fmt.Sprintf("Unknown scrape provider: %s. Supported: firecrawl, readability", config.Scrape.Provider))
	}

	switch config.Lock.Backend {
	case "auto", "memory", "postgres", "redis":
	default:
		errors = append(errors, fmt.Sprintf("Unknown lock backend: %s. Supported: auto, memory, postgres, redis", config.Lock.Backend))
	}
	if config.Lock.Backend == "redis" && config.Lock.RedisURL == "" {
		errors = append(errors, "Redis lock backend requires lock.redis_url or REDIS_URL")
	}
	if config.Lock.Backend == "postgres" && config.Database.URL == "" {
		errors = append(errors, "Postgres lock backend requires database.url or DATABASE_URL")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// RequireProviders ensures the credentials needed by an ingestion cycle are present.
// withEnrichment is false for discovery-only invocations.
func (c *Config) RequireProviders(withEnrichment bool) error {
	var errors []string

	switch c.Search.Provider {
	case "serper":
		if !isValidAPIKey(c.Search.Providers.Serper.APIKey) {
			errors = append(errors, "Serper requires an API key. Set SERPER_API_KEY environment variable")
		}
	case "serpapi":
		if !isValidAPIKey(c.Search.Providers.SerpAPI.APIKey) {
			errors = append(errors, "SerpAPI requires an API key. Set SERPAPI_API_KEY environment variable")
		}
	}

	if withEnrichment {
		if c.Scrape.Provider == "firecrawl" && !isValidAPIKey(c.Scrape.Firecrawl.APIKey) {
			errors = append(errors, "Firecrawl requires an API key. Set FIRECRAWL_API_KEY environment variable or use scrape.provider=readability")
		}
		if !isValidAPIKey(c.AI.Gemini.APIKey) {
			errors = append(errors, "Gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Duration parses a duration that postProcessConfig has already validated.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// Addr returns the listen address of the ops server.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-serper-key", "your-firecrawl-key", "your-gemini-key",
		"YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}

	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}

	return true
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
