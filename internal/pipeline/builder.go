package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"curator/internal/logger"
	"curator/internal/parser"
	"curator/internal/persistence"
	"curator/internal/runlock"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	db        persistence.Database
	searcher  LinkSearcher
	extractor ContentExtractor
	enricher  ArticleEnricher
	parser    ResponseParser
	locker    runlock.Locker
	sleeper   Sleeper
	now       func() time.Time
	log       *slog.Logger
	config    *Config
}

// NewBuilder creates a new pipeline builder with default settings
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithDatabase sets the stub and enrichment store
func (b *Builder) WithDatabase(db persistence.Database) *Builder {
	b.db = db
	return b
}

// WithSearcher sets the discovery search provider
func (b *Builder) WithSearcher(s LinkSearcher) *Builder {
	b.searcher = s
	return b
}

// WithExtractor sets the content acquisition provider
func (b *Builder) WithExtractor(e ContentExtractor) *Builder {
	b.extractor = e
	return b
}

// WithEnricher sets the generative enrichment step
func (b *Builder) WithEnricher(e ArticleEnricher) *Builder {
	b.enricher = e
	return b
}

// WithParser overrides the default response extraction chain
func (b *Builder) WithParser(p ResponseParser) *Builder {
	b.parser = p
	return b
}

// WithLocker sets the single-flight guard
func (b *Builder) WithLocker(l runlock.Locker) *Builder {
	b.locker = l
	return b
}

// WithSleeper replaces wall-clock delays, mainly for tests
func (b *Builder) WithSleeper(s Sleeper) *Builder {
	b.sleeper = s
	return b
}

// WithClock sets the time source for run timestamps
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithLogger sets the logger
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.log = l
	return b
}

// WithConfig sets the pipeline configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// BuildDiscoverer constructs a pipeline that can only run DiscoverLinks.
// Acquisition and enrichment providers are not required.
func (b *Builder) BuildDiscoverer() (*Pipeline, error) {
	if b.db == nil {
		return nil, errors.New("database is required")
	}
	if b.searcher == nil {
		return nil, errors.New("search provider is required")
	}
	return b.assemble(), nil
}

// Build constructs a fully configured Pipeline
func (b *Builder) Build() (*Pipeline, error) {
	if b.db == nil {
		return nil, errors.New("database is required")
	}
	if b.searcher == nil {
		return nil, errors.New("search provider is required")
	}
	if b.extractor == nil {
		return nil, errors.New("content extractor is required")
	}
	if b.enricher == nil {
		return nil, errors.New("enricher is required")
	}
	return b.assemble(), nil
}

func (b *Builder) assemble() *Pipeline {
	config := b.config
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.normalize()

	p := &Pipeline{
		db:        b.db,
		searcher:  b.searcher,
		extractor: b.extractor,
		enricher:  b.enricher,
		parser:    b.parser,
		locker:    b.locker,
		sleeper:   b.sleeper,
		now:       b.now,
		log:       b.log,
		config:    &cfg,
	}
	if p.parser == nil {
		p.parser = parser.DefaultChain()
	}
	if p.locker == nil {
		p.locker = runlock.NewMemoryLocker()
	}
	if p.sleeper == nil {
		p.sleeper = TimerSleeper{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.log == nil {
		p.log = logger.Component("pipeline")
	}
	return p
}
