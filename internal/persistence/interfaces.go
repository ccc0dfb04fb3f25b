// Package persistence provides database abstraction interfaces for storing article stubs and enriched articles
package persistence

import (
	"context"
	"errors"

	"curator/internal/core"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyEnriched is returned when a stub already owns an enriched article.
	ErrAlreadyEnriched = errors.New("stub already has an enriched article")
)

// StubRepository handles article stub persistence operations
type StubRepository interface {
	// Create inserts the stub unless its link already exists.
	// created reports whether a row was inserted; on insert stub.ID and stub.CreatedAt are set.
	Create(ctx context.Context, stub *core.ArticleStub) (created bool, err error)

	// Get retrieves a stub by ID
	Get(ctx context.Context, id int64) (*core.ArticleStub, error)

	// GetByLink retrieves a stub by its link
	GetByLink(ctx context.Context, link string) (*core.ArticleStub, error)

	// ListUnprocessed returns unprocessed stubs in discovery order
	ListUnprocessed(ctx context.Context, opts UnprocessedOptions) ([]core.ArticleStub, error)

	// MarkProcessed consumes a stub after successful enrichment and stores its scraped text
	MarkProcessed(ctx context.Context, id int64, content string) error

	// MarkFailed records a failed attempt. consume sets processed=true so the stub is not drawn again.
	MarkFailed(ctx context.Context, id int64, message string, consume bool) error

	// ListFailed retrieves stubs that carry a processing error
	ListFailed(ctx context.Context, opts ListOptions) ([]core.ArticleStub, error)

	// ResetFailed makes failed stubs eligible again. Empty ids resets every failed stub without an enrichment.
	ResetFailed(ctx context.Context, ids []int64) (int64, error)

	// Counts summarizes the stub table
	Counts(ctx context.Context) (StubCounts, error)
}

// EnrichedRepository handles enriched article persistence operations
type EnrichedRepository interface {
	// Create inserts an enriched article; a second row for the same stub yields ErrAlreadyEnriched
	Create(ctx context.Context, article *core.EnrichedArticle) error

	// GetByArticleID retrieves the enrichment owned by a stub
	GetByArticleID(ctx context.Context, articleID int64) (*core.EnrichedArticle, error)

	// ListByCategory lists enriched articles, newest first. An empty category lists all.
	ListByCategory(ctx context.Context, category core.Category, opts ListOptions) ([]ListedArticle, error)
}

// UnprocessedOptions bounds a batch draw.
type UnprocessedOptions struct {
	Limit int
	// ExcludeIDs skips stubs already attempted by the current run.
	ExcludeIDs []int64
}

// ListOptions provides common options for list operations
type ListOptions struct {
	Limit  int
	Offset int
}

// StubCounts summarizes stub processing state
type StubCounts struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Enriched  int64 `json:"enriched"`
}

// ListedArticle is an enriched article joined with its stub's link and category
type ListedArticle struct {
	core.EnrichedArticle
	Link     string        `json:"link"`
	Category core.Category `json:"category"`
}

// Database represents the main database interface that aggregates all repositories
type Database interface {
	// Stubs returns the stub repository
	Stubs() StubRepository

	// Enriched returns the enriched article repository
	Enriched() EnrichedRepository

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error

	// BeginTx starts a new transaction
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Stubs returns the stub repository within this transaction
	Stubs() StubRepository

	// Enriched returns the enriched article repository within this transaction
	Enriched() EnrichedRepository
}

// WithTx runs fn inside a transaction, committing on success and rolling back on error.
func WithTx(ctx context.Context, db Database, fn func(tx Transaction) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
