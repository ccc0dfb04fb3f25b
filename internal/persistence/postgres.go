// Package persistence provides database implementations
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	"curator/internal/core"
)

// PoolOptions tunes the connection pool
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db       *sql.DB
	stubs    StubRepository
	enriched EnrichedRepository
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string, opts PoolOptions) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{
		db:       db,
		stubs:    &postgresStubRepo{db: db},
		enriched: &postgresEnrichedRepo{db: db},
	}, nil
}

func (p *PostgresDB) Stubs() StubRepository        { return p.stubs }
func (p *PostgresDB) Enriched() EnrichedRepository { return p.enriched }

// DB exposes the pool for session-scoped features such as advisory locks
func (p *PostgresDB) DB() *sql.DB { return p.db }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDB) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{
		tx:       tx,
		stubs:    &postgresStubRepo{db: p.db, tx: tx},
		enriched: &postgresEnrichedRepo{db: p.db, tx: tx},
	}, nil
}

// postgresTx implements Transaction interface
type postgresTx struct {
	tx       *sql.Tx
	stubs    StubRepository
	enriched EnrichedRepository
}

func (t *postgresTx) Commit() error                { return t.tx.Commit() }
func (t *postgresTx) Rollback() error              { return t.tx.Rollback() }
func (t *postgresTx) Stubs() StubRepository        { return t.stubs }
func (t *postgresTx) Enriched() EnrichedRepository { return t.enriched }

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// isUniqueViolation reports whether err is a Postgres unique constraint violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.UniqueViolation
	}
	return false
}

// postgresStubRepo implements StubRepository for PostgreSQL
type postgresStubRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresStubRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const stubColumns = `id, title, link, snippet, category, position, date, processed,
	processing_error, content, attempts, last_attempt_at, created_at`

func (r *postgresStubRepo) Create(ctx context.Context, stub *core.ArticleStub) (bool, error) {
	query := `
		INSERT INTO articles (title, link, snippet, category, position, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (link) DO NOTHING
		RETURNING id, created_at
	`
	err := r.query().QueryRowContext(ctx, query,
		stub.Title, stub.Link, nullString(stub.Snippet), string(stub.Category),
		stub.Position, nullString(stub.Date),
	).Scan(&stub.ID, &stub.CreatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case isUniqueViolation(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to insert stub %s: %w", stub.Link, err)
	}
	return true, nil
}

func (r *postgresStubRepo) Get(ctx context.Context, id int64) (*core.ArticleStub, error) {
	row := r.query().QueryRowContext(ctx, `SELECT `+stubColumns+` FROM articles WHERE id = $1`, id)
	return scanStub(row)
}

func (r *postgresStubRepo) GetByLink(ctx context.Context, link string) (*core.ArticleStub, error) {
	row := r.query().QueryRowContext(ctx, `SELECT `+stubColumns+` FROM articles WHERE link = $1`, link)
	return scanStub(row)
}

func (r *postgresStubRepo) ListUnprocessed(ctx context.Context, opts UnprocessedOptions) ([]core.ArticleStub, error) {
	query := `SELECT ` + stubColumns + `
		FROM articles
		WHERE processed = FALSE
		  AND NOT (id = ANY($2::bigint[]))
		ORDER BY created_at, id
		LIMIT $1
	`
	exclude := opts.ExcludeIDs
	if exclude == nil {
		exclude = []int64{}
	}
	rows, err := r.query().QueryContext(ctx, query, defaultLimit(opts.Limit), pq.Array(exclude))
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed stubs: %w", err)
	}
	return collectStubs(rows)
}

func (r *postgresStubRepo) MarkProcessed(ctx context.Context, id int64, content string) error {
	query := `
		UPDATE articles
		SET processed = TRUE, content = $2, processing_error = NULL,
		    attempts = attempts + 1, last_attempt_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, content)
}

func (r *postgresStubRepo) MarkFailed(ctx context.Context, id int64, message string, consume bool) error {
	query := `
		UPDATE articles
		SET processed = $3, processing_error = $2,
		    attempts = attempts + 1, last_attempt_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, message, consume)
}

func (r *postgresStubRepo) execOne(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.query().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update stub %v: %w", args[0], err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("stub %v: %w", args[0], ErrNotFound)
	}
	return nil
}

func (r *postgresStubRepo) ListFailed(ctx context.Context, opts ListOptions) ([]core.ArticleStub, error) {
	query := `SELECT ` + stubColumns + `
		FROM articles
		WHERE processing_error IS NOT NULL
		ORDER BY last_attempt_at DESC NULLS LAST, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.query().QueryContext(ctx, query, defaultLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed stubs: %w", err)
	}
	return collectStubs(rows)
}

func (r *postgresStubRepo) ResetFailed(ctx context.Context, ids []int64) (int64, error) {
	query := `
		UPDATE articles a
		SET processed = FALSE, processing_error = NULL, attempts = 0, last_attempt_at = NULL
		WHERE a.processing_error IS NOT NULL
		  AND (cardinality($1::bigint[]) = 0 OR a.id = ANY($1))
		  AND NOT EXISTS (SELECT 1 FROM processed_articles p WHERE p.article_id = a.id)
	`
	if ids == nil {
		ids = []int64{}
	}
	res, err := r.query().ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed stubs: %w", err)
	}
	return res.RowsAffected()
}

func (r *postgresStubRepo) Counts(ctx context.Context) (StubCounts, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE processed = FALSE),
			COUNT(*) FILTER (WHERE processed = TRUE),
			COUNT(*) FILTER (WHERE processing_error IS NOT NULL),
			(SELECT COUNT(*) FROM processed_articles)
		FROM articles
	`
	var c StubCounts
	err := r.query().QueryRowContext(ctx, query).Scan(&c.Total, &c.Pending, &c.Processed, &c.Failed, &c.Enriched)
	if err != nil {
		return StubCounts{}, fmt.Errorf("failed to count stubs: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStub(row rowScanner) (*core.ArticleStub, error) {
	var (
		s           core.ArticleStub
		category    string
		snippet     sql.NullString
		position    sql.NullInt64
		date        sql.NullString
		procErr     sql.NullString
		content     sql.NullString
		lastAttempt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.Title, &s.Link, &snippet, &category, &position, &date, &s.Processed,
		&procErr, &content, &s.Attempts, &lastAttempt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan stub: %w", err)
	}

	s.Category = core.Category(category)
	s.Snippet = snippet.String
	s.Position = int(position.Int64)
	s.Date = date.String
	if procErr.Valid {
		s.ProcessingError = &procErr.String
	}
	if content.Valid {
		s.Content = &content.String
	}
	if lastAttempt.Valid {
		t := lastAttempt.Time
		s.LastAttemptAt = &t
	}
	return &s, nil
}

func collectStubs(rows *sql.Rows) ([]core.ArticleStub, error) {
	defer rows.Close()

	var stubs []core.ArticleStub
	for rows.Next() {
		s, err := scanStub(rows)
		if err != nil {
			return nil, err
		}
		stubs = append(stubs, *s)
	}
	return stubs, rows.Err()
}

// postgresEnrichedRepo implements EnrichedRepository for PostgreSQL
type postgresEnrichedRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *postgresEnrichedRepo) query() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *postgresEnrichedRepo) Create(ctx context.Context, article *core.EnrichedArticle) error {
	takeaways, err := json.Marshal(article.KeyTakeaways)
	if err != nil {
		return fmt.Errorf("failed to marshal key takeaways: %w", err)
	}
	var original interface{}
	if len(article.OriginalContent) > 0 {
		original = []byte(article.OriginalContent)
	}
	processedAt := article.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO processed_articles (
			article_id, refined_title, refined_article, summary, key_takeaways, original_content, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = r.query().QueryRowContext(ctx, query,
		article.ArticleID, article.RefinedTitle, article.RefinedArticle, article.Summary,
		takeaways, original, processedAt,
	).Scan(&article.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("stub %d: %w", article.ArticleID, ErrAlreadyEnriched)
	}
	if err != nil {
		return fmt.Errorf("failed to insert enriched article for stub %d: %w", article.ArticleID, err)
	}
	article.ProcessedAt = processedAt
	return nil
}

const enrichedColumns = `p.id, p.article_id, p.refined_title, p.refined_article, p.summary,
	p.key_takeaways, p.original_content, p.processed_at`

func (r *postgresEnrichedRepo) GetByArticleID(ctx context.Context, articleID int64) (*core.EnrichedArticle, error) {
	row := r.query().QueryRowContext(ctx,
		`SELECT `+enrichedColumns+` FROM processed_articles p WHERE p.article_id = $1`, articleID)
	var a core.EnrichedArticle
	if err := scanEnriched(row, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *postgresEnrichedRepo) ListByCategory(ctx context.Context, category core.Category, opts ListOptions) ([]ListedArticle, error) {
	query := `SELECT ` + enrichedColumns + `, a.link, a.category
		FROM processed_articles p
		JOIN articles a ON a.id = p.article_id
		WHERE ($1 = '' OR a.category::text = $1)
		ORDER BY p.processed_at DESC, p.id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.query().QueryContext(ctx, query, string(category), defaultLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list enriched articles: %w", err)
	}
	defer rows.Close()

	var articles []ListedArticle
	for rows.Next() {
		var (
			item ListedArticle
			cat  string
		)
		if err := scanEnriched(rows, &item.EnrichedArticle, &item.Link, &cat); err != nil {
			return nil, err
		}
		item.Category = core.Category(cat)
		articles = append(articles, item)
	}
	return articles, rows.Err()
}

func scanEnriched(row rowScanner, a *core.EnrichedArticle, extra ...interface{}) error {
	var takeaways, original []byte
	dest := append([]interface{}{
		&a.ID, &a.ArticleID, &a.RefinedTitle, &a.RefinedArticle, &a.Summary,
		&takeaways, &original, &a.ProcessedAt,
	}, extra...)

	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to scan enriched article: %w", err)
	}
	if err := json.Unmarshal(takeaways, &a.KeyTakeaways); err != nil {
		return fmt.Errorf("failed to decode key takeaways: %w", err)
	}
	if len(original) > 0 {
		a.OriginalContent = append(a.OriginalContent[:0], original...)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
