package persistence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"curator/internal/core"
)

// ErrTxDone is returned when a finished memory transaction is used again.
var ErrTxDone = errors.New("transaction already committed or rolled back")

// MemoryDB is an in-process Database used by tests and by runs without DATABASE_URL.
// A transaction holds the store lock until Commit or Rollback, so repository calls
// made outside the transaction block until it finishes.
type MemoryDB struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time
}

type memState struct {
	stubs          map[int64]core.ArticleStub
	links          map[string]int64
	enriched       map[int64]core.EnrichedArticle // keyed by ArticleID
	nextStubID     int64
	nextEnrichedID int64
}

// NewMemoryDB returns an empty in-memory store
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		state: memState{
			stubs:    make(map[int64]core.ArticleStub),
			links:    make(map[string]int64),
			enriched: make(map[int64]core.EnrichedArticle),
		},
		now: time.Now,
	}
}

// SetClock overrides the time source used for created_at and last_attempt_at
func (m *MemoryDB) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryDB) Stubs() StubRepository        { return &memStubRepo{db: m} }
func (m *MemoryDB) Enriched() EnrichedRepository { return &memEnrichedRepo{db: m} }
func (m *MemoryDB) Close() error                 { return nil }
func (m *MemoryDB) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryDB) BeginTx(ctx context.Context) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	return &memTx{db: m, snapshot: m.state.clone()}, nil
}

func (s memState) clone() memState {
	c := memState{
		stubs:          make(map[int64]core.ArticleStub, len(s.stubs)),
		links:          make(map[string]int64, len(s.links)),
		enriched:       make(map[int64]core.EnrichedArticle, len(s.enriched)),
		nextStubID:     s.nextStubID,
		nextEnrichedID: s.nextEnrichedID,
	}
	for k, v := range s.stubs {
		c.stubs[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for k, v := range s.enriched {
		c.enriched[k] = v
	}
	return c
}

type memTx struct {
	db       *MemoryDB
	snapshot memState
	done     bool
}

func (t *memTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.db.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.db.state = t.snapshot
	t.db.mu.Unlock()
	return nil
}

func (t *memTx) Stubs() StubRepository        { return &memStubRepo{db: t.db, tx: t} }
func (t *memTx) Enriched() EnrichedRepository { return &memEnrichedRepo{db: t.db, tx: t} }

// run executes fn with the store lock held, either by the caller's transaction or by fn itself.
func run(db *MemoryDB, tx *memTx, fn func(s *memState) error) error {
	if tx != nil {
		if tx.done {
			return ErrTxDone
		}
		return fn(&db.state)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(&db.state)
}

type memStubRepo struct {
	db *MemoryDB
	tx *memTx
}

func (r *memStubRepo) Create(ctx context.Context, stub *core.ArticleStub) (bool, error) {
	created := false
	err := run(r.db, r.tx, func(s *memState) error {
		if _, exists := s.links[stub.Link]; exists {
			return nil
		}
		s.nextStubID++
		stub.ID = s.nextStubID
		stub.CreatedAt = r.db.now().UTC()
		stub.Processed = false
		stub.ProcessingError = nil
		stub.Content = nil
		stub.Attempts = 0
		stub.LastAttemptAt = nil
		s.stubs[stub.ID] = *stub
		s.links[stub.Link] = stub.ID
		created = true
		return nil
	})
	return created, err
}

func (r *memStubRepo) Get(ctx context.Context, id int64) (*core.ArticleStub, error) {
	var out *core.ArticleStub
	err := run(r.db, r.tx, func(s *memState) error {
		stub, ok := s.stubs[id]
		if !ok {
			return ErrNotFound
		}
		out = &stub
		return nil
	})
	return out, err
}

func (r *memStubRepo) GetByLink(ctx context.Context, link string) (*core.ArticleStub, error) {
	var out *core.ArticleStub
	err := run(r.db, r.tx, func(s *memState) error {
		id, ok := s.links[link]
		if !ok {
			return ErrNotFound
		}
		stub := s.stubs[id]
		out = &stub
		return nil
	})
	return out, err
}

func (r *memStubRepo) ListUnprocessed(ctx context.Context, opts UnprocessedOptions) ([]core.ArticleStub, error) {
	skip := make(map[int64]bool, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		skip[id] = true
	}

	var out []core.ArticleStub
	err := run(r.db, r.tx, func(s *memState) error {
		for _, stub := range s.stubs {
			if !stub.Processed && !skip[stub.ID] {
				out = append(out, stub)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(out)
	if limit := defaultLimit(opts.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memStubRepo) MarkProcessed(ctx context.Context, id int64, content string) error {
	return r.update(id, func(stub *core.ArticleStub) {
		stub.Processed = true
		stub.Content = &content
		stub.ProcessingError = nil
	})
}

func (r *memStubRepo) MarkFailed(ctx context.Context, id int64, message string, consume bool) error {
	return r.update(id, func(stub *core.ArticleStub) {
		stub.Processed = consume
		stub.ProcessingError = &message
	})
}

func (r *memStubRepo) update(id int64, fn func(stub *core.ArticleStub)) error {
	return run(r.db, r.tx, func(s *memState) error {
		stub, ok := s.stubs[id]
		if !ok {
			return ErrNotFound
		}
		fn(&stub)
		now := r.db.now().UTC()
		stub.Attempts++
		stub.LastAttemptAt = &now
		s.stubs[id] = stub
		return nil
	})
}

func (r *memStubRepo) ListFailed(ctx context.Context, opts ListOptions) ([]core.ArticleStub, error) {
	var out []core.ArticleStub
	err := run(r.db, r.tx, func(s *memState) error {
		for _, stub := range s.stubs {
			if stub.ProcessingError != nil {
				out = append(out, stub)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastAttemptAt, out[j].LastAttemptAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.After(*b)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, opts), nil
}

func (r *memStubRepo) ResetFailed(ctx context.Context, ids []int64) (int64, error) {
	var n int64
	err := run(r.db, r.tx, func(s *memState) error {
		want := make(map[int64]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		for id, stub := range s.stubs {
			if stub.ProcessingError == nil || (len(want) > 0 && !want[id]) {
				continue
			}
			if _, enriched := s.enriched[id]; enriched {
				continue
			}
			stub.Processed = false
			stub.ProcessingError = nil
			stub.Attempts = 0
			stub.LastAttemptAt = nil
			s.stubs[id] = stub
			n++
		}
		return nil
	})
	return n, err
}

func (r *memStubRepo) Counts(ctx context.Context) (StubCounts, error) {
	var c StubCounts
	err := run(r.db, r.tx, func(s *memState) error {
		for _, stub := range s.stubs {
			c.Total++
			if stub.Processed {
				c.Processed++
			} else {
				c.Pending++
			}
			if stub.ProcessingError != nil {
				c.Failed++
			}
		}
		c.Enriched = int64(len(s.enriched))
		return nil
	})
	return c, err
}

type memEnrichedRepo struct {
	db *MemoryDB
	tx *memTx
}

func (r *memEnrichedRepo) Create(ctx context.Context, article *core.EnrichedArticle) error {
	return run(r.db, r.tx, func(s *memState) error {
		if _, ok := s.stubs[article.ArticleID]; !ok {
			return ErrNotFound
		}
		if _, exists := s.enriched[article.ArticleID]; exists {
			return ErrAlreadyEnriched
		}
		s.nextEnrichedID++
		article.ID = s.nextEnrichedID
		if article.ProcessedAt.IsZero() {
			article.ProcessedAt = r.db.now().UTC()
		}
		stored := *article
		stored.KeyTakeaways = append([]string(nil), article.KeyTakeaways...)
		s.enriched[article.ArticleID] = stored
		return nil
	})
}

func (r *memEnrichedRepo) GetByArticleID(ctx context.Context, articleID int64) (*core.EnrichedArticle, error) {
	var out *core.EnrichedArticle
	err := run(r.db, r.tx, func(s *memState) error {
		a, ok := s.enriched[articleID]
		if !ok {
			return ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *memEnrichedRepo) ListByCategory(ctx context.Context, category core.Category, opts ListOptions) ([]ListedArticle, error) {
	var out []ListedArticle
	err := run(r.db, r.tx, func(s *memState) error {
		for articleID, a := range s.enriched {
			stub := s.stubs[articleID]
			if category != "" && stub.Category != category {
				continue
			}
			out = append(out, ListedArticle{EnrichedArticle: a, Link: stub.Link, Category: stub.Category})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].ProcessedAt.After(out[j].ProcessedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, opts), nil
}

func sortByCreation(stubs []core.ArticleStub) {
	sort.Slice(stubs, func(i, j int) bool {
		if !stubs[i].CreatedAt.Equal(stubs[j].CreatedAt) {
			return stubs[i].CreatedAt.Before(stubs[j].CreatedAt)
		}
		return stubs[i].ID < stubs[j].ID
	})
}

func page[T any](items []T, opts ListOptions) []T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if limit := defaultLimit(opts.Limit); len(items) > limit {
		items = items[:limit]
	}
	return items
}
