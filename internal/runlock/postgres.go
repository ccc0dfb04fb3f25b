package runlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"curator/internal/logger"
)

// PostgresLocker uses a session-level advisory lock, so every process sharing the
// database sees the same guard. The lock lives on a dedicated pooled connection
// until Unlock returns it.
type PostgresLocker struct {
	db  *sql.DB
	key string
	id  int64
}

// NewPostgresLocker derives the advisory lock id from key
func NewPostgresLocker(db *sql.DB, key string) *PostgresLocker {
	return &PostgresLocker{db: db, key: key, id: advisoryID(key)}
}

func advisoryID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

func (l *PostgresLocker) TryLock(ctx context.Context) (Unlock, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.id).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, ErrRunInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.id); err != nil {
				logger.Warn("Failed to release advisory lock", "key", l.key, "error", err)
			}
			_ = conn.Close()
		})
	}, nil
}

func (l *PostgresLocker) Name() string { return "postgres" }

// Close is a no-op; the pool belongs to the persistence layer.
func (l *PostgresLocker) Close() error { return nil }
