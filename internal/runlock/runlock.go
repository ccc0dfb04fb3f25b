// Package runlock guarantees that at most one ingestion cycle runs at a time.
package runlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRunInProgress is returned by TryLock when another cycle holds the lock.
var ErrRunInProgress = errors.New("a run is already in progress")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

// Locker is a non-blocking mutual exclusion guard for pipeline runs
type Locker interface {
	// TryLock acquires the lock or returns ErrRunInProgress immediately.
	TryLock(ctx context.Context) (Unlock, error)
	// Name identifies the backend in logs
	Name() string
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend  string // auto, memory, postgres or redis
	Key      string
	TTL      time.Duration
	RedisURL string
	DB       *sql.DB // required by the postgres backend
}

// New builds the configured Locker. "auto" prefers Redis, then Postgres, then memory.
func New(opts Options) (Locker, error) {
	if opts.Key == "" {
		opts.Key = "curator:run"
	}

	backend := opts.Backend
	if backend == "" || backend == "auto" {
		switch {
		case opts.RedisURL != "":
			backend = "redis"
		case opts.DB != nil:
			backend = "postgres"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "memory":
		return NewMemoryLocker(), nil
	case "postgres":
		if opts.DB == nil {
			return nil, errors.New("postgres lock requires a database connection")
		}
		return NewPostgresLocker(opts.DB, opts.Key), nil
	case "redis":
		return NewRedisLocker(opts.RedisURL, opts.Key, opts.TTL)
	default:
		return nil, fmt.Errorf("unsupported lock backend: %s", backend)
	}
}

// MemoryLocker guards runs within a single process
type MemoryLocker struct {
	mu   sync.Mutex
	held bool
}

// NewMemoryLocker returns an unlocked in-process guard
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{}
}

func (l *MemoryLocker) TryLock(ctx context.Context) (Unlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, ErrRunInProgress
	}
	l.held = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.held = false
			l.mu.Unlock()
		})
	}, nil
}

// Held reports whether a run currently holds the lock
func (l *MemoryLocker) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *MemoryLocker) Name() string { return "memory" }
func (l *MemoryLocker) Close() error { return nil }
