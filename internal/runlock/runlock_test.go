package runlock

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/lib/pq"
)

func TestMemoryLocker_SingleFlight(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := l.TryLock(ctx)
	if err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	if !l.Held() {
		t.Error("lock should be held")
	}

	if _, err := l.TryLock(ctx); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second TryLock = %v, want ErrRunInProgress", err)
	}

	unlock()
	unlock() // idempotent

	again, err := l.TryLock(ctx)
	if err != nil {
		t.Fatalf("TryLock after unlock failed: %v", err)
	}
	again()
}

func TestMemoryLocker_StaleUnlockDoesNotReleaseNewHolder(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	first, _ := l.TryLock(ctx)
	first()
	second, err := l.TryLock(ctx)
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer second()

	first()
	if !l.Held() {
		t.Error("repeated unlock from an earlier holder released the current one")
	}
}

func TestMemoryLocker_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryLocker().TryLock(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNew_BackendSelection(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://localhost/curator?sslmode=disable")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	defer db.Close()

	tests := []struct {
		name    string
		opts    Options
		want    string
		wantErr bool
	}{
		{"auto without backends", Options{Backend: "auto"}, "memory", false},
		{"empty backend", Options{}, "memory", false},
		{"auto with database", Options{Backend: "auto", DB: db}, "postgres", false},
		{"auto prefers redis", Options{Backend: "auto", DB: db, RedisURL: "redis://localhost:6379/0"}, "redis", false},
		{"explicit memory", Options{Backend: "memory", RedisURL: "redis://localhost:6379/0"}, "memory", false},
		{"postgres without database", Options{Backend: "postgres"}, "", true},
		{"bad redis url", Options{Backend: "redis", RedisURL: "http://nope"}, "", true},
		{"unknown backend", Options{Backend: "etcd"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer l.Close()
			if l.Name() != tt.want {
				t.Errorf("backend = %s, want %s", l.Name(), tt.want)
			}
		})
	}
}

func TestNewRedisLocker_DefaultTTL(t *testing.T) {
	l, err := NewRedisLocker("redis://localhost:6379/1", "k", 0)
	if err != nil {
		t.Fatalf("NewRedisLocker failed: %v", err)
	}
	defer l.Close()
	if l.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", l.ttl, DefaultTTL)
	}

	l2, _ := NewRedisLocker("redis://localhost:6379/1", "k", 10*time.Minute)
	defer l2.Close()
	if l2.ttl != 10*time.Minute {
		t.Errorf("ttl = %v", l2.ttl)
	}
}

func TestAdvisoryID_Stable(t *testing.T) {
	if advisoryID("curator:run") != advisoryID("curator:run") {
		t.Error("advisory id must be deterministic")
	}
	if advisoryID("curator:run") == advisoryID("curator:other") {
		t.Error("distinct keys should map to distinct ids")
	}
}
