package runlock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLocalExcludesSecondHolder(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire err = %v, want ErrHeld", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	// A second release must not unlock someone else's hold.
	release2, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release()
	if _, err := l.Acquire(ctx); !errors.Is(err, ErrHeld) {
		t.Errorf("double release freed the lock: err = %v", err)
	}
	release2()
}

func TestLocalHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocal().Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func newRedisLock(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, "pingbase:ingestion:run", time.Hour), mr
}

func TestRedisExcludesSecondHolder(t *testing.T) {
	lock, mr := newRedisLock(t)
	ctx := context.Background()

	release, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if ttl := mr.TTL("pingbase:ingestion:run"); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}
	if _, err := lock.Acquire(ctx); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire err = %v, want ErrHeld", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("pingbase:ingestion:run") {
		t.Error("key still set after release")
	}
	release, err = lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release()
}

func TestRedisExpiredHolderCannotReleaseNextRun(t *testing.T) {
	lock, mr := newRedisLock(t)
	ctx := context.Background()

	stale, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	current, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	if err := stale(); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := lock.Acquire(ctx); !errors.Is(err, ErrHeld) {
		t.Errorf("stale release dropped the current hold: err = %v", err)
	}
	if err := current(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	lock, mr := newRedisLock(t)
	mr.Close()

	_, err := lock.Acquire(context.Background())
	if err == nil || errors.Is(err, ErrHeld) {
		t.Fatalf("err = %v, want a connection error", err)
	}
	if !strings.Contains(err.Error(), "acquiring run lock") {
		t.Errorf("err = %q", err)
	}
}
