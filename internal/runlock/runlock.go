// Package runlock keeps two ingestion runs from overlapping, within one
// process or across replicas sharing a Redis.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another run holds the lock.
var ErrHeld = errors.New("run already in progress")

// Locker hands out a release func on success.
type Locker interface {
	Acquire(ctx context.Context) (release func() error, err error)
}

// Local is an in-process lock.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Acquire(ctx context.Context) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.mu.TryLock() {
		return nil, ErrHeld
	}
	var once sync.Once
	return func() error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}

// releaseScript deletes the key only if it still holds our token, so a
// run that outlived its TTL cannot drop a lock taken by the next run.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lock shared by every process using the same key.
type Redis struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedis returns a lock stored at key. ttl bounds how long a crashed
// holder can block other runs.
func NewRedis(client redis.Cmdable, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context) (func() error, error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock %s: %w", r.key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
			return fmt.Errorf("releasing run lock %s: %w", r.key, err)
		}
		return nil
	}, nil
}
