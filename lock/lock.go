/*
Package lock serializes commands per business.

PURPOSE:
  A command loads a business, mutates it and saves it. Two commands on
  the same business must not interleave, or the second save would drop
  the first one's postings. Every command therefore holds the business
  lock from load to save.

IMPLEMENTATIONS:
  Memory: per-key lock inside one process
  Redis:  distributed lock (bsm/redislock) for several server replicas

SEE ALSO:
  - service/service.go: the load, lock, command, save cycle
*/
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrBusy means the lock is held elsewhere and the context ran out first.
var ErrBusy = errors.New("business is busy")

// Release gives the lock back. Calling it more than once is harmless.
type Release func(ctx context.Context) error

// Locker hands out one lock per key.
type Locker interface {
	Lock(ctx context.Context, key string) (Release, error)
}

// =============================================================================
// IN-PROCESS
// =============================================================================

type Memory struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

func NewMemory() *Memory {
	return &Memory{keys: make(map[string]chan struct{})}
}

// Lock waits for the key until ctx is done.
func (m *Memory) Lock(ctx context.Context, key string) (Release, error) {
	m.mu.Lock()
	sem, ok := m.keys[key]
	if !ok {
		sem = make(chan struct{}, 1)
		m.keys[key] = sem
	}
	m.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrBusy, key, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-sem })
		return nil
	}, nil
}

// =============================================================================
// REDIS
// =============================================================================

const (
	DefaultTTL   = 30 * time.Second
	DefaultRetry = 50 * time.Millisecond
	keyPrefix    = "harvest:lock:"
)

// Redis is a lock shared by every process using the same Redis.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRedis builds a Redis locker. ttl bounds how long a crashed holder
// keeps a business blocked.
func NewRedis(rdb *redis.Client, ttl, retry time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if retry <= 0 {
		retry = DefaultRetry
	}
	return &Redis{client: redislock.New(rdb), ttl: ttl, retry: retry}
}

// Lock retries until the lock is free or ctx is done. Without a deadline
// on ctx it tries exactly once.
func (r *Redis) Lock(ctx context.Context, key string) (Release, error) {
	opts := &redislock.Options{RetryStrategy: redislock.NoRetry()}
	if _, ok := ctx.Deadline(); ok {
		opts.RetryStrategy = redislock.LinearBackoff(r.retry)
	}

	l, err := r.client.Obtain(ctx, keyPrefix+key, r.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = l.Release(ctx)
			if errors.Is(err, redislock.ErrLockNotHeld) {
				err = fmt.Errorf("lock %s expired before release: %w", key, err)
			}
		})
		return err
	}, nil
}
