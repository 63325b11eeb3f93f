package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/harvest-engine/lock"
)

func TestMemory_SerializesSameKey(t *testing.T) {
	m := lock.NewMemory()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Lock(ctx, "acme")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			assert.NoError(t, release(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestMemory_DifferentKeysDoNotBlock(t *testing.T) {
	m := lock.NewMemory()
	ctx := context.Background()

	releaseA, err := m.Lock(ctx, "a")
	require.NoError(t, err)
	defer releaseA(ctx)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	releaseB, err := m.Lock(short, "b")
	require.NoError(t, err)
	require.NoError(t, releaseB(ctx))
}

func TestMemory_BusyUntilReleased(t *testing.T) {
	m := lock.NewMemory()
	ctx := context.Background()

	release, err := m.Lock(ctx, "acme")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(short, "acme")
	assert.ErrorIs(t, err, lock.ErrBusy)

	// double release must not free a lock someone else took
	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))
	again, err := m.Lock(ctx, "acme")
	require.NoError(t, err)

	short2, cancel2 := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel2()
	_, err = m.Lock(short2, "acme")
	assert.ErrorIs(t, err, lock.ErrBusy)
	require.NoError(t, again(ctx))
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*lock.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return lock.NewRedis(rdb, ttl, 5*time.Millisecond), mr
}

func TestRedis_ExclusiveAndReleasable(t *testing.T) {
	locker, _ := newRedisLocker(t, time.Minute)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "acme")
	require.NoError(t, err)

	// WHEN a second holder tries without waiting
	_, err = locker.Lock(ctx, "acme")
	assert.ErrorIs(t, err, lock.ErrBusy)

	// WHEN it waits with a deadline
	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "acme")
	assert.ErrorIs(t, err, lock.ErrBusy)

	// THEN after release the key is free
	require.NoError(t, release(ctx))
	again, err := locker.Lock(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedis_ExpiredLockReportsOnRelease(t *testing.T) {
	locker, mr := newRedisLocker(t, time.Second)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "acme")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	// the key expired, so another holder gets it
	other, err := locker.Lock(ctx, "acme")
	require.NoError(t, err)
	defer other(ctx)

	assert.Error(t, release(ctx))
}
