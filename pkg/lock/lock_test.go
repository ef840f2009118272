package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meedprogram/meedkit/pkg/lock"
)

func newRedisLocker(t *testing.T, opts ...lock.RedisOption) (*lock.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	opts = append([]lock.RedisOption{lock.WithRetryInterval(2 * time.Millisecond)}, opts...)
	return lock.NewRedisLocker(client, opts...), mr
}

func lockers(t *testing.T) map[string]lock.Locker {
	redisLocker, _ := newRedisLocker(t)
	return map[string]lock.Locker{
		"memory": lock.NewMemoryLocker(),
		"redis":  redisLocker,
	}
}

func TestLocker_MutualExclusion(t *testing.T) {
	t.Parallel()

	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var (
				wg      sync.WaitGroup
				inside  atomic.Int32
				overlap atomic.Bool
				total   atomic.Int32
			)
			for range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := l.Lock(context.Background(), "sub:0xa")
					if !assert.NoError(t, err) {
						return
					}
					defer unlock()

					if inside.Add(1) > 1 {
						overlap.Store(true)
					}
					total.Add(1)
					time.Sleep(time.Millisecond)
					inside.Add(-1)
				}()
			}
			wg.Wait()

			assert.False(t, overlap.Load())
			assert.Equal(t, int32(20), total.Load())
		})
	}
}

func TestLocker_IndependentKeys(t *testing.T) {
	t.Parallel()

	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			unlockA, err := l.Lock(context.Background(), "a")
			require.NoError(t, err)
			defer unlockA()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			unlockB, err := l.Lock(ctx, "b")
			require.NoError(t, err)
			unlockB()
		})
	}
}

func TestLocker_ContextCancelled(t *testing.T) {
	t.Parallel()

	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			unlock, err := l.Lock(context.Background(), "busy")
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err = l.Lock(ctx, "busy")
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			unlock()
			unlock()

			again, err := l.Lock(context.Background(), "busy")
			require.NoError(t, err)
			again()
		})
	}
}

func TestLocker_EmptyKey(t *testing.T) {
	t.Parallel()

	for name, l := range lockers(t) {
		_, err := l.Lock(context.Background(), "")
		assert.ErrorIs(t, err, lock.ErrEmptyKey, name)
	}
}

func TestMemoryLocker_ForgetsReleasedKeys(t *testing.T) {
	t.Parallel()

	l := lock.NewMemoryLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Held())
	unlock()
	assert.Zero(t, l.Held())
}

func TestRedisLocker_TTLExpiry(t *testing.T) {
	t.Parallel()

	l, mr := newRedisLocker(t, lock.WithTTL(time.Second), lock.WithPrefix("test:"))

	_, err := l.Lock(context.Background(), "stale")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:stale"))

	// Holder vanished without unlocking.
	mr.FastForward(2 * time.Second)
	assert.False(t, mr.Exists("test:stale"))

	unlock, err := l.Lock(context.Background(), "stale")
	require.NoError(t, err)
	unlock()
	assert.False(t, mr.Exists("test:stale"))
}

func TestRedisLocker_DoesNotReleaseForeignLock(t *testing.T) {
	t.Parallel()

	l, mr := newRedisLocker(t, lock.WithTTL(time.Second))

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	other, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// The first holder's token no longer matches; its release is a no-op.
	unlock()
	assert.True(t, mr.Exists("meed:lock:k"))
	other()
	assert.False(t, mr.Exists("meed:lock:k"))
}

func TestLocker_UnlockIsIdempotent(t *testing.T) {
	t.Parallel()

	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			unlock, err := l.Lock(ctx, "twice")
			require.NoError(t, err)

			var wg sync.WaitGroup
			for range 4 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock()
				}()
			}
			wg.Wait()

			next, err := l.Lock(ctx, "twice")
			require.NoError(t, err)
			defer next()

			// A stale release must not free the new holder.
			unlock()
			short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			_, err = l.Lock(short, "twice")
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}
