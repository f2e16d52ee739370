package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xtrntr/resale/internal/models"
)

func lockers(t *testing.T) map[string]Locker {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Locker{
		"Memory": NewMemoryLocker(),
		"Redis":  NewRedisLocker(client),
	}
}

func TestLockerExclusion(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			token, err := l.TryAcquire(ctx, OptionKey(1), 0, time.Minute)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			_, err = l.TryAcquire(ctx, OptionKey(1), 30*time.Millisecond, time.Minute)
			assert.ErrorIs(t, err, ErrNotAcquired)

			other, err := l.TryAcquire(ctx, OptionKey(2), 0, time.Minute)
			require.NoError(t, err, "names are independent")

			// a stale token cannot release someone else's lease
			require.NoError(t, l.Release(ctx, OptionKey(1), other))
			_, err = l.TryAcquire(ctx, OptionKey(1), 0, time.Minute)
			assert.ErrorIs(t, err, ErrNotAcquired)

			require.NoError(t, l.Release(ctx, OptionKey(1), token))
			_, err = l.TryAcquire(ctx, OptionKey(1), 0, time.Minute)
			assert.NoError(t, err)
		})
	}
}

func TestLockerWaitsForRelease(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			token, err := l.TryAcquire(ctx, BidKey(5), 0, time.Minute)
			require.NoError(t, err)

			go func() {
				time.Sleep(30 * time.Millisecond)
				_ = l.Release(ctx, BidKey(5), token)
			}()

			_, err = l.TryAcquire(ctx, BidKey(5), 2*time.Second, time.Minute)
			assert.NoError(t, err)
		})
	}
}

func TestMemoryLockerExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.now = func() time.Time { return now }

	ctx := context.Background()
	token, err := l.TryAcquire(ctx, TradeKey(3), 0, 5*time.Second)
	require.NoError(t, err)
	held, err := l.IsHeld(ctx, TradeKey(3), token)
	require.NoError(t, err)
	assert.True(t, held)

	now = now.Add(6 * time.Second)
	held, err = l.IsHeld(ctx, TradeKey(3), token)
	require.NoError(t, err)
	assert.False(t, held)
	_, err = l.TryAcquire(ctx, TradeKey(3), 0, 5*time.Second)
	assert.NoError(t, err, "expired lease can be taken over")
}

func TestRedisLockerExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedisLocker(client)
	ctx := context.Background()

	token, err := l.TryAcquire(ctx, TradeKey(3), 0, 5*time.Second)
	require.NoError(t, err)
	held, err := l.IsHeld(ctx, TradeKey(3), token)
	require.NoError(t, err)
	assert.True(t, held)

	held, err = l.IsHeld(ctx, TradeKey(3), "someone-else")
	require.NoError(t, err)
	assert.False(t, held)

	mr.FastForward(6 * time.Second)
	held, err = l.IsHeld(ctx, TradeKey(3), token)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()
	m := NewManager(l, nil)
	opts := Options{Wait: 20 * time.Millisecond, Hold: time.Minute}

	t.Run("ReleasesAfterSuccess", func(t *testing.T) {
		ran := false
		err := m.WithLock(ctx, "a", opts, func(context.Context) error {
			ran = true
			assert.True(t, l.held("a"))
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
		assert.False(t, l.held("a"))
	})

	t.Run("ReleasesAfterError", func(t *testing.T) {
		boom := errors.New("boom")
		err := m.WithLock(ctx, "b", opts, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.False(t, l.held("b"))
	})

	t.Run("ReleasesAfterPanic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = m.WithLock(ctx, "c", opts, func(context.Context) error { panic("boom") })
		})
		assert.False(t, l.held("c"))
	})

	t.Run("BusyReturnsLockAcquisition", func(t *testing.T) {
		token, err := l.TryAcquire(ctx, "d", 0, time.Minute)
		require.NoError(t, err)
		defer l.Release(ctx, "d", token)

		ran := false
		err = m.WithLock(ctx, "d", opts, func(context.Context) error {
			ran = true
			return nil
		})
		assert.ErrorIs(t, err, models.ErrLockAcquisition)
		assert.False(t, ran)
	})
}

func TestWithLockReportsOverrun(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLocker()
	l.now = func() time.Time { return now }
	core, logs := observer.New(zap.WarnLevel)
	m := NewManager(l, zap.New(core))
	opts := Options{Wait: 0, Hold: 5 * time.Second}

	err := m.WithLock(ctx, "quick", opts, func(context.Context) error {
		now = now.Add(time.Second)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessage("lock hold exceeded").Len())

	err = m.WithLock(ctx, "slow", opts, func(context.Context) error {
		now = now.Add(6 * time.Second)
		return nil
	})
	require.NoError(t, err, "the section's own result is returned")
	overruns := logs.FilterMessage("lock hold exceeded").All()
	require.Len(t, overruns, 1)
	assert.Equal(t, "slow", overruns[0].ContextMap()["lock"])
	assert.False(t, l.held("slow"))
}

func TestWithLockSerializes(t *testing.T) {
	m := NewManager(NewMemoryLocker(), nil)
	opts := Options{Wait: 5 * time.Second, Hold: time.Minute}

	var (
		inside  int32
		overlap int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(context.Background(), OptionKey(1), opts, func(context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, atomic.LoadInt32(&overlap))
}
