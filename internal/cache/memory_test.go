package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("basic operations", func(t *testing.T) {
		store := NewMemoryStore()
		defer func() { _ = store.Close() }()

		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrMiss)

		require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), got)

		existed, err := store.Delete(ctx, "k")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = store.Delete(ctx, "k")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("expiration", func(t *testing.T) {
		clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		store := newMemoryStore(clock.Now, time.Hour)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
		clock.Advance(59 * time.Second)
		_, err := store.Get(ctx, "k")
		require.NoError(t, err)

		clock.Advance(time.Second)
		_, err = store.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrMiss)

		existed, err := store.Delete(ctx, "k")
		require.NoError(t, err)
		assert.False(t, existed, "expired entries do not count as existing")
	})

	t.Run("sweep drops expired entries", func(t *testing.T) {
		clock := &fakeClock{now: time.Now()}
		store := newMemoryStore(clock.Now, time.Hour)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Set(ctx, "short", []byte("a"), time.Second))
		require.NoError(t, store.Set(ctx, "long", []byte("b"), time.Hour))
		clock.Advance(2 * time.Second)
		store.sweep()
		assert.Equal(t, 1, store.Len())
	})

	t.Run("stored values are copied", func(t *testing.T) {
		store := NewMemoryStore()
		defer func() { _ = store.Close() }()

		value := []byte("abc")
		require.NoError(t, store.Set(ctx, "k", value, time.Minute))
		value[0] = 'x'

		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
	})

	t.Run("concurrent access", func(t *testing.T) {
		store := NewMemoryStore()
		defer func() { _ = store.Close() }()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					_ = store.Set(ctx, "k", []byte("v"), time.Minute)
					_, _ = store.Get(ctx, "k")
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, store.Len())
	})

	t.Run("close is idempotent", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())
	})
}
