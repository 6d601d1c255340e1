package cache_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spounge-ai/easycache/pkg/cache"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
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

func newLocal(t *testing.T, clock *fakeClock, opts ...cache.LocalOption) *cache.LocalBackend {
	t.Helper()
	opts = append([]cache.LocalOption{cache.WithCleanupInterval(0), cache.WithClock(clock.Now)}, opts...)
	l := cache.NewLocal(opts...)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLocal_InsertGetExpire(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newLocal(t, clock)

	require.NoError(t, l.Insert(ctx, "k", "v", time.Minute))

	got, found, err := cache.Get[string](ctx, l, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", got)

	clock.Advance(time.Minute + time.Second)

	got, found, err = cache.Get[string](ctx, l, "k")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, got)
	assert.Equal(t, 0, l.Count())
}

func TestLocal_DefaultTTL(t *testing.T) {
	ctx := context.Background()

	for _, ttl := range []time.Duration{0, -time.Second} {
		t.Run(fmt.Sprintf("ttl=%s", ttl), func(t *testing.T) {
			clock := newFakeClock()
			l := newLocal(t, clock)
			require.NoError(t, l.Insert(ctx, "k", 42, ttl))

			clock.Advance(cache.DefaultTTL - time.Second)
			_, found, err := cache.Get[int](ctx, l, "k")
			require.NoError(t, err)
			assert.True(t, found, "entry must live for the default hour")

			clock.Advance(2 * time.Second)
			_, found, err = cache.Get[int](ctx, l, "k")
			require.NoError(t, err)
			assert.False(t, found, "entry must expire after the default hour")
		})
	}
}

func TestLocal_InsertOverwrites(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, newFakeClock())

	require.NoError(t, l.Insert(ctx, "k", "first", 0))
	require.NoError(t, l.Insert(ctx, "k", "second", 0))

	got, _, err := cache.Get[string](ctx, l, "k")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestLocal_Add(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newLocal(t, clock)

	added, err := l.Add(ctx, "k", "v1", time.Minute)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = l.Add(ctx, "k", "v2", time.Minute)
	require.NoError(t, err)
	assert.False(t, added)

	got, _, err := cache.Get[string](ctx, l, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	clock.Advance(2 * time.Minute)
	added, err = l.Add(ctx, "k", "v3", time.Minute)
	require.NoError(t, err)
	assert.True(t, added, "an expired entry counts as absent")
}

func TestLocal_ConcurrentAddHasOneWinner(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, newFakeClock())

	const n = 64
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		winner  atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			<-start
			added, err := l.Add(ctx, "race", v, 0)
			assert.NoError(t, err)
			if added {
				winners.Add(1)
				winner.Store(int32(v))
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), winners.Load())
	got, found, err := cache.Get[int](ctx, l, "race")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int(winner.Load()), got)
}

func TestLocal_TypeMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, newFakeClock())

	require.NoError(t, l.Insert(ctx, "k", "a string", 0))

	got, found, err := cache.Get[int](ctx, l, "k")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, got)
}

func TestLocal_InterfaceDestination(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, newFakeClock())

	require.NoError(t, l.Insert(ctx, "k", fmt.Errorf("boom"), 0))

	got, found, err := cache.Get[error](ctx, l, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualError(t, got, "boom")
}

func TestLocal_InvalidInput(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, newFakeClock())

	var nilPtr *int
	assert.ErrorIs(t, l.Insert(ctx, "k", nil, 0), cache.ErrNilValue)
	assert.ErrorIs(t, l.Insert(ctx, "k", nilPtr, 0), cache.ErrNilValue)
	_, err := l.Add(ctx, "k", nil, 0)
	assert.ErrorIs(t, err, cache.ErrNilValue)

	var dest string
	_, err = l.Get(ctx, "k", dest)
	assert.ErrorIs(t, err, cache.ErrInvalidDestination)
}

func TestLocal_RemoveAndRemoveBatch(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, newFakeClock())

	require.NoError(t, l.Insert(ctx, "k1", "v", 0))

	removed, err := l.Remove(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = l.RemoveBatch(ctx, []string{"k1", "k2"})
	require.NoError(t, err)
	assert.True(t, removed)

	for _, key := range []string{"k1", "k2"} {
		_, found, err := cache.Get[string](ctx, l, key)
		require.NoError(t, err)
		assert.False(t, found, key)
	}

	removed, err = l.RemoveBatch(ctx, []string{"k1", "k2"})
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLocal_Clean(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, newFakeClock())

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Insert(ctx, fmt.Sprintf("k%d", i), i, 0))
	}
	require.Equal(t, 10, l.Count())

	require.NoError(t, l.Clean(ctx))

	assert.Equal(t, 0, l.Count())
	_, found, err := cache.Get[int](ctx, l, "k3")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLocal_CleanupLoopSweepsExpired(t *testing.T) {
	ctx := context.Background()

	evicted := make(chan string, 1)
	l := cache.NewLocal(
		cache.WithCleanupInterval(5*time.Millisecond),
		cache.WithEvictionCallback(func(key string, _ any) { evicted <- key }),
	)
	defer l.Close()

	require.NoError(t, l.Insert(ctx, "short", "v", 10*time.Millisecond))

	select {
	case key := <-evicted:
		assert.Equal(t, "short", key)
	case <-time.After(time.Second):
		t.Fatal("expected the sweeper to evict the expired item")
	}
}

func TestLocal_EvictionCallbackMayUseCache(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	var l *cache.LocalBackend
	var seen []string
	l = newLocal(t, clock, cache.WithEvictionCallback(func(key string, value any) {
		seen = append(seen, key)
		_ = l.Insert(ctx, "last-evicted", key, 0)
		_ = l.Count()
	}))

	require.NoError(t, l.Insert(ctx, "a", 1, 0))
	require.NoError(t, l.Insert(ctx, "b", 2, 0))
	require.NoError(t, l.Insert(ctx, "short", 3, time.Second))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = l.Remove(ctx, "a")
		_, _ = l.RemoveBatch(ctx, []string{"b"})
		clock.Advance(2 * time.Second)
		_, _, _ = cache.Get[int](ctx, l, "short")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("eviction callback deadlocked")
	}

	assert.Equal(t, []string{"a", "b", "short"}, seen)
	got, found, err := cache.Get[string](ctx, l, "last-evicted")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "short", got)
}

func TestLocal_NumericTypesDoNotConvert(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, newFakeClock())

	require.NoError(t, l.Insert(ctx, "n", 42, 0))

	_, found, err := cache.Get[float64](ctx, l, "n")
	require.NoError(t, err)
	assert.False(t, found, "values are returned as stored, without conversion")

	got, found, err := cache.Get[int](ctx, l, "n")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, got)
}

func TestLocal_Close(t *testing.T) {
	ctx := context.Background()
	l := cache.NewLocal()

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.ErrorIs(t, l.Insert(ctx, "k", "v", 0), cache.ErrClosed)
	_, err := l.Get(ctx, "k", new(string))
	assert.ErrorIs(t, err, cache.ErrClosed)
	assert.ErrorIs(t, l.Ping(ctx), cache.ErrClosed)
}
