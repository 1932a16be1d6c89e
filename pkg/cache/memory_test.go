package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Add(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type session struct {
	ID string  `json:"id"`
	K  float64 `json:"k"`
}

func newTestCache(clock *fakeNow, opts ...MemoryOption) *MemoryCache {
	opts = append([]MemoryOption{WithMemoryClock(clock.Now), WithMemoryCleanup(0)}, opts...)
	return NewMemoryCache(opts...)
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(&fakeNow{t: time.Unix(0, 0)})
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "s1", session{ID: "s1", K: 0.42}, time.Minute))
	var got session
	require.NoError(t, mc.Get(ctx, "s1", &got))
	assert.Equal(t, session{ID: "s1", K: 0.42}, got)

	require.NoError(t, mc.Set(ctx, "name", "p01", 0))
	var name string
	require.NoError(t, mc.Get(ctx, "name", &name))
	assert.Equal(t, "p01", name)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeNow{t: time.Unix(0, 0)}
	mc := newTestCache(clock)
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", 1, time.Second))
	ok, err := mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Add(2 * time.Second)
	ok, err = mc.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	extended, err := mc.Expire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, extended)
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	clock := &fakeNow{t: time.Unix(0, 0)}
	mc := newTestCache(clock)
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "lock:s1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock:s1", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Add(6 * time.Second)
	ok, err = mc.TryLock(ctx, "lock:s1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock is free again")

	require.NoError(t, mc.Unlock(ctx, "lock:s1"))
	ok, err = mc.TryLock(ctx, "lock:s1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	clock := &fakeNow{t: time.Unix(0, 0)}
	mc := newTestCache(clock, WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	clock.Add(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	clock.Add(time.Millisecond)
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	clock.Add(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
}

func TestLayeredCacheReadsThrough(t *testing.T) {
	ctx := context.Background()
	clock := &fakeNow{t: time.Unix(0, 0)}
	l2 := newTestCache(clock)
	lc := NewLayeredCache(l2, time.Second, WithMemoryClock(clock.Now), WithMemoryCleanup(0))
	defer lc.Close()

	require.NoError(t, l2.Set(ctx, "p01", "42.5", 0))
	var s string
	require.NoError(t, lc.Get(ctx, "p01", &s))
	assert.Equal(t, "42.5", s)

	require.NoError(t, l2.Delete(ctx, "p01"))
	require.NoError(t, lc.Get(ctx, "p01", &s), "served from L1")
	clock.Add(2 * time.Second)
	assert.ErrorIs(t, lc.Get(ctx, "p01", &s), ErrCacheMiss)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "session:abc", Key("session", "abc"))
}
