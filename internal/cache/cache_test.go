package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestTTLCache_SetGet(t *testing.T) {
	c := New[string, string]()

	c.Set("k", "v")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, 1, c.Len())
}

func TestTTLCache_GetMissing(t *testing.T) {
	c := New[string, int]()

	v, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Zero(t, v)
}

func TestTTLCache_ExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](WithClock(clock.Now))

	c.SetWithTTL("k", "v", 1000*time.Millisecond)
	clock.Advance(1001 * time.Millisecond)

	// Still stored until touched.
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_NotExpiredAtBoundary(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](WithClock(clock.Now))

	c.SetWithTTL("k", "v", time.Second)
	clock.Advance(time.Second)

	assert.True(t, c.Has("k"))
}

func TestTTLCache_HasEvictsExpired(t *testing.T) {
	clock := newFakeClock()
	c := New[string, string](WithClock(clock.Now), WithDefaultTTL(time.Minute))

	c.Set("k", "v")
	assert.True(t, c.Has("k"))

	clock.Advance(2 * time.Minute)
	assert.False(t, c.Has("k"))
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_EvictsOldestInsertedNotLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](WithMaxSize(2))

	c.Set("first", 1)
	c.Set("second", 2)

	// Reading "first" must not protect it: eviction is FIFO.
	_, ok := c.Get("first")
	require.True(t, ok)

	c.Set("third", 3)

	assert.False(t, c.Has("first"))
	assert.True(t, c.Has("second"))
	assert.True(t, c.Has("third"))
	assert.Equal(t, 2, c.Len())
}

func TestTTLCache_OverwriteDoesNotEvict(t *testing.T) {
	c := New[string, int](WithMaxSize(2))

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)

	// "a" keeps its original position and is evicted next.
	c.Set("c", 3)
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
}

func TestTTLCache_Prune(t *testing.T) {
	clock := newFakeClock()
	c := New[string, int](WithClock(clock.Now))

	c.SetWithTTL("short1", 1, time.Second)
	c.SetWithTTL("long", 2, time.Hour)
	c.SetWithTTL("short2", 3, time.Second)

	clock.Advance(2 * time.Second)

	removed := c.Prune()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, []string{"long"}, c.Keys())
}

func TestTTLCache_PruneNothingExpired(t *testing.T) {
	c := New[string, int]()
	c.Set("a", 1)

	assert.Equal(t, 0, c.Prune())
	assert.Equal(t, 1, c.Len())
}

func TestTTLCache_DeleteAndClear(t *testing.T) {
	c := New[string, int]()
	c.Set("a", 1)
	c.Set("b", 2)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Keys())
}

func TestTTLCache_ConcurrentAccess(t *testing.T) {
	c := New[string, int](WithMaxSize(50))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("%d-%d", w, i)
				c.Set(key, i)
				_, _ = c.Get(key)
				_ = c.Prune()
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
