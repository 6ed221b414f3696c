package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	assert.Len(t, c.index, 2)
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")

	got, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, got)
}

func TestLRUGetRefreshesRecency(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	c.Set("a", "first")
	c.Set("b", "second")

	// Touching "a" makes "b" the eviction candidate.
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Set("c", "third")
	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok, "expired entry should not be returned")
	assert.Empty(t, c.index)
}

func TestCleanExpired(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)

	assert.Equal(t, 2, c.CleanExpired())
	assert.Len(t, c.index, 1)
}

func TestManagerSweeps(t *testing.T) {
	c := NewLRUCache[int](10, time.Millisecond)
	m := NewManager()
	m.Register(c)

	c.Set("a", 1)
	m.StartCleanup(5 * time.Millisecond)
	defer m.Stop()

	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.index) == 0
	}, time.Second, 5*time.Millisecond)
}
