package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagedir/internal/resource"
)

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU[string](10, nil)
	c.Set("a", []byte("aaaa"))
	c.Set("b", []byte("bbbb"))

	_, ok := c.Get("a")
	require.True(t, ok)

	// "b" is least recently used.
	c.Set("c", []byte("cccc"))
	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(8), c.Size())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRU_EdgeCases(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	c := NewLRU[int](50, rc)

	c.Set(1, make([]byte, 60))
	_, ok := c.Get(1)
	assert.False(t, ok, "values larger than the capacity are not cached")

	c.Set(1, make([]byte, 10))
	c.Set(1, make([]byte, 20))
	assert.Equal(t, int64(20), c.Size())
	assert.Equal(t, int64(20), rc.MemoryUsage())

	c.Set(1, make([]byte, 5))
	assert.Equal(t, int64(5), c.Size())
	assert.Equal(t, int64(5), rc.MemoryUsage())

	c.Purge()
	assert.Equal(t, int64(0), c.Size())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestLRU_ResourceLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 10})
	require.NoError(t, rc.AcquireMemory(8))
	c := NewLRU[int](50, rc)

	c.Set(1, make([]byte, 4))
	_, ok := c.Get(1)
	assert.False(t, ok, "the controller rejects the value")

	c.Set(2, make([]byte, 2))
	_, ok = c.Get(2)
	assert.True(t, ok)
}

func TestLRU_Stats(t *testing.T) {
	c := NewLRU[int](100, nil)
	c.Set(1, []byte{1})
	c.Get(1)
	c.Get(2)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
}

func TestLRU_Invalidate(t *testing.T) {
	type key struct {
		seg string
		off int
	}
	c := NewLRU[key](100, nil)
	c.Set(key{"s1", 1}, []byte("a"))
	c.Set(key{"s1", 2}, []byte("b"))
	c.Set(key{"s2", 1}, []byte("c"))

	n := c.Invalidate(func(k key) bool { return k.seg == "s1" })
	assert.Equal(t, 2, n)

	_, ok := c.Get(key{"s1", 1})
	assert.False(t, ok)
	_, ok = c.Get(key{"s2", 1})
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Size())
}

func TestLRU_Concurrent(t *testing.T) {
	c := NewLRU[string](1<<10, nil)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				k := fmt.Sprintf("k%d", (g*31+i)%64)
				c.Set(k, make([]byte, 16))
				c.Get(k)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), int64(1<<10))
}
