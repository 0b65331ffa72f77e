package lru

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	require := require.New(t)

	cache := NewCache[string, string](3)

	// Test basic operations
	cache.Put("a", "apple")
	cache.Put("b", "banana")
	cache.Put("c", "cherry")

	require.Equal(3, cache.Len())
	require.Equal(1.0, cache.PortionFilled())

	// Test Get
	val, ok := cache.Get("a")
	require.True(ok)
	require.Equal("apple", val)

	// Test eviction: "b" is now the least recently used
	cache.Put("d", "date")
	require.Equal(3, cache.Len())
	_, ok = cache.Get("b")
	require.False(ok)

	// Test Flush
	cache.Flush()
	require.Equal(0, cache.Len())
	require.Equal(0.0, cache.PortionFilled())
}

func TestCacheWithEvictionCallback(t *testing.T) {
	require := require.New(t)

	evicted := make([]string, 0)
	cache := NewCacheWithOnEvict[string, string](2, func(k, v string) {
		evicted = append(evicted, k)
	})

	cache.Put("x", "value-x")
	cache.Put("y", "value-y")
	cache.Put("z", "value-z") // Should evict 'x'
	require.Equal([]string{"x"}, evicted)

	cache.Put("y", "value-y2") // replacement reports the old value
	require.Equal([]string{"x", "y"}, evicted)

	cache.Evict("z")
	cache.Evict("missing")
	require.Equal([]string{"x", "y", "z"}, evicted)

	cache.Put("w", "value-w")
	cache.Flush()
	require.Equal([]string{"x", "y", "z", "y", "w"}, evicted)
	require.Zero(cache.Len())
}

func TestCallbackSeesEntryBeforeRemoval(t *testing.T) {
	require := require.New(t)

	var cache *Cache[int, int]
	var lens []int
	cache = NewCacheWithOnEvict[int, int](1, func(int, int) {
		// The lock is held, so inspect the internals directly.
		lens = append(lens, cache.order.Len())
	})
	cache.Put(1, 1)
	cache.Put(2, 2)
	require.Equal([]int{1}, lens)
}

func TestCachePeekDoesNotPromote(t *testing.T) {
	require := require.New(t)

	cache := NewCache[int, int](2)
	cache.Put(1, 1)
	cache.Put(2, 2)

	v, ok := cache.Peek(1)
	require.True(ok)
	require.Equal(1, v)

	cache.Put(3, 3)
	_, ok = cache.Peek(1)
	require.False(ok)
	_, ok = cache.Peek(2)
	require.True(ok)
}
