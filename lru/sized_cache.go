// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package lru

import (
	"container/list"
	"sync"

	"github.com/luxfi/blockcache"
)

// SizedCache is an LRU cache bounded by total size rather than entry count.
// onEvict follows the same rules as for [Cache]; an entry larger than the
// whole cache is rejected and reported to onEvict without being stored.
type SizedCache[K comparable, V any] struct {
	mu          sync.Mutex
	maxSize     int
	currentSize int
	sizeFn      func(K, V) int
	items       map[K]*list.Element
	lru         *list.List
	onEvict     func(K, V)
}

type sizedEntry[K comparable, V any] struct {
	key   K
	value V
	size  int
}

// NewSizedCache creates a size-bounded LRU cache.
func NewSizedCache[K comparable, V any](maxSize int, sizeFn func(K, V) int) *SizedCache[K, V] {
	return NewSizedCacheWithOnEvict(maxSize, sizeFn, nil)
}

// NewSizedCacheWithOnEvict creates a size-bounded LRU cache with an eviction
// callback.
func NewSizedCacheWithOnEvict[K comparable, V any](maxSize int, sizeFn func(K, V) int, onEvict func(K, V)) *SizedCache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	if sizeFn == nil {
		sizeFn = func(K, V) int { return 1 }
	}
	return &SizedCache[K, V]{
		maxSize: maxSize,
		sizeFn:  sizeFn,
		items:   make(map[K]*list.Element),
		lru:     list.New(),
		onEvict: onEvict,
	}
}

// Put inserts or replaces a value.
func (c *SizedCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}

	entrySize := c.sizeFn(key, value)
	if entrySize > c.maxSize {
		if c.onEvict != nil {
			c.onEvict(key, value)
		}
		return
	}

	for c.currentSize > c.maxSize-entrySize {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
	}

	e := &sizedEntry[K, V]{key: key, value: value, size: entrySize}
	c.items[key] = c.lru.PushFront(e)
	c.currentSize += entrySize
}

// Get retrieves a value and marks it as most recently used.
func (c *SizedCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*sizedEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Peek retrieves a value without changing its recency.
func (c *SizedCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		return elem.Value.(*sizedEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Evict removes a key from the cache.
func (c *SizedCache[K, V]) Evict(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeLocked(elem)
	}
}

// Flush removes all entries.
func (c *SizedCache[K, V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.lru.Len() > 0 {
		c.removeLocked(c.lru.Back())
	}
}

func (c *SizedCache[K, V]) removeLocked(elem *list.Element) {
	e := elem.Value.(*sizedEntry[K, V])
	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
	c.currentSize -= e.size
	delete(c.items, e.key)
	c.lru.Remove(elem)
}

// Len returns number of entries.
func (c *SizedCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// MaxSize returns the size bound given at construction.
func (c *SizedCache[K, V]) MaxSize() int { return c.maxSize }

// Size returns the sum of the sizes of the stored entries.
func (c *SizedCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// PortionFilled returns the ratio of size used to max size.
func (c *SizedCache[K, V]) PortionFilled() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.currentSize) / float64(c.maxSize)
}

var _ blockcache.Cacher[struct{}, struct{}] = (*SizedCache[struct{}, struct{}])(nil)
