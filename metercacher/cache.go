// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metercacher provides metered cache implementations.
package metercacher

import (
	"time"

	"github.com/luxfi/metric"

	"github.com/luxfi/blockcache"
)

var _ blockcache.Cacher[struct{}, struct{}] = (*Cache[struct{}, struct{}])(nil)

// HitMissRecorder receives the outcome of every Get.
type HitMissRecorder interface {
	RecordHit()
	RecordMiss()
}

// Option configures a metered cache.
type Option func(*options)

type options struct {
	recorder HitMissRecorder
}

// WithRecorder forwards hits and misses to r.
func WithRecorder(r HitMissRecorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

type peeker[K comparable, V any] interface {
	Peek(key K) (V, bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordHit()  {}
func (nopRecorder) RecordMiss() {}

// Cache wraps a Cacher with metrics.
type Cache[K comparable, V any] struct {
	blockcache.Cacher[K, V]
	metrics  *cacheMetrics
	recorder HitMissRecorder
}

// New creates a new metered cache wrapper. A nil registry keeps the metrics
// unregistered.
func New[K comparable, V any](
	namespace string,
	registry metric.Registry,
	c blockcache.Cacher[K, V],
	opts ...Option,
) (*Cache[K, V], error) {
	var reg metric.Registerer
	if registry != nil {
		reg = registry
	}
	return NewWithRegisterer(namespace, reg, c, opts...)
}

// NewWithRegisterer is New for callers that register through a wrapped or
// prefixed registerer rather than a registry.
func NewWithRegisterer[K comparable, V any](
	namespace string,
	reg metric.Registerer,
	c blockcache.Cacher[K, V],
	opts ...Option,
) (*Cache[K, V], error) {
	o := options{recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	metrics, err := newMetrics(namespace, reg)
	return &Cache[K, V]{
		Cacher:   c,
		metrics:  metrics,
		recorder: o.recorder,
	}, err
}

func (c *Cache[K, V]) Put(key K, value V) {
	start := time.Now()
	c.Cacher.Put(key, value)
	putDuration := time.Since(start)

	c.metrics.putCount.Inc()
	c.metrics.putTime.Add(float64(putDuration))
	c.metrics.len.Set(float64(c.Cacher.Len()))
	c.metrics.portionFilled.Set(c.Cacher.PortionFilled())
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	start := time.Now()
	value, has := c.Cacher.Get(key)
	getDuration := time.Since(start)

	if has {
		c.metrics.getCount.With(hitLabels).Inc()
		c.metrics.getTime.With(hitLabels).Add(float64(getDuration))
		c.recorder.RecordHit()
	} else {
		c.metrics.getCount.With(missLabels).Inc()
		c.metrics.getTime.With(missLabels).Add(float64(getDuration))
		c.recorder.RecordMiss()
	}

	return value, has
}

// Peek looks up key without touching metrics or the recorder. The entry's
// recency is left alone when the wrapped cache can peek; otherwise the lookup
// falls back to Get.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	if p, ok := c.Cacher.(peeker[K, V]); ok {
		return p.Peek(key)
	}
	return c.Cacher.Get(key)
}

func (c *Cache[K, _]) Evict(key K) {
	c.Cacher.Evict(key)
	c.metrics.len.Set(float64(c.Cacher.Len()))
	c.metrics.portionFilled.Set(c.Cacher.PortionFilled())
}

func (c *Cache[_, _]) Flush() {
	c.Cacher.Flush()
	c.metrics.len.Set(float64(c.Cacher.Len()))
	c.metrics.portionFilled.Set(c.Cacher.PortionFilled())
}
