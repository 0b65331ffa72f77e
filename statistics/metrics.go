// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package statistics

import (
	"fmt"

	"github.com/luxfi/metric"
)

type ledgerMetrics struct {
	blocks      metric.Gauge
	memoryBytes metric.Gauge
	loads       metric.Counter
	unloads     metric.Counter
	hits        metric.Counter
	misses      metric.Counter
	violations  metric.Counter
	loadTime    metric.Histogram
}

func newMetrics(namespace string, reg metric.Registerer) (*ledgerMetrics, error) {
	m := &ledgerMetrics{
		blocks: metric.NewGauge(metric.GaugeOpts{
			Namespace: namespace,
			Name:      "resident_blocks",
			Help:      "number of blocks currently resident in the cache",
		}),
		memoryBytes: metric.NewGauge(metric.GaugeOpts{
			Namespace: namespace,
			Name:      "resident_bytes",
			Help:      "bytes currently resident in the cache",
		}),
		loads: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "block_loads",
			Help:      "number of blocks loaded",
		}),
		unloads: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "block_unloads",
			Help:      "number of blocks unloaded",
		}),
		hits: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "hits",
			Help:      "number of cache hits",
		}),
		misses: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "misses",
			Help:      "number of cache misses",
		}),
		violations: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_violations",
			Help:      "number of unloads rejected because they had no matching load",
		}),
		loadTime: metric.NewHistogram(metric.HistogramOpts{
			Namespace: namespace,
			Name:      "block_load_seconds",
			Help:      "time taken to load a block",
		}),
	}
	if reg == nil {
		return m, nil
	}

	errs := metric.Errs{}
	for _, c := range []any{
		m.blocks,
		m.memoryBytes,
		m.loads,
		m.unloads,
		m.hits,
		m.misses,
		m.violations,
		m.loadTime,
	} {
		if err := reg.Register(metric.AsCollector(c)); err != nil {
			errs.Add(fmt.Errorf("%w: %w", metric.ErrFailedRegistering, err))
		}
	}
	return m, errs.Err
}
