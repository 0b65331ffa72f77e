// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metercacher

import (
	"fmt"

	"github.com/luxfi/metric"
)

const (
	resultLabel = "result"
	hitResult   = "hit"
	missResult  = "miss"
)

var (
	resultLabels = []string{resultLabel}
	hitLabels    = metric.Labels{
		resultLabel: hitResult,
	}
	missLabels = metric.Labels{
		resultLabel: missResult,
	}
)

type cacheMetrics struct {
	getCount metric.CounterVec
	getTime  metric.CounterVec

	putCount metric.Counter
	putTime  metric.Counter

	len           metric.Gauge
	portionFilled metric.Gauge
}

func newMetrics(
	namespace string,
	reg metric.Registerer,
) (*cacheMetrics, error) {
	m := &cacheMetrics{
		getCount: metric.NewCounterVec(
			metric.CounterOpts{
				Namespace: namespace,
				Name:      "get_count",
				Help:      "number of get calls",
			},
			resultLabels,
		),
		getTime: metric.NewCounterVec(
			metric.CounterOpts{
				Namespace: namespace,
				Name:      "get_time",
				Help:      "time spent (ns) in get calls",
			},
			resultLabels,
		),
		putCount: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "put_count",
			Help:      "number of put calls",
		}),
		putTime: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "put_time",
			Help:      "time spent (ns) in put calls",
		}),
		len: metric.NewGauge(metric.GaugeOpts{
			Namespace: namespace,
			Name:      "len",
			Help:      "number of entries",
		}),
		portionFilled: metric.NewGauge(metric.GaugeOpts{
			Namespace: namespace,
			Name:      "portion_filled",
			Help:      "fraction of cache filled",
		}),
	}
	if reg == nil {
		return m, nil
	}

	errs := metric.Errs{}
	for _, c := range []any{
		m.getCount,
		m.getTime,
		m.putCount,
		m.putTime,
		m.len,
		m.portionFilled,
	} {
		if err := reg.Register(metric.AsCollector(c)); err != nil {
			errs.Add(fmt.Errorf("%w: %w", metric.ErrFailedRegistering, err))
		}
	}
	return m, errs.Err
}
