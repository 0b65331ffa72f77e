// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package workers

import (
	"fmt"

	"github.com/luxfi/metric"
)

type poolMetrics struct {
	size      metric.Gauge
	live      metric.Gauge
	scheduled metric.Counter
	completed metric.Counter
	discarded metric.Counter
	failures  metric.Counter
	taskTime  metric.Histogram
}

func newMetrics(namespace string, reg metric.Registerer) (*poolMetrics, error) {
	m := &poolMetrics{
		size: metric.NewGauge(metric.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "configured number of workers",
		}),
		live: metric.NewGauge(metric.GaugeOpts{
			Namespace: namespace,
			Name:      "live_workers",
			Help:      "number of workers currently running",
		}),
		scheduled: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_scheduled",
			Help:      "number of tasks accepted by Schedule",
		}),
		completed: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed",
			Help:      "number of tasks that ran to completion",
		}),
		discarded: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_discarded",
			Help:      "number of queued tasks dropped at shutdown",
		}),
		failures: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "task_failures",
			Help:      "number of tasks that panicked and terminated their worker",
		}),
		taskTime: metric.NewHistogram(metric.HistogramOpts{
			Namespace: namespace,
			Name:      "task_seconds",
			Help:      "time spent executing tasks",
		}),
	}
	if reg == nil {
		return m, nil
	}

	errs := metric.Errs{}
	for _, c := range []any{
		m.size,
		m.live,
		m.scheduled,
		m.completed,
		m.discarded,
		m.failures,
		m.taskTime,
	} {
		if err := reg.Register(metric.AsCollector(c)); err != nil {
			errs.Add(fmt.Errorf("%w: %w", metric.ErrFailedRegistering, err))
		}
	}
	return m, errs.Err
}
