// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"fmt"

	"github.com/luxfi/metric"
)

type managerMetrics struct {
	reloads      metric.Counter
	loadFailures metric.Counter
	oversized    metric.Counter
}

func newMetrics(namespace string, reg metric.Registerer) (*managerMetrics, error) {
	m := &managerMetrics{
		reloads: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "reloads",
			Help:      "number of blocks loaded again shortly after being unloaded",
		}),
		loadFailures: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "load_failures",
			Help:      "number of block loads that returned an error or panicked",
		}),
		oversized: metric.NewCounter(metric.CounterOpts{
			Namespace: namespace,
			Name:      "oversized_blocks",
			Help:      "number of loaded blocks discarded for exceeding the store bound",
		}),
	}
	if reg == nil {
		return m, nil
	}

	errs := metric.Errs{}
	for _, c := range []any{m.reloads, m.loadFailures, m.oversized} {
		if err := reg.Register(metric.AsCollector(c)); err != nil {
			errs.Add(fmt.Errorf("%w: %w", metric.ErrFailedRegistering, err))
		}
	}
	return m, errs.Err
}

// registrations remembers what was registered through it so a failed New
// can take its collectors back out.
type registrations struct {
	metric.Registerer
	collectors []metric.PrometheusCollector
}

func (r *registrations) Register(c metric.PrometheusCollector) error {
	if err := r.Registerer.Register(c); err != nil {
		return err
	}
	r.collectors = append(r.collectors, c)
	return nil
}

func (r *registrations) MustRegister(cs ...metric.PrometheusCollector) {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

func (r *registrations) rollback() {
	for _, c := range r.collectors {
		r.Registerer.Unregister(c)
	}
	r.collectors = nil
}
