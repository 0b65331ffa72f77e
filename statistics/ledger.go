// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package statistics records cache load and unload activity in a bounded
// history with running totals.
package statistics

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/gammazero/deque"
	"github.com/luxfi/metric"

	"github.com/luxfi/blockcache"
)

// Option configures a Ledger.
type Option func(*options)

type options struct {
	maxMemory float64
	logger    *log.Logger
	namespace string
	registry  metric.Registerer
}

// WithMaxMemory sets the informational memory ceiling, in megabytes.
func WithMaxMemory(mb float64) Option {
	return func(o *options) {
		o.maxMemory = mb
	}
}

// WithLogger sets the logger used for per-event debug records and
// consistency violations.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics registers the ledger's collectors with reg.
func WithMetrics(namespace string, reg metric.Registerer) Option {
	return func(o *options) {
		o.namespace = namespace
		o.registry = reg
	}
}

// Stats is a point-in-time snapshot of a Ledger.
type Stats struct {
	Name         string
	BlockCount   int
	MemoryUsedMB float64
	MaxMemoryMB  float64
	Hits         uint64
	Misses       uint64
	HistoryLen   int
	Capacity     int
}

// Ledger tracks resident blocks and memory and keeps the most recent
// load/unload events. All methods are safe for concurrent use.
type Ledger struct {
	name     string
	capacity int
	start    time.Time
	log      *log.Logger
	metrics  *ledgerMetrics

	mu         sync.Mutex
	blockCount int
	memoryUsed float64
	maxMemory  float64
	hits       uint64
	misses     uint64
	history    deque.Deque[LoadEvent]
}

// New returns a ledger that retains at most capacity events.
func New(name string, capacity int, opts ...Option) (*Ledger, error) {
	if capacity < 1 {
		return nil, fmt.Errorf(
			"%w: history capacity must be >=1 but %d was requested",
			blockcache.ErrInvalidConfig, capacity)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}

	metrics, err := newMetrics(o.namespace, o.registry)
	if err != nil {
		return nil, fmt.Errorf("registering ledger metrics: %w", err)
	}

	l := &Ledger{
		name:      name,
		capacity:  capacity,
		start:     time.Now(),
		log:       o.logger.WithPrefix(name),
		metrics:   metrics,
		maxMemory: o.maxMemory,
	}
	return l, nil
}

// Name returns the name given at construction.
func (l *Ledger) Name() string { return l.name }

// OnLoaded records that b became resident.
func (l *Ledger) OnLoaded(b blockcache.Block) {
	size := b.Size()
	took := b.LoadDuration()

	l.mu.Lock()
	l.blockCount++
	l.memoryUsed += float64(size) / blockcache.MB
	e := l.appendLocked(OpLoad, size, took)
	l.setResidentLocked(e)
	l.mu.Unlock()

	l.metrics.loads.Inc()
	l.metrics.loadTime.Observe(took.Seconds())
	l.log.Debug("block loaded",
		"size", humanize.IBytes(size),
		"took", took,
		"blocks", e.CumulativeBlocks,
		"resident", humanize.IBytes(e.CumulativeSize),
	)
}

// OnPreUnload records that b is about to leave the cache. It must be called
// before the block is removed from storage. An unload that has no matching
// load is rejected and leaves the ledger untouched.
func (l *Ledger) OnPreUnload(b blockcache.Block) error {
	size := b.Size()

	l.mu.Lock()
	var resident uint64
	if tail, ok := l.tailLocked(); ok {
		resident = tail.CumulativeSize
	}
	if l.blockCount == 0 || size > resident {
		count := l.blockCount
		l.mu.Unlock()

		l.metrics.violations.Inc()
		err := fmt.Errorf(
			"%w: unloading %d bytes with %d resident blocks holding %d bytes",
			blockcache.ErrConsistency, size, count, resident)
		l.log.Error("rejected unload", "error", err)
		return err
	}
	l.blockCount--
	l.memoryUsed -= float64(size) / blockcache.MB
	e := l.appendLocked(OpUnload, size, 0)
	l.setResidentLocked(e)
	l.mu.Unlock()

	l.metrics.unloads.Inc()
	l.log.Debug("block unloading",
		"size", humanize.IBytes(size),
		"blocks", e.CumulativeBlocks,
		"resident", humanize.IBytes(e.CumulativeSize),
	)
	return nil
}

// appendLocked pushes the event derived from the current tail, seeding a
// zero baseline when the history is empty and evicting the oldest record
// when full. The tail is read before eviction so capacity 1 works.
func (l *Ledger) appendLocked(op Op, size uint64, took time.Duration) LoadEvent {
	now := time.Since(l.start)
	prev, ok := l.tailLocked()
	if !ok {
		prev = LoadEvent{Time: now}
		l.history.PushBack(prev)
	}
	if l.history.Len() >= l.capacity {
		l.history.PopFront()
	}
	e := prev.next(now, op, size, took)
	l.history.PushBack(e)
	return e
}

// setResidentLocked publishes the resident gauges in event order. Gauges are
// absolute, so they are set under the ledger lock.
func (l *Ledger) setResidentLocked(e LoadEvent) {
	l.metrics.blocks.Set(float64(e.CumulativeBlocks))
	l.metrics.memoryBytes.Set(float64(e.CumulativeSize))
}

func (l *Ledger) tailLocked() (LoadEvent, bool) {
	if l.history.Len() == 0 {
		return LoadEvent{}, false
	}
	return l.history.Back(), true
}

// RecordHit counts a lookup that found a resident block.
func (l *Ledger) RecordHit() {
	l.mu.Lock()
	l.hits++
	l.mu.Unlock()
	l.metrics.hits.Inc()
}

// RecordMiss counts a lookup that found nothing.
func (l *Ledger) RecordMiss() {
	l.mu.Lock()
	l.misses++
	l.mu.Unlock()
	l.metrics.misses.Inc()
}

// SetMaxMemory updates the memory ceiling shown by Report.
func (l *Ledger) SetMaxMemory(mb float64) {
	l.mu.Lock()
	l.maxMemory = mb
	l.mu.Unlock()
}

// Stats returns a consistent snapshot of the running totals.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Name:         l.name,
		BlockCount:   l.blockCount,
		MemoryUsedMB: l.memoryUsed,
		MaxMemoryMB:  l.maxMemory,
		Hits:         l.hits,
		Misses:       l.misses,
		HistoryLen:   l.history.Len(),
		Capacity:     l.capacity,
	}
}

// History returns a copy of the retained events, oldest first.
func (l *Ledger) History() []LoadEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]LoadEvent, l.history.Len())
	for i := range events {
		events[i] = l.history.At(i)
	}
	return events
}

// Last returns the newest event.
func (l *Ledger) Last() (LoadEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tailLocked()
}

// Report renders the running totals:
//
//	<name>
//	  Total Used Memory: <used>/<max>MB
//	  Total Block Count: <count>
//	  Cache hits: <hits>
//	  Cache misses: <misses>
func (l *Ledger) Report() string {
	s := l.Stats()

	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteString("\n  Total Used Memory: ")
	b.WriteString(formatMB(s.MemoryUsedMB))
	b.WriteByte('/')
	b.WriteString(formatMB(s.MaxMemoryMB))
	b.WriteString("MB\n  Total Block Count: ")
	b.WriteString(strconv.Itoa(s.BlockCount))
	b.WriteString("\n  Cache hits: ")
	b.WriteString(strconv.FormatUint(s.Hits, 10))
	b.WriteString("\n  Cache misses: ")
	b.WriteString(strconv.FormatUint(s.Misses, 10))
	b.WriteByte('\n')
	return b.String()
}

func (l *Ledger) String() string { return l.Report() }

func formatMB(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
