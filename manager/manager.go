// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package manager composes a block store, a worker pool and a ledger into an
// asynchronously loaded block cache.
//
// Misses are loaded on the worker pool; concurrent requests for the same key
// share one load. Every block that leaves the store, whether evicted,
// replaced, rejected for size or flushed, is reported to the ledger before
// it is removed, and blocks implementing [blockcache.Unloader] are unloaded
// once removed.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/luxfi/container"
	"github.com/luxfi/metric"

	"github.com/luxfi/blockcache"
	"github.com/luxfi/blockcache/config"
	"github.com/luxfi/blockcache/lru"
	"github.com/luxfi/blockcache/metercacher"
	"github.com/luxfi/blockcache/statistics"
	"github.com/luxfi/blockcache/workers"
)

// ErrBlockTooLarge is returned by Fetch when the loaded block alone exceeds
// the memory bound of the store. The block is unloaded and never recorded.
var ErrBlockTooLarge = errors.New("block larger than the cache")

var (
	errNilBlock      = errors.New("loader returned a nil block")
	errLoaderPanic   = errors.New("loader panicked")
	errInvalidLoader = fmt.Errorf("%w: nil loader", blockcache.ErrInvalidConfig)
)

// Loader produces the block for key. It runs on a pool worker and receives
// that worker's context.
type Loader[K comparable] func(key K, gc workers.Context) (blockcache.Block, error)

// Option configures a Manager.
type Option func(*options)

type options struct {
	logger   *log.Logger
	registry metric.Registerer
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer registers the metrics of every component with reg, under
// the configured namespace.
func WithRegisterer(reg metric.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

type pending struct {
	once  sync.Once
	done  chan struct{}
	block blockcache.Block
	err   error
}

// Manager is safe for concurrent use.
type Manager[K comparable] struct {
	log     *log.Logger
	loader  Loader[K]
	ledger  *statistics.Ledger
	pool    *workers.Pool
	store   *metercacher.Cache[K, blockcache.Block]
	metrics *managerMetrics

	// maxBlockSize is the byte bound of a size-bounded store, zero otherwise.
	maxBlockSize uint64

	// mu guards inflight, ghosts and unloads. It is taken inside the store's
	// eviction callback, so it must never be held across a store call.
	mu          sync.Mutex
	inflight    map[K]*pending
	trackGhosts bool
	ghosts      container.Cache[K, struct{}]
	unloads     []blockcache.Unloader

	closeOnce sync.Once
	closeErr  error
}

// New validates cfg and starts the cache. newContext creates the context of
// each pool worker. If New fails, every collector it registered is
// unregistered again.
func New[K comparable](
	cfg config.Config,
	loader Loader[K],
	newContext workers.ContextFactory,
	opts ...Option,
) (_ *Manager[K], err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, errInvalidLoader
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}

	var reg metric.Registerer
	if o.registry != nil {
		regs := &registrations{Registerer: o.registry}
		reg = regs
		defer func() {
			if err != nil {
				regs.rollback()
			}
		}()
	}

	m := &Manager[K]{
		log:      o.logger.WithPrefix(cfg.Name),
		loader:   loader,
		inflight: make(map[K]*pending),
	}
	if cfg.GhostSize > 0 {
		m.trackGhosts = true
		m.ghosts = container.NewLRUCache[K, struct{}](cfg.GhostSize)
	}

	m.metrics, err = newMetrics(cfg.MetricsNamespace, reg)
	if err != nil {
		return nil, fmt.Errorf("registering manager metrics: %w", err)
	}

	m.ledger, err = statistics.New(cfg.Name, cfg.HistorySize,
		statistics.WithMaxMemory(cfg.MaxMemoryMB),
		statistics.WithLogger(o.logger),
		statistics.WithMetrics(cfg.MetricsNamespace+"_ledger", reg),
	)
	if err != nil {
		return nil, err
	}

	var base blockcache.Cacher[K, blockcache.Block]
	if cfg.MaxBlocks > 0 {
		base = lru.NewCacheWithOnEvict[K, blockcache.Block](cfg.MaxBlocks, m.onEvict)
	} else {
		sized := lru.NewSizedCacheWithOnEvict[K, blockcache.Block](cfg.MaxMemoryBytes(), blockSize[K], m.onEvict)
		m.maxBlockSize = uint64(sized.MaxSize())
		base = sized
	}
	m.store, err = metercacher.NewWithRegisterer(cfg.MetricsNamespace+"_store", reg, base,
		metercacher.WithRecorder(m.ledger),
	)
	if err != nil {
		return nil, fmt.Errorf("registering store metrics: %w", err)
	}

	m.pool, err = workers.New(cfg.Name, cfg.Workers, newContext,
		workers.WithLogger(o.logger),
		workers.WithMetrics(cfg.MetricsNamespace+"_workers", reg),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func blockSize[K comparable](_ K, b blockcache.Block) int {
	return int(b.Size())
}

// Get returns the resident block for key without loading it. The lookup
// counts as a hit or a miss.
func (m *Manager[K]) Get(key K) (blockcache.Block, bool) {
	return m.store.Get(key)
}

// Fetch returns the block for key, loading it on the worker pool on a miss.
// Only the wait is bounded by ctx; a load that has started runs to
// completion.
func (m *Manager[K]) Fetch(ctx context.Context, key K) (blockcache.Block, error) {
	if b, ok := m.store.Get(key); ok {
		return b, nil
	}

	p := m.load(key)
	select {
	case <-p.done:
		return p.block, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Prefetch schedules a load of key unless it is resident or already loading.
func (m *Manager[K]) Prefetch(key K) error {
	if _, ok := m.store.Peek(key); ok {
		return nil
	}
	p := m.load(key)
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (m *Manager[K]) load(key K) *pending {
	m.mu.Lock()
	if p, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		return p
	}
	p := &pending{done: make(chan struct{})}
	m.inflight[key] = p
	m.mu.Unlock()

	err := m.pool.Schedule(workers.TaskFunc(func(gc workers.Context) {
		m.runLoad(gc, key, p)
	}))
	if err != nil {
		m.finish(key, p, nil, err)
	}
	return p
}

func (m *Manager[K]) runLoad(gc workers.Context, key K, p *pending) {
	if b, ok := m.store.Peek(key); ok {
		m.finish(key, p, b, nil)
		return
	}

	b, err := m.callLoader(gc, key)
	if err != nil {
		m.metrics.loadFailures.Inc()
		m.log.Warn("block load failed", "key", key, "error", err)
		m.finish(key, p, nil, err)
		return
	}

	if m.maxBlockSize > 0 && b.Size() > m.maxBlockSize {
		m.discardOversized(key, p, b)
		return
	}

	if m.forgetGhost(key) {
		m.metrics.reloads.Inc()
		m.log.Debug("block reloaded after unload", "key", key, "size", humanize.IBytes(b.Size()))
	}
	m.ledger.OnLoaded(b)
	m.store.Put(key, b)
	m.drainUnloads()
	m.finish(key, p, b, nil)
}

// discardOversized fails the load of a block that could never be resident.
// The block is released here and the ledger never sees it.
func (m *Manager[K]) discardOversized(key K, p *pending, b blockcache.Block) {
	m.metrics.oversized.Inc()
	err := fmt.Errorf("%w: block %v is %s, store holds %s",
		ErrBlockTooLarge, key, humanize.IBytes(b.Size()), humanize.IBytes(m.maxBlockSize))
	m.log.Warn("discarding oversized block", "key", key, "error", err)
	if u, ok := b.(blockcache.Unloader); ok {
		u.Unload()
	}
	m.finish(key, p, nil, err)
}

// callLoader keeps loader failures inside the task so the worker survives.
func (m *Manager[K]) callLoader(gc workers.Context, key K) (b blockcache.Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("%w: %v", errLoaderPanic, r)
		}
	}()

	b, err = m.loader(key, gc)
	if err == nil && b == nil {
		err = errNilBlock
	}
	return b, err
}

func (m *Manager[K]) finish(key K, p *pending, b blockcache.Block, err error) {
	p.once.Do(func() {
		m.mu.Lock()
		if m.inflight[key] == p {
			delete(m.inflight, key)
		}
		m.mu.Unlock()

		p.block, p.err = b, err
		close(p.done)
	})
}

// onEvict runs under the store lock, before the block is removed.
func (m *Manager[K]) onEvict(key K, b blockcache.Block) {
	// The ledger logs and counts the violation itself.
	_ = m.ledger.OnPreUnload(b)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.trackGhosts {
		m.ghosts.Put(key, struct{}{})
	}
	if u, ok := b.(blockcache.Unloader); ok {
		m.unloads = append(m.unloads, u)
	}
}

func (m *Manager[K]) forgetGhost(key K) bool {
	if !m.trackGhosts {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ghosts.Get(key); !ok {
		return false
	}
	m.ghosts.Delete(key)
	return true
}

// drainUnloads releases blocks that have left the store.
func (m *Manager[K]) drainUnloads() {
	m.mu.Lock()
	unloads := m.unloads
	m.unloads = nil
	m.mu.Unlock()

	for _, u := range unloads {
		u.Unload()
	}
}

// Evict unloads key if it is resident.
func (m *Manager[K]) Evict(key K) {
	m.store.Evict(key)
	m.drainUnloads()
}

// Flush unloads every resident block.
func (m *Manager[K]) Flush() {
	m.store.Flush()
	m.drainUnloads()
}

// Len returns the number of resident blocks.
func (m *Manager[K]) Len() int { return m.store.Len() }

// Workers returns the size of the worker pool.
func (m *Manager[K]) Workers() int { return m.pool.Size() }

// Stats returns a snapshot of the ledger.
func (m *Manager[K]) Stats() statistics.Stats { return m.ledger.Stats() }

// History returns the ledger's retained events, oldest first.
func (m *Manager[K]) History() []statistics.LoadEvent { return m.ledger.History() }

// Report returns the ledger report.
func (m *Manager[K]) Report() string { return m.ledger.Report() }

// Close shuts the worker pool down, fails every load that had not finished
// with [workers.ErrClosed] and unloads all resident blocks. Later calls
// return the first result.
func (m *Manager[K]) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.pool.Close()

		m.mu.Lock()
		stranded := make(map[K]*pending, len(m.inflight))
		for k, p := range m.inflight {
			stranded[k] = p
		}
		m.mu.Unlock()

		for k, p := range stranded {
			m.finish(k, p, nil, workers.ErrClosed)
		}
		if len(stranded) > 0 {
			m.log.Warn("abandoned pending loads", "count", len(stranded))
		}

		m.Flush()
		m.log.Info("closed")
	})
	return m.closeErr
}
