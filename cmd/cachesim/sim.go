// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/luxfi/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/luxfi/blockcache"
	"github.com/luxfi/blockcache/config"
	"github.com/luxfi/blockcache/manager"
	"github.com/luxfi/blockcache/workers"
)

// bytesPerMicrosecond is the simulated upload bandwidth.
const bytesPerMicrosecond = 4 * humanize.KiByte

type workload struct {
	Ops     int
	Keys    int
	Clients int
	Rate    float64
	MinSize uint64
	MaxSize uint64
}

func (w workload) validate() error {
	switch {
	case w.Ops < 0:
		return fmt.Errorf("%w: ops must be >=0 but is %d", blockcache.ErrInvalidConfig, w.Ops)
	case w.Keys < 1:
		return fmt.Errorf("%w: keys must be >=1 but is %d", blockcache.ErrInvalidConfig, w.Keys)
	case w.Clients < 1:
		return fmt.Errorf("%w: clients must be >=1 but is %d", blockcache.ErrInvalidConfig, w.Clients)
	case w.Rate < 0:
		return fmt.Errorf("%w: rate must be >=0 but is %g", blockcache.ErrInvalidConfig, w.Rate)
	case w.MinSize == 0 || w.MinSize > w.MaxSize:
		return fmt.Errorf("%w: block sizes must satisfy 0 < min <= max but are %d and %d",
			blockcache.ErrInvalidConfig, w.MinSize, w.MaxSize)
	}
	return nil
}

// share returns the number of fetches issued by client i.
func (w workload) share(i int) int {
	n := w.Ops / w.Clients
	if i < w.Ops%w.Clients {
		n++
	}
	return n
}

// blockSize is fixed per key so reloads see the same block.
func (w workload) blockSize(key int) uint64 {
	span := w.MaxSize - w.MinSize + 1
	r := rand.New(rand.NewPCG(uint64(key), w.MinSize^w.MaxSize))
	return w.MinSize + r.Uint64N(span)
}

type simContext struct {
	log      *log.Logger
	worker   int
	uploads  atomic.Uint64
	released atomic.Bool
}

func (c *simContext) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		return fmt.Errorf("context of worker %d released twice", c.worker)
	}
	c.log.Debug("context released", "worker", c.worker, "uploads", c.uploads.Load())
	return nil
}

type simBlock struct {
	key      int
	size     uint64
	took     time.Duration
	unloaded atomic.Bool
}

func (b *simBlock) Size() uint64                { return b.size }
func (b *simBlock) LoadDuration() time.Duration { return b.took }
func (b *simBlock) Unload()                     { b.unloaded.Store(true) }

func simulate(
	ctx context.Context,
	cfg config.Config,
	w workload,
	logger *log.Logger,
	reg metric.Registry,
	out io.Writer,
) error {
	if err := w.validate(); err != nil {
		return err
	}

	newContext := func(worker int) (workers.Context, error) {
		return &simContext{log: logger, worker: worker}, nil
	}
	loader := func(key int, gc workers.Context) (blockcache.Block, error) {
		sc, ok := gc.(*simContext)
		if !ok {
			return nil, fmt.Errorf("unexpected context %T", gc)
		}
		size := w.blockSize(key)
		took := time.Duration(size/bytesPerMicrosecond) * time.Microsecond
		time.Sleep(took)
		sc.uploads.Add(1)
		return &simBlock{key: key, size: size, took: took}, nil
	}

	opts := []manager.Option{manager.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, manager.WithRegisterer(reg))
	}
	m, err := manager.New[int](cfg, loader, newContext, opts...)
	if err != nil {
		return err
	}

	limit := rate.Inf
	if w.Rate > 0 {
		limit = rate.Limit(w.Rate)
	}
	limiter := rate.NewLimiter(limit, w.Clients)

	logger.Info("starting workload",
		"ops", w.Ops,
		"keys", w.Keys,
		"clients", w.Clients,
		"workers", m.Workers(),
		"blocks", humanize.IBytes(w.MinSize)+"-"+humanize.IBytes(w.MaxSize),
	)
	start := time.Now()

	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.Clients; i++ {
		n := w.share(i)
		eg.Go(func() error {
			for range n {
				if err := limiter.Wait(egCtx); err != nil {
					return err
				}
				key := rand.IntN(w.Keys)
				_, err := m.Fetch(egCtx, key)
				switch {
				case errors.Is(err, manager.ErrBlockTooLarge):
					logger.Debug("block does not fit", "key", key, "error", err)
					continue
				case err != nil:
					return fmt.Errorf("fetching block %d: %w", key, err)
				}
				if err := m.Prefetch((key + 1) % w.Keys); err != nil {
					logger.Debug("read-ahead failed", "key", key+1, "error", err)
				}
			}
			return nil
		})
	}
	runErr := eg.Wait()

	logger.Info("workload finished", "elapsed", time.Since(start).Round(time.Millisecond))
	report := m.Report()
	history := m.History()
	if err := m.Close(); err != nil {
		logger.Error("closing cache", "error", err)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprint(out, report)
	if len(history) > 0 {
		fmt.Fprintf(out, "  Last event: %s\n", history[len(history)-1])
	}
	return nil
}
