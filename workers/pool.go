// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package workers

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/luxfi/metric"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/blockcache"
	"github.com/luxfi/blockcache/internal/queue"
)

var errNilTask = errors.New("nil task")

// Option configures a Pool.
type Option func(*options)

type options struct {
	logger    *log.Logger
	namespace string
	registry  metric.Registerer
}

// WithLogger sets the logger. Workers log with the prefix "<name>Worker".
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics registers the pool's collectors with reg.
func WithMetrics(namespace string, reg metric.Registerer) Option {
	return func(o *options) {
		o.namespace = namespace
		o.registry = reg
	}
}

// Pool is a fixed set of workers draining one shared FIFO queue.
type Pool struct {
	name       string
	size       int
	newContext ContextFactory
	log        *log.Logger
	metrics    *poolMetrics
	queue      *queue.Queue[message]
	group      errgroup.Group

	// mu orders Schedule against the discard step of Close.
	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// New starts size workers. Each worker locks itself to an OS thread, creates
// its context with newContext and only then starts taking tasks. New returns
// once every worker has its context; if any context cannot be created the
// pool is shut down and the errors are returned.
func New(name string, size int, newContext ContextFactory, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf(
			"%w: worker count must be >=1 but %d was requested",
			blockcache.ErrInvalidConfig, size)
	}
	if newContext == nil {
		return nil, fmt.Errorf("%w: nil context factory", blockcache.ErrInvalidConfig)
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
		return nil, fmt.Errorf("registering pool metrics: %w", err)
	}

	p := &Pool{
		name:       name,
		size:       size,
		newContext: newContext,
		log:        o.logger.WithPrefix(name + "Worker"),
		metrics:    metrics,
		queue:      queue.New[message](),
	}
	p.metrics.size.Set(float64(size))

	ready := make(chan error, size)
	for i := 0; i < size; i++ {
		w := &worker{
			pool: p,
			id:   i,
			log:  p.log.With("worker", i),
		}
		p.group.Go(func() error {
			return w.run(ready)
		})
	}

	var errs []error
	for i := 0; i < size; i++ {
		if err := <-ready; err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		_ = p.Close()
		return nil, errors.Join(errs...)
	}

	p.log.Info("started", "workers", size)
	return p, nil
}

// Schedule enqueues t behind every task already queued. It does not wait
// for a worker to become idle.
func (p *Pool) Schedule(t Task) error {
	if t == nil {
		return errNilTask
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}
	p.queue.Push(message{task: t})
	p.metrics.scheduled.Inc()
	return nil
}

// Size returns the number of workers the pool was created with. It does not
// shrink when a worker is lost to a failing task.
func (p *Pool) Size() int { return p.size }

// Pending returns the number of queued messages not yet taken by a worker.
func (p *Pool) Pending() int { return p.queue.Len() }

// Close discards every task that no worker has taken yet, sends one stop
// message per worker and waits for all workers to release their contexts
// and exit. It returns the first worker error. Calling Close again returns
// the same result.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		discarded := p.queue.Clear()
		for i := 0; i < p.size; i++ {
			p.queue.Push(message{stop: true})
		}
		p.mu.Unlock()

		if discarded > 0 {
			p.metrics.discarded.Add(float64(discarded))
			p.log.Warn("discarded queued tasks", "count", discarded)
		}

		p.closeErr = p.group.Wait()
		p.log.Info("stopped")
	})
	return p.closeErr
}

type worker struct {
	pool *Pool
	id   int
	log  *log.Logger
}

// run never unlocks the OS thread: the thread exits with the goroutine and
// takes whatever thread-bound state the context left behind with it.
func (w *worker) run(ready chan<- error) error {
	runtime.LockOSThread()

	gc, err := w.pool.newContext(w.id)
	if err != nil {
		err = fmt.Errorf("creating context for worker %d: %w", w.id, err)
		ready <- err
		return err
	}
	w.pool.metrics.live.Inc()
	defer w.pool.metrics.live.Dec()
	ready <- nil

	return w.loop(gc)
}

func (w *worker) loop(gc Context) (err error) {
	defer func() {
		if rerr := gc.Release(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("releasing context of worker %d: %w", w.id, rerr))
		}
		w.log.Debug("terminated")
	}()

	for {
		msg := w.pool.queue.Pop()
		if msg.stop {
			w.log.Debug("draining")
			return nil
		}
		if err := w.execute(gc, msg.task); err != nil {
			return err
		}
	}
}

func (w *worker) execute(gc Context, t Task) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			failure := &TaskFailure{Worker: w.id, Value: r}
			w.pool.metrics.failures.Inc()
			w.log.Error("task failed, worker exiting", "error", failure)
			err = failure
			return
		}
		w.pool.metrics.completed.Inc()
		w.pool.metrics.taskTime.Observe(time.Since(start).Seconds())
	}()

	t.Run(gc)
	return nil
}
