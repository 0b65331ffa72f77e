// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package workers

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Schedule once the pool has begun shutting down.
var ErrClosed = errors.New("worker pool closed")

// Context is the per-worker resource, such as a graphics context, that a
// worker owns for its whole life. It is never shared between workers.
type Context interface {
	// Release is called exactly once, by the owning worker, as it exits.
	Release() error
}

// ContextFactory creates the context for the worker with the given index.
// It is called once per worker, on that worker's thread, before the worker
// takes any task.
type ContextFactory func(worker int) (Context, error)

// Task is a unit of work. Run receives the context of the worker executing
// it. Tasks must contain their own failures: a panic escaping Run terminates
// the worker that ran it and the pool does not replace it.
type Task interface {
	Run(gc Context)
}

// TaskFunc adapts a function to a Task.
type TaskFunc func(gc Context)

func (f TaskFunc) Run(gc Context) { f(gc) }

// TaskFailure describes a task that panicked out of Run.
type TaskFailure struct {
	Worker int
	Value  any
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("task panicked on worker %d: %v", e.Worker, e.Value)
}

// message is the only thing that travels over the shared queue.
type message struct {
	task Task
	stop bool
}
