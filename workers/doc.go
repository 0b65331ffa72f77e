// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package workers implements a fixed-size pool of thread-affine workers.
//
// Each worker is a goroutine locked to its own OS thread. Before it takes its
// first task the worker creates a [Context] through the pool's
// [ContextFactory]; that context belongs to the worker alone until the worker
// exits, at which point the worker releases it. Tasks receive the context of
// the worker running them.
//
// Worker lifecycle:
//
//	Running   --task-->  Executing --done--> Running
//	Running   --stop-->  Draining  --release context--> Terminated
//
// # Ordering
//
// Tasks are dequeued in the order Schedule accepted them (FIFO across all
// submitters). With more than one worker, completion order is not defined.
//
// # Shutdown
//
// [Pool.Close] first discards every task still queued, then sends one stop
// message per worker and waits for all of them to exit. Pending work is
// dropped, not drained: a task either started before Close discarded the
// queue or it never runs.
//
// # Failures
//
// The pool does not retry or isolate task failures. A task that panics
// terminates the worker running it; the worker still releases its context,
// the panic is reported as a [*TaskFailure] from Close, and the pool keeps
// running with one fewer worker. [Pool.Size] keeps reporting the configured
// size. Tasks that can fail should recover and record their own errors.
package workers
