// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package queue provides an unbounded multi-producer, multi-consumer FIFO
// with a blocking pop.
package queue

import (
	"sync"

	"github.com/gammazero/deque"
)

// Queue is safe for concurrent use. Items are popped in the order they were
// pushed; the queue lock is the single serialization point across producers.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    deque.Deque[T]
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends v to the tail. It never blocks on capacity.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items.PushBack(v)
	q.mu.Unlock()
	q.notEmpty.Signal()
}

// Pop removes and returns the head, waiting while the queue is empty.
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 {
		q.notEmpty.Wait()
	}
	return q.items.PopFront()
}

// Clear drops every queued item and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.items.Len()
	q.items.Clear()
	return n
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
