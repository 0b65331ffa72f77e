// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package statistics

import (
	"fmt"
	"time"
)

// Op is the kind of a ledger event.
type Op uint8

const (
	OpLoad Op = iota
	OpUnload
)

func (o Op) String() string {
	switch o {
	case OpLoad:
		return "load"
	case OpUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// LoadEvent is one immutable history record.
type LoadEvent struct {
	// Time is measured from the ledger's creation on the monotonic clock.
	Time time.Duration
	Op   Op
	// Size is the block size in bytes.
	Size uint64
	// CumulativeSize is the total resident size in bytes after this event.
	CumulativeSize uint64
	// CumulativeBlocks is the resident block count after this event.
	CumulativeBlocks int
	// LoadDuration is zero for unloads.
	LoadDuration time.Duration
}

// next derives the record that follows prev. Cumulative fields only ever
// come from the previous tail.
func (prev LoadEvent) next(at time.Duration, op Op, size uint64, took time.Duration) LoadEvent {
	e := LoadEvent{
		Time:         at,
		Op:           op,
		Size:         size,
		LoadDuration: took,
	}
	switch op {
	case OpLoad:
		e.CumulativeSize = prev.CumulativeSize + size
		e.CumulativeBlocks = prev.CumulativeBlocks + 1
	case OpUnload:
		e.CumulativeSize = prev.CumulativeSize - size
		e.CumulativeBlocks = prev.CumulativeBlocks - 1
		e.LoadDuration = 0
	}
	return e
}

func (e LoadEvent) String() string {
	return fmt.Sprintf("Time: %s Cumulative Nodes: %d Cumulative Size: %d",
		e.Time, e.CumulativeBlocks, e.CumulativeSize)
}
