// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package blockcache

import "time"

// MB is the number of bytes in one megabyte as reported by the ledger.
const MB = 1 << 20

// Block is a loaded unit of cache data.
type Block interface {
	// Size returns the block size in bytes.
	Size() uint64

	// LoadDuration returns how long it took to load the block.
	LoadDuration() time.Duration
}

// Unloader is implemented by blocks that hold resources beyond their memory,
// such as file handles or device buffers. Unload is called once the block
// has left the store.
type Unloader interface {
	Unload()
}
