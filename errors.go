// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package blockcache

type constError string

func (errStr constError) Error() string { return string(errStr) }

const (
	// ErrInvalidConfig is wrapped by every construction-time validation failure.
	ErrInvalidConfig = constError("invalid configuration")

	// ErrConsistency is wrapped when an operation would produce a state that no
	// valid sequence of loads and unloads can reach.
	ErrConsistency = constError("consistency violation")
)
