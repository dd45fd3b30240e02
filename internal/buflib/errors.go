package buflib

import "errors"

var (
	// ErrOutOfMemory indicates that no span large enough exists even after compaction.
	ErrOutOfMemory = errors.New("buflib: out of memory")

	// ErrInvalidSize indicates a request for zero or negative bytes.
	ErrInvalidSize = errors.New("buflib: allocation size must be positive")
)
