package chunkalloc

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfChunks indicates that every descriptor slot already holds a chunk.
	ErrOutOfChunks = errors.New("chunkalloc: out of chunks")

	// ErrOutOfMemory indicates that the backend could not supply a chunk or descriptor array.
	ErrOutOfMemory = errors.New("chunkalloc: out of memory")

	// ErrInvalidSize indicates a non-positive allocation size or a negative capacity.
	ErrInvalidSize = errors.New("chunkalloc: invalid size")

	// ErrBadOffset matches every *OffsetError.
	ErrBadOffset = errors.New("chunkalloc: offset does not belong to any chunk")
)

// OffsetError reports a virtual offset that no live chunk covers. Seeing one means the caller
// kept an offset past a Resize that discarded its chunk, or never got it from Alloc at all.
type OffsetError struct {
	Offset Offset
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("chunkalloc: offset %d does not belong to any chunk", e.Offset)
}

func (e *OffsetError) Is(target error) bool {
	return target == ErrBadOffset
}
