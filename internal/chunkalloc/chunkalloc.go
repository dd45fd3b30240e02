// Package chunkalloc presents a flat virtual offset space built from many smaller blocks
// ("chunks") of a compacting allocator.
//
// Allocations are bump allocated into the current chunk. When a request does not fit, the
// current chunk is shrunk to the bytes it actually uses and allocation moves on to the next
// chunk, which is sized to at least the request. An allocation never straddles two chunks.
//
// The chunk descriptor array is itself a block of the compacting allocator, so nothing in a
// Header points at memory directly. Data is reached through Get, which pins the chunk for the
// lifetime of the returned Guard.
//
// A Header is not thread-safe.
package chunkalloc

import (
	"fmt"
	"log/slog"

	"github.com/garethgeorge/chunkalloc/internal/buflib"
)

// Offset is a position in a Header's virtual address space.
type Offset int64

// InvalidOffset is returned by Alloc when it fails.
const InvalidOffset Offset = -1

// Backend is the compacting allocator a Header carves its chunks from. *buflib.Context
// implements it.
type Backend interface {
	Alloc(size int) (buflib.Handle, error)
	Free(h buflib.Handle)
	Shrink(h buflib.Handle, newSize int)
	Pin(h buflib.Handle)
	Unpin(h buflib.Handle)
	Data(h buflib.Handle) []byte
}

var _ Backend = (*buflib.Context)(nil)

// Header owns a descriptor array and every chunk it references. The backend is not stored:
// every operation takes it explicitly, and callers must pass the same one each time.
type Header struct {
	// array is the backend block holding capacity descriptors, 0 when capacity is 0.
	array buflib.Handle

	// chunkSize is the nominal size of new chunks; a bigger request gets a chunk of its own size.
	chunkSize int

	// capacity is the number of descriptor slots.
	capacity int

	// current is the slot receiving allocations. Every chunk before it is full.
	current int

	// activeTotal and activeFree describe the chunk at current only.
	activeTotal int
	activeFree  int

	// pins counts outstanding Get calls.
	pins int

	logger *slog.Logger
}

// Init returns a Header that allocates chunks of chunkSize bytes from b, with room for
// maxChunks chunks. maxChunks may be 0, in which case Resize must be called before Alloc.
func Init(b Backend, chunkSize, maxChunks int, opts ...Option) (*Header, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	h := &Header{logger: options.logger}
	if err := h.Resize(b, chunkSize, maxChunks); err != nil {
		return nil, err
	}
	h.logger.Debug("chunkalloc init", "chunk_size", chunkSize, "max_chunks", maxChunks)
	return h, nil
}

func (h *Header) pinArray(b Backend) (descriptors, func()) {
	b.Pin(h.array)
	return descriptors(b.Data(h.array)), func() { b.Unpin(h.array) }
}

// Resize changes the number of descriptor slots to maxChunks and the size of chunks created from
// now on to chunkSize.
//
// Chunks at slots below maxChunks are kept unchanged. Chunks at or past maxChunks are freed and
// their offsets become invalid. If the current chunk is discarded, the last surviving chunk
// becomes current and is treated as full.
//
// Resize only fails when growing and the backend cannot hold the larger descriptor array, in
// which case the Header is left untouched.
func (h *Header) Resize(b Backend, chunkSize, maxChunks int) error {
	if chunkSize < 0 || maxChunks < 0 {
		return fmt.Errorf("%w: chunk size %d, max chunks %d", ErrInvalidSize, chunkSize, maxChunks)
	}

	var newArray buflib.Handle
	if maxChunks > h.capacity {
		handle, err := b.Alloc(maxChunks * descriptorSize)
		if err != nil {
			h.logger.Debug("chunkalloc resize failed", "max_chunks", maxChunks, "error", err)
			return fmt.Errorf("%w: descriptor array for %d chunks: %w", ErrOutOfMemory, maxChunks, err)
		}
		// Empty slots are recognised by their zero handle.
		clear(b.Data(handle))
		newArray = handle
	}

	if h.array != 0 {
		keep := min(maxChunks, h.current+1)
		h.logger.Debug("chunkalloc resize",
			"from", h.capacity, "to", maxChunks, "keep", keep, "current", h.current)

		old, unpinOld := h.pinArray(b)
		if newArray != 0 {
			copy(b.Data(newArray), old[:keep*descriptorSize])
		}
		for i := maxChunks; i <= h.current; i++ {
			if chunk := old.handle(i); chunk != 0 {
				h.logger.Debug("chunkalloc discard chunk", "index", i, "end", old.end(i))
				b.Free(chunk)
			}
		}
		unpinOld()

		if newArray == 0 && maxChunks > 0 {
			b.Shrink(h.array, maxChunks*descriptorSize)
			newArray = h.array
		} else {
			b.Free(h.array)
		}

		if keep-1 != h.current {
			// The active chunk is gone; whatever survives was already full.
			h.activeTotal, h.activeFree = 0, 0
		}
		h.current = max(keep-1, 0)
	}

	h.array = newArray
	h.chunkSize = chunkSize
	h.capacity = maxChunks
	return nil
}

// Free releases every chunk and the descriptor array. The Header may be reused by calling Resize.
func (h *Header) Free(b Backend) {
	h.logger.Debug("chunkalloc free", "chunks", h.capacity)
	if err := h.Resize(b, 0, 0); err != nil {
		// Shrinking never allocates.
		panic("chunkalloc: free failed: " + err.Error())
	}
}

// Finalize shrinks the current chunk to the bytes allocated from it. The next Alloc will start a
// new chunk.
func (h *Header) Finalize(b Backend) {
	if h.activeFree == 0 {
		return
	}
	d, unpin := h.pinArray(b)
	defer unpin()
	h.finalize(b, d)
}

func (h *Header) finalize(b Backend, d descriptors) {
	if h.current >= h.capacity {
		return
	}
	chunk := d.handle(h.current)
	if chunk == 0 {
		return
	}
	h.activeTotal -= h.activeFree
	h.activeFree = 0
	b.Shrink(chunk, h.activeTotal)
	h.logger.Debug("chunkalloc finalize", "index", h.current, "end", d.end(h.current), "size", h.activeTotal)
}

// Alloc reserves size bytes and returns their virtual offset. The bytes always lie within a
// single chunk. On failure it returns InvalidOffset and chunks committed before the call are
// left untouched.
func (h *Header) Alloc(b Backend, size int) (Offset, error) {
	if size <= 0 {
		return InvalidOffset, fmt.Errorf("%w: alloc of %d bytes", ErrInvalidSize, size)
	}
	if h.capacity == 0 {
		return InvalidOffset, fmt.Errorf("%w: no descriptor slots", ErrOutOfChunks)
	}

	d, unpin := h.pinArray(b)
	defer unpin()

	for idx := h.current; ; idx++ {
		if idx >= h.capacity {
			h.logger.Debug("chunkalloc out of chunks", "size", size, "chunks", h.capacity)
			return InvalidOffset, fmt.Errorf("%w: all %d chunks in use", ErrOutOfChunks, h.capacity)
		}
		h.current = idx

		if d.handle(idx) == 0 {
			chunkSize := max(size, h.chunkSize)
			chunk, err := b.Alloc(chunkSize)
			if err != nil {
				h.logger.Debug("chunkalloc chunk alloc failed", "index", idx, "size", chunkSize, "error", err)
				return InvalidOffset, fmt.Errorf("%w: chunk %d of %d bytes: %w", ErrOutOfMemory, idx, chunkSize, err)
			}
			d.setHandle(idx, chunk)
			d.setEnd(idx, d.start(idx))
			h.activeTotal, h.activeFree = chunkSize, chunkSize
			h.logger.Debug("chunkalloc new chunk", "index", idx, "start", d.start(idx), "size", chunkSize)
		}

		if size <= h.activeFree {
			off := d.end(idx)
			d.setEnd(idx, off+Offset(size))
			h.activeFree -= size
			return off, nil
		}
		if h.activeFree > 0 {
			h.finalize(b, d)
		}
	}
}
