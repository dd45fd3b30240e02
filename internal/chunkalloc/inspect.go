package chunkalloc

import (
	"iter"

	"github.com/cespare/xxhash/v2"
	"github.com/garethgeorge/chunkalloc/internal/buflib"
)

// ChunkInfo describes one materialized chunk.
type ChunkInfo struct {
	Index  int
	Handle buflib.Handle
	Start  Offset // first virtual offset
	End    Offset // one past the last allocated virtual offset
	Size   int    // physical size of the chunk, including unallocated slack
}

// Stats is a snapshot of a Header's bookkeeping.
type Stats struct {
	ChunkSize   int
	Capacity    int
	Current     int
	ActiveTotal int
	ActiveFree  int
	Pins        int
}

func (h *Header) Stats() Stats {
	return Stats{
		ChunkSize:   h.chunkSize,
		Capacity:    h.capacity,
		Current:     h.current,
		ActiveTotal: h.activeTotal,
		ActiveFree:  h.activeFree,
		Pins:        h.pins,
	}
}

// Len returns the number of virtual bytes handed out, which is also the next offset Alloc would
// return if the request fits the current chunk.
func (h *Header) Len(b Backend) Offset {
	if h.array == 0 {
		return 0
	}
	d, unpin := h.pinArray(b)
	defer unpin()
	return d.length(min(h.current, h.capacity-1))
}

// Chunks yields every materialized chunk in offset order. The descriptor array stays pinned for
// the duration of the iteration, and the loop body must not modify the Header.
func (h *Header) Chunks(b Backend) iter.Seq[ChunkInfo] {
	return func(yield func(ChunkInfo) bool) {
		if h.array == 0 {
			return
		}
		d, unpin := h.pinArray(b)
		defer unpin()
		for i := 0; i <= h.current && i < h.capacity; i++ {
			chunk := d.handle(i)
			if chunk == 0 {
				return
			}
			info := ChunkInfo{
				Index:  i,
				Handle: chunk,
				Start:  d.start(i),
				End:    d.end(i),
				Size:   len(b.Data(chunk)),
			}
			if !yield(info) {
				return
			}
		}
	}
}

// Digest returns the xxhash64 of the whole virtual space in offset order.
func (h *Header) Digest(b Backend) uint64 {
	hasher := xxhash.New()
	for info := range h.Chunks(b) {
		b.Pin(info.Handle)
		hasher.Write(b.Data(info.Handle)[:info.End-info.Start])
		b.Unpin(info.Handle)
	}
	return hasher.Sum64()
}
