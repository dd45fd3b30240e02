package chunkalloc

import (
	"fmt"

	"github.com/garethgeorge/chunkalloc/internal/buflib"
)

// resolve scans backward from the current chunk, since recent allocations are the likeliest
// to be accessed.
func (h *Header) resolve(d descriptors, off Offset) (int, bool) {
	if off < 0 {
		return 0, false
	}
	for i := min(h.current, h.capacity-1); i >= 0; i-- {
		if off < d.end(i) && (i == 0 || off >= d.end(i-1)) {
			return i, true
		}
	}
	return 0, false
}

// Lookup returns the index of the chunk holding off, or an *OffsetError.
func (h *Header) Lookup(b Backend, off Offset) (int, error) {
	if h.array == 0 {
		return 0, &OffsetError{Offset: off}
	}
	d, unpin := h.pinArray(b)
	defer unpin()
	idx, ok := h.resolve(d, off)
	if !ok {
		return 0, &OffsetError{Offset: off}
	}
	return idx, nil
}

type location struct {
	chunk buflib.Handle
	start Offset
	end   Offset
}

// mustLocate finds the chunk holding off. An offset outside every chunk is a caller bug that
// would otherwise hand out someone else's memory, so it panics.
func (h *Header) mustLocate(b Backend, off Offset) location {
	if h.array == 0 {
		panic(&OffsetError{Offset: off})
	}
	d, unpin := h.pinArray(b)
	defer unpin()
	idx, ok := h.resolve(d, off)
	if !ok {
		panic(&OffsetError{Offset: off})
	}
	return location{chunk: d.handle(idx), start: d.start(idx), end: d.end(idx)}
}

// Guard is a pinned view of the chunk holding an offset. The chunk cannot move until Release.
type Guard struct {
	h        *Header
	b        Backend
	off      Offset
	data     []byte
	released bool
}

// Bytes returns the chunk data from the guarded offset to the end of the chunk's allocated
// bytes. The slice must not be used after Release.
func (g *Guard) Bytes() []byte {
	if g.released {
		panic(fmt.Sprintf("chunkalloc: use of released guard for offset %d", g.off))
	}
	return g.data
}

// Offset reports the virtual offset the guard was taken for.
func (g *Guard) Offset() Offset {
	return g.off
}

// Release unpins the chunk. Releasing twice panics.
func (g *Guard) Release() {
	if g.released {
		panic(fmt.Sprintf("chunkalloc: double release of guard for offset %d", g.off))
	}
	g.released = true
	g.data = nil
	g.h.Put(g.b, g.off)
}

// Get pins the chunk holding off and returns a Guard over its bytes. Gets may nest; each must be
// paired with one Release (or Put). Get panics if off does not belong to any chunk.
func (h *Header) Get(b Backend, off Offset) *Guard {
	loc := h.mustLocate(b, off)
	b.Pin(loc.chunk)
	h.pins++
	used := loc.end - loc.start
	data := b.Data(loc.chunk)[off-loc.start : used : used]
	return &Guard{h: h, b: b, off: off, data: data}
}

// Put releases one pin taken by Get for off. Prefer Guard.Release.
func (h *Header) Put(b Backend, off Offset) {
	loc := h.mustLocate(b, off)
	if h.pins == 0 {
		panic(fmt.Sprintf("chunkalloc: put of offset %d without a matching get", off))
	}
	b.Unpin(loc.chunk)
	h.pins--
}

// Pins reports the number of outstanding Gets.
func (h *Header) Pins() int {
	return h.pins
}

// Store allocates len(data) bytes, copies data into them and returns their offset.
func (h *Header) Store(b Backend, data []byte) (Offset, error) {
	off, err := h.Alloc(b, len(data))
	if err != nil {
		return InvalidOffset, err
	}
	g := h.Get(b, off)
	copy(g.Bytes(), data)
	g.Release()
	return off, nil
}

// Load copies n bytes starting at off. The bytes must lie within one chunk, which is always the
// case for a range handed out by a single Alloc.
func (h *Header) Load(b Backend, off Offset, n int) ([]byte, error) {
	if _, err := h.Lookup(b, off); err != nil {
		return nil, err
	}
	g := h.Get(b, off)
	defer g.Release()
	src := g.Bytes()
	if n < 0 || n > len(src) {
		return nil, fmt.Errorf("load %d bytes at offset %d: only %d bytes left in chunk", n, off, len(src))
	}
	out := make([]byte, n)
	copy(out, src)
	return out, nil
}
