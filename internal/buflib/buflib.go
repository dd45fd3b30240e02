// Package buflib is a fixed-size compacting allocator.
//
// Blocks are addressed by stable handles rather than pointers. Whenever an allocation cannot be
// satisfied from the free list the arena is compacted: every unpinned block slides toward the
// start of the arena, so the bytes behind a handle are only stable while the handle is pinned.
package buflib

import (
	"fmt"
	"log/slog"

	"github.com/google/btree"
)

// Handle names a block in a Context. The zero Handle is never issued.
type Handle int32

// poison is written over freed bytes so stale readers see garbage rather than old data.
const poison = 0xA5

type block struct {
	handle Handle
	start  int
	size   int
	pins   int
}

// Stats is a point in time summary of a Context.
type Stats struct {
	Capacity    int
	Used        int
	Free        int
	Largest     int // largest allocation that succeeds without compacting
	Blocks      int
	Pinned      int
	Compactions int
	MovedBytes  int
}

// Context owns the backing memory and every block carved out of it.
// It is not thread-safe.
type Context struct {
	mem    []byte
	blocks map[Handle]*block
	byAddr *btree.BTreeG[*block]
	free   *freeList

	nextHandle  Handle
	freeHandles []Handle

	compactions int
	movedBytes  int

	logger         *slog.Logger
	compactOnAlloc bool
}

// New returns a Context managing size bytes of memory.
func New(size int, opts ...Option) *Context {
	if size < 0 {
		panic("buflib: negative arena size")
	}
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	mem := make([]byte, size)
	for i := range mem {
		mem[i] = poison
	}

	return &Context{
		mem:    mem,
		blocks: make(map[Handle]*block),
		byAddr: btree.NewG(32, func(a, b *block) bool {
			return a.start < b.start
		}),
		free:           newFreeList(size),
		nextHandle:     1,
		logger:         options.logger,
		compactOnAlloc: options.compactOnAlloc,
	}
}

func (c *Context) newHandle() Handle {
	if n := len(c.freeHandles); n > 0 {
		h := c.freeHandles[n-1]
		c.freeHandles = c.freeHandles[:n-1]
		return h
	}
	h := c.nextHandle
	c.nextHandle++
	return h
}

func (c *Context) mustBlock(h Handle) *block {
	b, ok := c.blocks[h]
	if !ok {
		panic(fmt.Sprintf("buflib: invalid handle %d", h))
	}
	return b
}

// Alloc reserves size bytes and returns the handle that owns them.
// The returned memory is not zeroed.
func (c *Context) Alloc(size int) (Handle, error) {
	if size <= 0 {
		return 0, ErrInvalidSize
	}
	if c.compactOnAlloc {
		c.Compact()
	}

	s, ok := c.free.take(size)
	if !ok && c.free.available >= size {
		// Enough bytes exist but they are fragmented.
		c.Compact()
		s, ok = c.free.take(size)
	}
	if !ok {
		c.logger.Debug("buflib alloc failed", "size", size, "free", c.free.available)
		return 0, fmt.Errorf("%w: requested %d bytes, %d free", ErrOutOfMemory, size, c.free.available)
	}

	b := &block{handle: c.newHandle(), start: s.Start, size: size}
	c.blocks[b.handle] = b
	c.byAddr.ReplaceOrInsert(b)
	c.logger.Debug("buflib alloc", "handle", b.handle, "size", size, "start", b.start)
	return b.handle, nil
}

// Free releases the block owned by h. Freeing a pinned block panics.
func (c *Context) Free(h Handle) {
	b := c.mustBlock(h)
	if b.pins > 0 {
		panic(fmt.Sprintf("buflib: free of pinned handle %d (pins=%d)", h, b.pins))
	}
	c.scribble(b.start, b.start+b.size)
	c.free.release(span{Start: b.start, End: b.start + b.size})
	c.byAddr.Delete(b)
	delete(c.blocks, h)
	c.freeHandles = append(c.freeHandles, h)
	c.logger.Debug("buflib free", "handle", h, "size", b.size)
}

// Shrink reduces the block owned by h to newSize bytes in place. The tail is returned to the
// free list. Growing a block is not supported.
func (c *Context) Shrink(h Handle, newSize int) {
	b := c.mustBlock(h)
	if newSize <= 0 || newSize > b.size {
		panic(fmt.Sprintf("buflib: cannot shrink handle %d from %d to %d bytes", h, b.size, newSize))
	}
	if newSize == b.size {
		return
	}
	tail := span{Start: b.start + newSize, End: b.start + b.size}
	c.scribble(tail.Start, tail.End)
	c.free.release(tail)
	c.logger.Debug("buflib shrink", "handle", h, "from", b.size, "to", newSize)
	b.size = newSize
}

// Pin prevents the block owned by h from moving until the matching Unpin.
func (c *Context) Pin(h Handle) {
	c.mustBlock(h).pins++
}

// Unpin releases one pin taken by Pin.
func (c *Context) Unpin(h Handle) {
	b := c.mustBlock(h)
	if b.pins == 0 {
		panic(fmt.Sprintf("buflib: unpin of unpinned handle %d", h))
	}
	b.pins--
}

// PinCount reports the number of outstanding pins on h.
func (c *Context) PinCount(h Handle) int {
	return c.mustBlock(h).pins
}

// Size reports the current size of the block owned by h.
func (c *Context) Size(h Handle) int {
	return c.mustBlock(h).size
}

// Data returns the bytes owned by h. The slice is only stable while h is pinned: any later Alloc
// may move an unpinned block and leave the slice pointing at someone else's memory.
func (c *Context) Data(h Handle) []byte {
	b := c.mustBlock(h)
	return c.mem[b.start : b.start+b.size : b.start+b.size]
}

// Compact slides every unpinned block toward the start of the arena and returns the number of
// bytes moved. Pinned blocks stay where they are and split the free space around them.
func (c *Context) Compact() int {
	blocks := make([]*block, 0, c.byAddr.Len())
	c.byAddr.Ascend(func(b *block) bool {
		blocks = append(blocks, b)
		return true
	})

	var free []span
	cursor := 0
	moved := 0
	for _, b := range blocks {
		if b.pins > 0 {
			if b.start > cursor {
				free = append(free, span{Start: cursor, End: b.start})
			}
			cursor = b.start + b.size
			continue
		}
		if b.start != cursor {
			copy(c.mem[cursor:cursor+b.size], c.mem[b.start:b.start+b.size])
			b.start = cursor
			moved += b.size
		}
		cursor += b.size
	}
	if cursor < len(c.mem) {
		free = append(free, span{Start: cursor, End: len(c.mem)})
	}
	for _, s := range free {
		c.scribble(s.Start, s.End)
	}

	// Sliding preserves address order but the keys changed, so rebuild the index.
	c.byAddr.Clear(false)
	for _, b := range blocks {
		c.byAddr.ReplaceOrInsert(b)
	}
	c.free.reset(free)

	c.compactions++
	c.movedBytes += moved
	if moved > 0 {
		c.logger.Debug("buflib compact", "moved", moved, "blocks", len(blocks))
	}
	return moved
}

func (c *Context) scribble(start, end int) {
	region := c.mem[start:end]
	for i := range region {
		region[i] = poison
	}
}

// Stats reports usage of the arena.
func (c *Context) Stats() Stats {
	st := Stats{
		Capacity:    len(c.mem),
		Free:        c.free.available,
		Largest:     c.free.largest(),
		Blocks:      len(c.blocks),
		Compactions: c.compactions,
		MovedBytes:  c.movedBytes,
	}
	st.Used = st.Capacity - st.Free
	for _, b := range c.blocks {
		if b.pins > 0 {
			st.Pinned++
		}
	}
	return st
}
