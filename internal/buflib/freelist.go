package buflib

import (
	"github.com/google/btree"
)

type spanBySize struct {
	size  int
	start int
}

// freeList tracks the unallocated spans of the arena.
// It is not thread-safe.
type freeList struct {
	available int

	// byStart orders free spans by start address.
	byStart *btree.BTreeG[span]
	// bySize orders free spans by size, then start address.
	bySize *btree.BTreeG[spanBySize]
}

func newFreeList(capacity int) *freeList {
	f := &freeList{
		byStart: btree.NewG[span](32, func(a, b span) bool { return a.Start < b.Start }),
		bySize: btree.NewG[spanBySize](32, func(a, b spanBySize) bool {
			if a.size != b.size {
				return a.size < b.size
			}
			return a.start < b.start
		}),
	}
	f.release(span{Start: 0, End: capacity})
	return f
}

func (f *freeList) add(s span) {
	if s.Size() == 0 {
		return
	}
	f.byStart.ReplaceOrInsert(s)
	f.bySize.ReplaceOrInsert(spanBySize{size: s.Size(), start: s.Start})
}

func (f *freeList) remove(s span) {
	f.byStart.Delete(s)
	f.bySize.Delete(spanBySize{size: s.Size(), start: s.Start})
}

// largest reports the size of the largest free span.
func (f *freeList) largest() int {
	m, ok := f.bySize.Max()
	if !ok {
		return 0
	}
	return m.size
}

// take carves size bytes out of the smallest free span that fits.
func (f *freeList) take(size int) (span, bool) {
	var found spanBySize
	var ok bool
	f.bySize.AscendGreaterOrEqual(spanBySize{size: size}, func(item spanBySize) bool {
		found = item
		ok = true
		return false
	})
	if !ok {
		return span{}, false
	}

	from := span{Start: found.start, End: found.start + found.size}
	f.remove(from)
	f.add(span{Start: from.Start + size, End: from.End})
	f.available -= size
	return span{Start: from.Start, End: from.Start + size}, true
}

// release returns s to the free list, merging with its neighbours.
func (f *freeList) release(s span) {
	if s.Size() == 0 {
		return
	}
	merged := s

	var before span
	var foundBefore bool
	f.byStart.DescendLessOrEqual(span{Start: s.Start}, func(item span) bool {
		if item.End == s.Start {
			before = item
			foundBefore = true
		} else if item.End > s.Start {
			panic("buflib: releasing span " + s.String() + " overlapping free span " + item.String())
		}
		return false
	})
	if foundBefore {
		f.remove(before)
		merged = merged.Merge(before)
	}

	if after, ok := f.byStart.Get(span{Start: s.End}); ok {
		f.remove(after)
		merged = merged.Merge(after)
	}

	f.add(merged)
	f.available += s.Size()
}

// reset replaces the free list with the given spans. Used after compaction.
func (f *freeList) reset(spans []span) {
	f.byStart.Clear(true)
	f.bySize.Clear(true)
	f.available = 0
	for _, s := range spans {
		f.add(s)
		f.available += s.Size()
	}
}

func (f *freeList) iter() func(yield func(s span) bool) {
	return func(yield func(s span) bool) {
		f.byStart.Ascend(func(item span) bool {
			return yield(item)
		})
	}
}
