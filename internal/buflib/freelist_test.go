package buflib

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectSpans(f *freeList) []span {
	return slices.Collect(f.iter())
}

func TestFreeList_New(t *testing.T) {
	f := newFreeList(1000)
	assert.Equal(t, 1000, f.available)
	assert.Equal(t, []span{{Start: 0, End: 1000}}, collectSpans(f))

	empty := newFreeList(0)
	assert.Equal(t, 0, empty.available)
	assert.Empty(t, collectSpans(empty))
}

func TestFreeList_TakeIsBestFit(t *testing.T) {
	f := newFreeList(0)
	f.reset([]span{{Start: 0, End: 100}, {Start: 200, End: 250}, {Start: 400, End: 1000}})

	s, ok := f.take(40)
	require.True(t, ok)
	assert.Equal(t, span{Start: 200, End: 240}, s)

	s, ok = f.take(100)
	require.True(t, ok)
	assert.Equal(t, span{Start: 0, End: 100}, s)

	_, ok = f.take(601)
	assert.False(t, ok)
	assert.Equal(t, 610, f.available)
	assert.Equal(t, 600, f.largest())
}

func TestFreeList_ReleaseMerges(t *testing.T) {
	f := newFreeList(1000)
	a, _ := f.take(100)
	b, _ := f.take(100)
	c, _ := f.take(100)
	// free: [300, 1000)

	f.release(a)
	assert.Equal(t, []span{{Start: 0, End: 100}, {Start: 300, End: 1000}}, collectSpans(f))

	// three way merge
	f.release(b)
	assert.Equal(t, []span{{Start: 0, End: 200}, {Start: 300, End: 1000}}, collectSpans(f))
	f.release(c)
	assert.Equal(t, []span{{Start: 0, End: 1000}}, collectSpans(f))
	assert.Equal(t, 1000, f.available)
}

func TestFreeList_DoubleReleasePanics(t *testing.T) {
	f := newFreeList(1000)
	a, _ := f.take(100)
	f.release(a)
	assert.Panics(t, func() { f.release(a) })
}

func TestSpan_Merge(t *testing.T) {
	assert.Equal(t, span{Start: 0, End: 20}, span{Start: 0, End: 10}.Merge(span{Start: 10, End: 20}))
	assert.Equal(t, span{Start: 0, End: 20}, span{Start: 10, End: 20}.Merge(span{Start: 0, End: 10}))
	assert.Panics(t, func() { span{Start: 0, End: 10}.Merge(span{Start: 11, End: 20}) })
	assert.Equal(t, "[3, 7)", span{Start: 3, End: 7}.String())
}
