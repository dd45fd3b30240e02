package chunkalloc

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/garethgeorge/chunkalloc/internal/buflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_RoundTrip(t *testing.T) {
	b, h := newHeader(t, 4096, 100, 4)

	off, err := h.Alloc(b, 5)
	require.NoError(t, err)
	g := h.Get(b, off)
	assert.Len(t, g.Bytes(), 5)
	assert.Equal(t, off, g.Offset())
	copy(g.Bytes(), "hello")
	g.Release()

	g = h.Get(b, off)
	assert.Equal(t, []byte("hello"), g.Bytes())
	g.Release()
	assert.Equal(t, 0, h.Pins())
}

func TestGet_MidAllocationOffset(t *testing.T) {
	b, h := newHeader(t, 4096, 100, 4)
	_, err := h.Store(b, []byte("abc"))
	require.NoError(t, err)
	off, err := h.Store(b, []byte("defgh"))
	require.NoError(t, err)

	// bytes run to the end of the chunk's allocated data
	g := h.Get(b, off+2)
	assert.Equal(t, []byte("fgh"), g.Bytes())
	assert.Equal(t, 3, cap(g.Bytes()))
	g.Release()

	g = h.Get(b, 1)
	assert.Equal(t, []byte("bcdefgh"), g.Bytes())
	g.Release()
}

func TestGet_NestedPins(t *testing.T) {
	b, h := newHeader(t, 4096, 100, 4)
	off, err := h.Store(b, []byte("nested"))
	require.NoError(t, err)
	chunk := chunkList(h, b)[0].Handle

	g1 := h.Get(b, off)
	g2 := h.Get(b, off+1)
	assert.Equal(t, 2, h.Pins())
	assert.Equal(t, 2, b.PinCount(chunk))

	g1.Release()
	assert.Equal(t, 1, b.PinCount(chunk))
	g2.Release()
	assert.Equal(t, 0, b.PinCount(chunk))
	assert.Equal(t, 0, h.Pins())
}

func TestGet_Misuse(t *testing.T) {
	b, h := newHeader(t, 4096, 100, 4)
	off, err := h.Store(b, []byte("x"))
	require.NoError(t, err)

	g := h.Get(b, off)
	g.Release()
	assert.Panics(t, func() { g.Release() }, "double release")
	assert.Panics(t, func() { g.Bytes() }, "use after release")
	assert.Panics(t, func() { h.Put(b, off) }, "put without get")

	assert.PanicsWithError(t, (&OffsetError{Offset: 1}).Error(), func() { h.Get(b, 1) })
	assert.PanicsWithError(t, (&OffsetError{Offset: -3}).Error(), func() { h.Get(b, -3) })

	empty, err := Init(b, 100, 0)
	require.NoError(t, err)
	assert.Panics(t, func() { empty.Get(b, 0) })
}

func TestGet_PinnedChunkDoesNotMove(t *testing.T) {
	b, h := newHeader(t, 1<<14, 64, 2, buflib.WithCompactOnAlloc(true))
	off, err := h.Store(b, []byte("pinned"))
	require.NoError(t, err)

	g := h.Get(b, off)
	addr := &g.Bytes()[0]

	require.NoError(t, h.Resize(b, 64, 16))
	for i := 0; i < 10; i++ {
		_, err := h.Store(b, bytes.Repeat([]byte{byte(i)}, 64))
		require.NoError(t, err)
	}
	// finalizing the pinned chunk left a hole behind it; this compaction fills it
	require.NoError(t, h.Resize(b, 64, 32))
	assert.Positive(t, b.Stats().MovedBytes)

	assert.Equal(t, addr, &g.Bytes()[0])
	assert.Equal(t, []byte("pinned"), g.Bytes())
	g.Release()
}

func TestLoad(t *testing.T) {
	b, h := newHeader(t, 4096, 16, 4)
	off, err := h.Store(b, []byte("0123456789"))
	require.NoError(t, err)

	got, err := h.Load(b, off+3, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("3456"), got)

	_, err = h.Load(b, off, 11)
	assert.Error(t, err)
	_, err = h.Load(b, off, -1)
	assert.Error(t, err)

	_, err = h.Load(b, 100, 1)
	assert.ErrorIs(t, err, ErrBadOffset)
	var offErr *OffsetError
	require.True(t, errors.As(err, &offErr))
	assert.Equal(t, Offset(100), offErr.Offset)
	assert.Equal(t, 0, h.Pins())
}

func TestStore_Relocation(t *testing.T) {
	b, h := newHeader(t, 1<<16, 64, 2, buflib.WithCompactOnAlloc(true))
	rng := rand.New(rand.NewSource(1))

	var offs []Offset
	var want [][]byte
	for i := 0; i < 300; i++ {
		data := make([]byte, 1+rng.Intn(100))
		rng.Read(data)
		off, err := h.Store(b, data)
		if errors.Is(err, ErrOutOfChunks) {
			require.NoError(t, h.Resize(b, 64, h.Stats().Capacity*2))
			off, err = h.Store(b, data)
		}
		require.NoError(t, err)
		offs = append(offs, off)
		want = append(want, data)
	}
	assert.Positive(t, b.Stats().MovedBytes, "chunks should have been relocated")

	for i, off := range offs {
		got, err := h.Load(b, off, len(want[i]))
		require.NoError(t, err)
		require.Equal(t, want[i], got, "allocation %d at offset %d", i, off)
	}
	assert.Equal(t, 0, h.Pins())
	assert.Equal(t, 0, b.Stats().Pinned)
}

func checkChunks(t *testing.T, h *Header, b Backend) {
	t.Helper()
	prevEnd := Offset(0)
	for info := range h.Chunks(b) {
		require.Equal(t, prevEnd, info.Start, "chunk %d must start where chunk %d ended", info.Index, info.Index-1)
		require.Greater(t, info.End, info.Start, "chunk %d has no data", info.Index)
		require.LessOrEqual(t, int(info.End-info.Start), info.Size)
		prevEnd = info.End
	}
	require.Equal(t, prevEnd, h.Len(b))
}

// FuzzHeader checks that offsets are dense and increasing, that no allocation straddles two chunks
// and that every allocation reads back what was written, across resizes and compaction.
func FuzzHeader(f *testing.F) {
	f.Add(int64(1), 100, 4)
	f.Add(int64(2), 16, 32)
	f.Add(int64(3), 0, 8)
	f.Add(int64(4), 1000, 1)

	f.Fuzz(func(t *testing.T, seed int64, chunkSize int, maxChunks int) {
		if chunkSize < 0 || chunkSize > 4096 || maxChunks < 0 || maxChunks > 64 {
			t.Skip()
		}
		rng := rand.New(rand.NewSource(seed))
		b := buflib.New(1<<18, buflib.WithCompactOnAlloc(rng.Intn(2) == 0))
		h, err := Init(b, chunkSize, maxChunks)
		require.NoError(t, err)

		type allocation struct {
			off  Offset
			data []byte
		}
		var live []allocation
		next := Offset(0)

		for i := 0; i < 200; i++ {
			switch op := rng.Intn(10); {
			case op < 7:
				data := make([]byte, 1+rng.Intn(2*chunkSize+8))
				rng.Read(data)
				off, err := h.Store(b, data)
				if err != nil {
					require.True(t, errors.Is(err, ErrOutOfChunks) || errors.Is(err, ErrOutOfMemory), "unexpected error %v", err)
					require.Equal(t, InvalidOffset, off)
					continue
				}
				require.Equal(t, next, off, "offsets must be dense")
				next += Offset(len(data))

				first, err := h.Lookup(b, off)
				require.NoError(t, err)
				last, err := h.Lookup(b, off+Offset(len(data))-1)
				require.NoError(t, err)
				require.Equal(t, first, last, "allocation straddles chunks")
				live = append(live, allocation{off: off, data: data})
			case op == 7:
				h.Finalize(b)
				require.Equal(t, 0, h.Stats().ActiveFree)
			case op == 8:
				newCap := rng.Intn(maxChunks + 4)
				if err := h.Resize(b, chunkSize, newCap); err != nil {
					require.ErrorIs(t, err, ErrOutOfMemory)
					continue
				}
				next = h.Len(b)
				kept := live[:0]
				for _, a := range live {
					if a.off < next {
						kept = append(kept, a)
						continue
					}
					_, err := h.Lookup(b, a.off)
					require.ErrorIs(t, err, ErrBadOffset)
				}
				live = kept
			default:
				b.Compact()
			}

			checkChunks(t, h, b)
			require.Equal(t, 0, h.Pins())
		}

		for _, a := range live {
			got, err := h.Load(b, a.off, len(a.data))
			require.NoError(t, err)
			require.Equal(t, a.data, got)
		}

		h.Free(b)
		require.Equal(t, 0, b.Stats().Blocks)
	})
}
