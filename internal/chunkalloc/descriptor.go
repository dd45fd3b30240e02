package chunkalloc

import (
	"encoding/binary"

	"github.com/garethgeorge/chunkalloc/internal/buflib"
)

// descriptorSize is the encoded size of one chunk descriptor:
//
//	[0:4]  chunk handle (int32, 0 when the slot has no chunk yet)
//	[4:8]  unused
//	[8:16] cumulative end offset of the chunk
const descriptorSize = 16

// descriptors views the bytes of a pinned descriptor array.
type descriptors []byte

func (d descriptors) handle(i int) buflib.Handle {
	return buflib.Handle(int32(binary.LittleEndian.Uint32(d[i*descriptorSize:])))
}

func (d descriptors) setHandle(i int, h buflib.Handle) {
	binary.LittleEndian.PutUint32(d[i*descriptorSize:], uint32(h))
}

func (d descriptors) end(i int) Offset {
	return Offset(binary.LittleEndian.Uint64(d[i*descriptorSize+8:]))
}

func (d descriptors) setEnd(i int, off Offset) {
	binary.LittleEndian.PutUint64(d[i*descriptorSize+8:], uint64(off))
}

// start is the first virtual offset of chunk i.
func (d descriptors) start(i int) Offset {
	if i == 0 {
		return 0
	}
	return d.end(i - 1)
}

// length is the end offset of the last materialized chunk at or below current.
func (d descriptors) length(current int) Offset {
	for i := current; i >= 0; i-- {
		if d.handle(i) != 0 {
			return d.end(i)
		}
	}
	return 0
}
