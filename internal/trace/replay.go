package trace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/garethgeorge/chunkalloc/internal/buflib"
	"github.com/garethgeorge/chunkalloc/internal/chunkalloc"
)

// ErrCorrupt is returned when a check reads back different bytes than were written.
var ErrCorrupt = errors.New("trace: allocation data corrupted")

// Config describes the arena and allocator a trace is replayed against.
type Config struct {
	ArenaSize      int
	ChunkSize      int
	MaxChunks      int
	CompactOnAlloc bool
	Logger         *slog.Logger
}

// Result summarizes a replay.
type Result struct {
	Ops           int
	Allocs        int
	Failures      int // allocations and resizes refused for lack of chunks or memory
	Checks        int
	SkippedChecks int // checks of allocations that failed or were discarded by a resize or free
	Len           chunkalloc.Offset
	Chunks        int
	Digest        uint64
	Header        chunkalloc.Stats
	Arena         buflib.Stats
}

type allocation struct {
	off       chunkalloc.Offset
	want      []byte
	discarded bool
}

// pattern is the content written for the i-th allocation of n bytes.
func pattern(i, n int) []byte {
	out := make([]byte, n)
	for j := range out {
		out[j] = byte(i*31 + j*7)
	}
	return out
}

// Replay runs ops against a fresh arena and header. The replay stops at the first corrupted
// check or when ctx is cancelled.
func Replay(ctx context.Context, ops []Op, cfg Config) (Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	b := buflib.New(cfg.ArenaSize, buflib.WithLogger(logger), buflib.WithCompactOnAlloc(cfg.CompactOnAlloc))
	h, err := chunkalloc.Init(b, cfg.ChunkSize, cfg.MaxChunks, chunkalloc.WithLogger(logger))
	if err != nil {
		return Result{}, fmt.Errorf("init allocator: %w", err)
	}
	defer h.Free(b)

	var res Result
	var allocs []allocation

	// discardFrom marks every allocation no longer covered by a chunk.
	discardFrom := func(end chunkalloc.Offset) {
		for i := range allocs {
			if allocs[i].off >= end {
				allocs[i].discarded = true
			}
		}
	}

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Ops++

		switch op.Kind {
		case OpAlloc, OpStore:
			data := []byte(op.Text)
			if op.Kind == OpAlloc {
				data = pattern(len(allocs), op.N)
			}
			off, err := h.Store(b, data)
			if err != nil {
				if !errors.Is(err, chunkalloc.ErrOutOfChunks) && !errors.Is(err, chunkalloc.ErrOutOfMemory) {
					return res, fmt.Errorf("line %d: %s: %w", op.Line, op, err)
				}
				logger.Debug("trace alloc refused", "line", op.Line, "size", len(data), "error", err)
				res.Failures++
				allocs = append(allocs, allocation{off: chunkalloc.InvalidOffset, discarded: true})
				continue
			}
			res.Allocs++
			allocs = append(allocs, allocation{off: off, want: data})
		case OpCheck:
			if op.N >= len(allocs) {
				return res, fmt.Errorf("line %d: check of allocation %d, only %d attempted", op.Line, op.N, len(allocs))
			}
			a := allocs[op.N]
			if a.discarded {
				res.SkippedChecks++
				continue
			}
			got, err := h.Load(b, a.off, len(a.want))
			if err != nil {
				return res, fmt.Errorf("line %d: %s: %w", op.Line, op, err)
			}
			if !bytes.Equal(got, a.want) {
				return res, fmt.Errorf("line %d: allocation %d at offset %d: %w", op.Line, op.N, a.off, ErrCorrupt)
			}
			res.Checks++
		case OpFinalize:
			h.Finalize(b)
		case OpResize:
			if err := h.Resize(b, cfg.ChunkSize, op.N); err != nil {
				if !errors.Is(err, chunkalloc.ErrOutOfMemory) {
					return res, fmt.Errorf("line %d: %s: %w", op.Line, op, err)
				}
				res.Failures++
				continue
			}
			discardFrom(h.Len(b))
		case OpCompact:
			b.Compact()
		case OpFree:
			h.Free(b)
			discardFrom(0)
		default:
			return res, fmt.Errorf("line %d: unknown op %s", op.Line, op.Kind)
		}
	}

	res.Len = h.Len(b)
	res.Digest = h.Digest(b)
	for range h.Chunks(b) {
		res.Chunks++
	}
	res.Header = h.Stats()
	res.Arena = b.Stats()
	return res, nil
}
