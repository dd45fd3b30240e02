package trace

import "math/rand"

// Generate produces n random ops. Sizes are drawn from [1, maxSize]; checks only refer to
// allocations made earlier in the trace.
func Generate(rng *rand.Rand, n, maxSize, maxChunks int) []Op {
	ops := make([]Op, 0, n)
	allocs := 0
	for len(ops) < n {
		switch r := rng.Intn(100); {
		case r < 60:
			ops = append(ops, Op{Kind: OpAlloc, N: 1 + rng.Intn(maxSize)})
			allocs++
		case r < 85 && allocs > 0:
			ops = append(ops, Op{Kind: OpCheck, N: rng.Intn(allocs)})
		case r < 90:
			ops = append(ops, Op{Kind: OpFinalize})
		case r < 95:
			ops = append(ops, Op{Kind: OpCompact})
		case r < 99:
			ops = append(ops, Op{Kind: OpResize, N: 1 + rng.Intn(maxChunks)})
		}
	}
	return ops
}
