package buflib

import "fmt"

// span is a half-open byte range [Start, End) of the arena.
type span struct {
	Start int // inclusive
	End   int // exclusive
}

func (s span) Size() int {
	return s.End - s.Start
}

func (s span) Adjacent(other span) bool {
	return s.End == other.Start || other.End == s.Start
}

func (s span) Merge(other span) span {
	if !s.Adjacent(other) && !(s.Start < other.End && other.Start < s.End) {
		panic("cannot merge non-overlapping, non-adjacent spans")
	}
	return span{Start: min(s.Start, other.Start), End: max(s.End, other.End)}
}

func (s span) String() string {
	return fmt.Sprintf("[%d, %d)", s.Start, s.End)
}
