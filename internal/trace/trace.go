// Package trace reads, writes and replays allocation workloads against a chunk allocator.
//
// A trace is line oriented. Blank lines and lines starting with '#' are ignored.
//
//	alloc N     allocate N bytes and fill them with a pattern
//	store TEXT  allocate and store the rest of the line verbatim
//	check I     read back the I-th alloc/store (counting from 0) and verify it
//	finalize    shrink the active chunk to its used size
//	resize K    change the chunk capacity to K
//	compact     compact the arena
//	free        release every chunk
package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type OpKind int

const (
	OpAlloc OpKind = iota
	OpStore
	OpCheck
	OpFinalize
	OpResize
	OpCompact
	OpFree
)

var opNames = map[OpKind]string{
	OpAlloc:    "alloc",
	OpStore:    "store",
	OpCheck:    "check",
	OpFinalize: "finalize",
	OpResize:   "resize",
	OpCompact:  "compact",
	OpFree:     "free",
}

func (k OpKind) String() string {
	if name, ok := opNames[k]; ok {
		return name
	}
	return "OpKind(" + strconv.Itoa(int(k)) + ")"
}

// Op is a single trace step.
type Op struct {
	Kind OpKind
	N    int    // size for alloc, allocation index for check, chunk count for resize
	Text string // payload for store
	Line int    // 1-based line number, 0 for generated ops
}

func (o Op) String() string {
	switch o.Kind {
	case OpAlloc, OpCheck, OpResize:
		return o.Kind.String() + " " + strconv.Itoa(o.N)
	case OpStore:
		return "store " + o.Text
	default:
		return o.Kind.String()
	}
}

// Parse reads a trace.
func Parse(r io.Reader) ([]Op, error) {
	var ops []Op
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		op, err := parseOp(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		op.Line = line
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return ops, nil
}

func parseOp(text string) (Op, error) {
	verb, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "alloc", "check", "resize":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return Op{}, fmt.Errorf("%s: bad argument %q: %w", verb, rest, err)
		}
		if n < 0 || (verb == "alloc" && n == 0) {
			return Op{}, fmt.Errorf("%s: argument %d out of range", verb, n)
		}
		kind := OpAlloc
		if verb == "check" {
			kind = OpCheck
		} else if verb == "resize" {
			kind = OpResize
		}
		return Op{Kind: kind, N: n}, nil
	case "store":
		if rest == "" {
			return Op{}, fmt.Errorf("store: missing payload")
		}
		return Op{Kind: OpStore, Text: rest}, nil
	case "finalize", "compact", "free":
		if rest != "" {
			return Op{}, fmt.Errorf("%s: unexpected argument %q", verb, rest)
		}
		kind := map[string]OpKind{"finalize": OpFinalize, "compact": OpCompact, "free": OpFree}[verb]
		return Op{Kind: kind}, nil
	default:
		return Op{}, fmt.Errorf("unknown op %q", verb)
	}
}

// Write encodes ops in the format Parse reads.
func Write(w io.Writer, ops []Op) error {
	bw := bufio.NewWriter(w)
	for _, op := range ops {
		if _, err := bw.WriteString(op.String() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
