// Package textdiff computes line based unified diffs between two texts.
package textdiff

import (
	"fmt"
	"strings"

	"github.com/prajaktaborse1234/synthmerge/pkg/helpers"
)

// Algorithm selects the line matching strategy
type Algorithm string

const (
	// Histogram anchors the alignment on rare matching lines, like git diff --histogram
	Histogram Algorithm = "histogram"
	// Myers is the classic minimal edit script
	Myers Algorithm = "myers"
)

// ParseAlgorithm validates an algorithm name coming from the command line
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case Histogram, "":
		return Histogram, nil
	case Myers:
		return Myers, nil
	}
	return "", fmt.Errorf("unknown diff algorithm %q (expected histogram or myers)", name)
}

// Diff renders the histogram diff of base and remote with contextWidth lines of context
func Diff(base, remote string, contextWidth int) string {
	return DiffWith(Histogram, base, remote, contextWidth)
}

// DiffWith renders the unified diff of base and remote using the given algorithm.
// Identical inputs produce an empty string.
func DiffWith(algorithm Algorithm, base, remote string, contextWidth int) string {
	if contextWidth < 0 {
		contextWidth = 0
	}
	in := newInput(base, remote)
	switch algorithm {
	case Myers:
		in.myers(0, len(in.a), 0, len(in.b))
	default:
		in.histogram(0, len(in.a), 0, len(in.b))
	}
	return in.render(contextWidth)
}

// input holds both sides interned to token ids plus the per-line edit flags
type input struct {
	before, after []string
	a, b          []int
	removed       []bool
	added         []bool
	ntokens       int
}

func newInput(base, remote string) *input {
	in := &input{
		before: helpers.SplitLines(base),
		after:  helpers.SplitLines(remote),
	}
	ids := make(map[string]int)
	intern := func(lines []string) []int {
		tokens := make([]int, len(lines))
		for i, line := range lines {
			id, ok := ids[line]
			if !ok {
				id = len(ids)
				ids[line] = id
			}
			tokens[i] = id
		}
		return tokens
	}
	in.a = intern(in.before)
	in.b = intern(in.after)
	in.ntokens = len(ids)
	in.removed = make([]bool, len(in.a))
	in.added = make([]bool, len(in.b))
	return in
}

func (in *input) removeRange(lo, hi int) {
	for i := lo; i < hi; i++ {
		in.removed[i] = true
	}
}

func (in *input) addRange(lo, hi int) {
	for j := lo; j < hi; j++ {
		in.added[j] = true
	}
}

type op struct {
	kind byte
	text string
	aPos int
	bPos int
}

// script walks the edit flags, emitting deletions before insertions inside a change
func (in *input) script() []op {
	ops := make([]op, 0, len(in.a)+len(in.b))
	i, j := 0, 0
	for i < len(in.a) || j < len(in.b) {
		switch {
		case i < len(in.a) && in.removed[i]:
			ops = append(ops, op{kind: '-', text: in.before[i], aPos: i, bPos: j})
			i++
		case j < len(in.b) && in.added[j]:
			ops = append(ops, op{kind: '+', text: in.after[j], aPos: i, bPos: j})
			j++
		default:
			ops = append(ops, op{kind: ' ', text: in.before[i], aPos: i, bPos: j})
			i++
			j++
		}
	}
	return ops
}

func (in *input) render(contextWidth int) string {
	ops := in.script()
	var sb strings.Builder
	start := 0
	for start < len(ops) {
		first := start
		for first < len(ops) && ops[first].kind == ' ' {
			first++
		}
		if first == len(ops) {
			break
		}
		end := first
		for {
			for end < len(ops) && ops[end].kind != ' ' {
				end++
			}
			next := end
			for next < len(ops) && ops[next].kind == ' ' {
				next++
			}
			if next == len(ops) || next-end > 2*contextWidth {
				break
			}
			end = next
		}
		hunkStart := max(first-contextWidth, start)
		hunkEnd := min(end+contextWidth, len(ops))
		writeHunk(&sb, ops[hunkStart:hunkEnd])
		start = hunkEnd
	}
	return sb.String()
}

func writeHunk(sb *strings.Builder, ops []op) {
	oldLen, newLen := 0, 0
	for _, o := range ops {
		if o.kind != '+' {
			oldLen++
		}
		if o.kind != '-' {
			newLen++
		}
	}
	oldStart, newStart := ops[0].aPos, ops[0].bPos
	if oldLen > 0 {
		oldStart++
	}
	if newLen > 0 {
		newStart++
	}
	fmt.Fprintf(sb, "@@ -%d,%d +%d,%d @@\n", oldStart, oldLen, newStart, newLen)
	for _, o := range ops {
		sb.WriteByte(o.kind)
		sb.WriteString(o.text)
		if !strings.HasSuffix(o.text, "\n") {
			sb.WriteString("\n\\ No newline at end of file\n")
		}
	}
}
