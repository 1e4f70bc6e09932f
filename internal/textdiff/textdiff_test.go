package textdiff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajaktaborse1234/synthmerge/pkg/helpers"
)

// applyUnified replays a rendered diff on top of base
func applyUnified(base, diff string) (string, error) {
	old := helpers.SplitLines(base)
	var out []string
	pos := 0
	var last byte
	for _, line := range helpers.SplitLines(diff) {
		if strings.HasPrefix(line, "@@") {
			var oldStart, oldLen, newStart, newLen int
			if _, err := fmt.Sscanf(line, "@@ -%d,%d +%d,%d @@", &oldStart, &oldLen, &newStart, &newLen); err != nil {
				return "", err
			}
			start := oldStart - 1
			if oldLen == 0 {
				start = oldStart
			}
			if start < pos || start > len(old) {
				return "", fmt.Errorf("hunk out of order: %q", line)
			}
			out = append(out, old[pos:start]...)
			pos = start
			continue
		}
		if line == "\\ No newline at end of file\n" {
			if last == '+' {
				out[len(out)-1] = strings.TrimSuffix(out[len(out)-1], "\n")
			}
			continue
		}
		last = line[0]
		body := line[1:]
		switch line[0] {
		case ' ', '-':
			if pos >= len(old) || strings.TrimSuffix(old[pos], "\n") != strings.TrimSuffix(body, "\n") {
				return "", fmt.Errorf("context mismatch at old line %d", pos+1)
			}
			if line[0] == ' ' {
				out = append(out, old[pos])
			}
			pos++
		case '+':
			out = append(out, body)
		default:
			return "", fmt.Errorf("unexpected diff line %q", line)
		}
	}
	out = append(out, old[pos:]...)
	return strings.Join(out, ""), nil
}

func linesOf(ids []int, terminated bool) string {
	var sb strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&sb, "line %d\n", id)
	}
	text := sb.String()
	if !terminated {
		text = strings.TrimSuffix(text, "\n")
	}
	return text
}

func TestDiffRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	for _, algorithm := range []Algorithm{Histogram, Myers} {
		algorithm := algorithm
		properties.Property(fmt.Sprintf("%s diff applied to base yields remote", algorithm), prop.ForAll(
			func(a, b []int, width int, terminated bool) bool {
				base := linesOf(a, true)
				remote := linesOf(b, terminated)
				patched, err := applyUnified(base, DiffWith(algorithm, base, remote, width))
				return err == nil && patched == remote
			},
			gen.SliceOf(gen.IntRange(0, 6)),
			gen.SliceOf(gen.IntRange(0, 6)),
			gen.IntRange(0, 4),
			gen.Bool(),
		))
	}

	properties.Property("identical inputs have no hunks", prop.ForAll(
		func(a []int, width int) bool {
			text := linesOf(a, true)
			return Diff(text, text, width) == ""
		},
		gen.SliceOf(gen.IntRange(0, 20)),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

func TestDiffHunkFormat(t *testing.T) {
	base := "a\nb\nc\nd\ne\nf\ng\n"
	remote := "a\nb\nc\nD\ne\nf\ng\n"

	assert.Equal(t, "@@ -2,5 +2,5 @@\n b\n c\n-d\n+D\n e\n f\n", Diff(base, remote, 2))
	assert.Equal(t, "@@ -4,1 +4,1 @@\n-d\n+D\n", Diff(base, remote, 0))
}

func TestDiffEmptyInputs(t *testing.T) {
	assert.Equal(t, "", Diff("", "", 3))
	assert.Equal(t, "@@ -0,0 +1,2 @@\n+x\n+y\n", Diff("", "x\ny\n", 3))
	assert.Equal(t, "@@ -1,2 +0,0 @@\n-x\n-y\n", Diff("x\ny\n", "", 3))
}

func TestDiffSplitsDistantChanges(t *testing.T) {
	var base, remote strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&base, "%d\n", i)
		if i == 2 || i == 17 {
			fmt.Fprintf(&remote, "changed %d\n", i)
		} else {
			fmt.Fprintf(&remote, "%d\n", i)
		}
	}
	diff := Diff(base.String(), remote.String(), 3)
	assert.Equal(t, 2, strings.Count(diff, "@@ -"))

	patched, err := applyUnified(base.String(), diff)
	require.NoError(t, err)
	assert.Equal(t, remote.String(), patched)
}

func TestHistogramAnchorsOnUniqueLines(t *testing.T) {
	// Braces and blank lines repeat; the insertion must still land between
	// the two untouched functions.
	base := "func a() {\n}\n\nfunc b() {\n}\n"
	remote := "func a() {\n}\n\nfunc c() {\n}\n\nfunc b() {\n}\n"

	diff := Diff(base, remote, 0)
	assert.Equal(t, "@@ -3,0 +4,3 @@\n+func c() {\n+}\n+\n", diff)
}

func TestHistogramFallsBackOnFrequentLines(t *testing.T) {
	// Every common line occurs more often than maxChainLength, so the range
	// is handed to Myers.
	var base, remote strings.Builder
	for i := 0; i < maxChainLength+10; i++ {
		base.WriteString("x\n")
		if i%10 == 0 {
			remote.WriteString("y\n")
		}
		remote.WriteString("x\n")
	}
	diff := Diff(base.String(), remote.String(), 1)
	patched, err := applyUnified(base.String(), diff)
	require.NoError(t, err)
	assert.Equal(t, remote.String(), patched)
	assert.NotContains(t, diff, "-x")
}

func TestParseAlgorithm(t *testing.T) {
	algorithm, err := ParseAlgorithm("Myers")
	require.NoError(t, err)
	assert.Equal(t, Myers, algorithm)

	algorithm, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, Histogram, algorithm)

	_, err = ParseAlgorithm("patience")
	assert.Error(t, err)
}
