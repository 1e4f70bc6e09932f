package conflicts

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prajaktaborse1234/synthmerge/internal/models"
)

func TestMergeLabels(t *testing.T) {
	cases := []struct {
		labels []string
		want   string
	}{
		{[]string{"X (fast)", "X (slow)"}, "X (fast|slow)"},
		{[]string{"X (fast)", "X (slow)", "X (fast)"}, "X (fast|slow)"},
		{[]string{"X", "X (slow)"}, "X, X (slow)"},
		{[]string{"X (fast)", "Y (fast)"}, "X (fast), Y (fast)"},
		{[]string{"X (a) #2", "X (b) #2", "X (a)"}, "X (a|b) #2, X (a)"},
		{[]string{"X (a|b)", "X (c)"}, "X (a|b|c)"},
		{[]string{"Patchpal", "Patchpal #2"}, "Patchpal, Patchpal #2"},
		{[]string{"solo"}, "solo"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MergeLabels(tc.labels), "labels %v", tc.labels)
	}
}

func uint64p(v uint64) *uint64 { return &v }

func float64p(v float64) *float64 { return &v }

func TestDeduplicate(t *testing.T) {
	c1 := &models.Conflict{FilePath: "a.go", StartLine: 10}
	c2 := &models.Conflict{FilePath: "a.go", StartLine: 40}
	resolved := []models.ResolvedConflict{
		{Conflict: c1, ResolvedVersion: "x\n", Model: "X (fast)", Duration: 1.5, TotalTokens: uint64p(100), Logprob: float64p(-0.2)},
		{Conflict: c2, ResolvedVersion: "x\n", Model: "X (fast)", Duration: 1},
		{Conflict: c1, ResolvedVersion: "y\n", Model: "Y", Duration: 2},
		{Conflict: c1, ResolvedVersion: "x\n", Model: "X (slow)", Duration: 3, TotalTokens: uint64p(50), Logprob: float64p(-0.5)},
		{Conflict: c1, ResolvedVersion: "x\n", Model: "Z", Duration: 0.5},
	}

	merged := Deduplicate(resolved)
	require.Len(t, merged, 3)

	assert.Equal(t, "X (fast|slow), Z", merged[0].Model)
	assert.Equal(t, 3.0, merged[0].Duration)
	assert.Equal(t, uint64(150), *merged[0].TotalTokens)
	assert.Equal(t, -0.5, *merged[0].Logprob)
	assert.Same(t, c2, merged[1].Conflict)
	assert.Equal(t, "Y", merged[2].Model)
	assert.Nil(t, merged[2].TotalTokens)

	// the input is left untouched
	assert.Equal(t, uint64(100), *resolved[0].TotalTokens)
}

func TestDeduplicateIdempotent(t *testing.T) {
	conflicts := []*models.Conflict{
		{FilePath: "a", StartLine: 1},
		{FilePath: "a", StartLine: 9},
		{FilePath: "b", StartLine: 1},
	}
	labels := []string{"X", "X (fast)", "X (slow)", "Y (t0)", "Y (t1) #2", "Z $2"}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("merging twice equals merging once", prop.ForAll(
		func(picks []int) bool {
			var resolved []models.ResolvedConflict
			for i, p := range picks {
				tokens := uint64(p)
				resolved = append(resolved, models.ResolvedConflict{
					Conflict:        conflicts[p%len(conflicts)],
					ResolvedVersion: fmt.Sprintf("v%d\n", p%2),
					Model:           labels[(p+i)%len(labels)],
					Duration:        float64(p),
					TotalTokens:     &tokens,
				})
			}
			once := Deduplicate(resolved)
			twice := Deduplicate(once)
			return reflect.DeepEqual(once, twice)
		},
		gen.SliceOf(gen.IntRange(0, 11)),
	))

	properties.TestingRun(t)
}
