package endpoint

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func strp(s string) *string { return &s }

func float64p(v float64) *float64 { return &v }

func TestMinLogprob(t *testing.T) {
	assert.Nil(t, MinLogprob(nil))
	assert.Nil(t, MinLogprob([]TokenLogprob{{Token: strp("a")}}))

	got := MinLogprob([]TokenLogprob{
		{Token: strp("a"), Logprob: float64p(-0.5)},
		{Token: strp("b"), Logprob: float64p(-0.2)},
		{Token: strp(""), Logprob: float64p(-30)},
	})
	assert.Equal(t, -0.5, *got)

	// an empty token is only skipped at the end
	got = MinLogprob([]TokenLogprob{
		{Token: strp(""), Logprob: float64p(-3)},
		{Token: strp("b"), Logprob: float64p(-0.2)},
	})
	assert.Equal(t, -3.0, *got)
}

func TestConfidenceToLogprob(t *testing.T) {
	assert.Nil(t, ConfidenceToLogprob(0))
	assert.Nil(t, ConfidenceToLogprob(-1))
	assert.Nil(t, ConfidenceToLogprob(math.NaN()))
	assert.InDelta(t, 100, LogprobToProb(*ConfidenceToLogprob(1)), 1e-9)
	assert.InDelta(t, 100, LogprobToProb(*ConfidenceToLogprob(3)), 1e-9)
	assert.InDelta(t, 25, LogprobToProb(*ConfidenceToLogprob(0.25)), 1e-9)
}

func TestLogprobToProbProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500

	properties := gopter.NewProperties(parameters)

	properties.Property("bounded to [0, 100]", prop.ForAll(
		func(lp float64) bool {
			p := LogprobToProb(lp)
			return p >= 0 && p <= 100
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("monotonically non-decreasing", prop.ForAll(
		func(a, b float64) bool {
			if a > b {
				a, b = b, a
			}
			return LogprobToProb(a) <= LogprobToProb(b)
		},
		gen.Float64Range(-50, 5),
		gen.Float64Range(-50, 5),
	))

	properties.TestingRun(t)
}
