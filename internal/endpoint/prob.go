package endpoint

import (
	"math"
)

// logprobBase maps a per-token logprob to the probability shown to users
const logprobBase = 1e6

// TokenLogprob is one entry of an OpenAI style logprobs.content list
type TokenLogprob struct {
	Token   *string  `json:"token"`
	Logprob *float64 `json:"logprob"`
}

// MinLogprob returns the lowest token logprob of a response, or nil when
// there is none. A trailing empty token is an end-of-stream artifact of some
// servers and is ignored.
func MinLogprob(tokens []TokenLogprob) *float64 {
	var min *float64
	for i, t := range tokens {
		if t.Logprob == nil {
			continue
		}
		if i == len(tokens)-1 && t.Token != nil && *t.Token == "" {
			continue
		}
		if min == nil || *t.Logprob < *min {
			v := *t.Logprob
			min = &v
		}
	}
	return min
}

// LogprobToProb converts a logprob to a percentage in [0, 100]
func LogprobToProb(logprob float64) float64 {
	p := math.Pow(logprobBase, logprob)
	return math.Min(math.Max(p, 0), 1) * 100
}

// ConfidenceToLogprob stores a probability in [0, 1] so that LogprobToProb
// returns it as a percentage. Zero and invalid values have no logprob.
func ConfidenceToLogprob(confidence float64) *float64 {
	if !(confidence > 0) || math.IsInf(confidence, 0) {
		return nil
	}
	lp := math.Log(math.Min(confidence, 1)) / math.Log(logprobBase)
	return &lp
}
