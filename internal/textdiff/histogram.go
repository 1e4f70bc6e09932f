package textdiff

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxChainLength bounds how often a line may occur in the old side and still
// anchor an alignment. Ranges where every common line is more frequent fall
// back to Myers.
const maxChainLength = 64

type region struct {
	s1, e1 int
	s2, e2 int
	count  int
}

func (r region) len() int { return r.e1 - r.s1 }

func (in *input) histogram(lo1, hi1, lo2, hi2 int) {
	a, b := in.a, in.b
	for lo1 < hi1 && lo2 < hi2 && a[lo1] == b[lo2] {
		lo1++
		lo2++
	}
	for lo1 < hi1 && lo2 < hi2 && a[hi1-1] == b[hi2-1] {
		hi1--
		hi2--
	}
	if lo1 == hi1 {
		in.addRange(lo2, hi2)
		return
	}
	if lo2 == hi2 {
		in.removeRange(lo1, hi1)
		return
	}

	occurrences := make(map[int][]int)
	for i := lo1; i < hi1; i++ {
		occurrences[a[i]] = append(occurrences[a[i]], i)
	}

	best := region{count: maxChainLength + 1}
	found, common := false, false
	for j := lo2; j < hi2; j++ {
		positions := occurrences[b[j]]
		if len(positions) == 0 {
			continue
		}
		common = true
		if len(positions) > maxChainLength {
			continue
		}
		for _, i := range positions {
			r := region{s1: i, e1: i + 1, s2: j, e2: j + 1}
			for r.s1 > lo1 && r.s2 > lo2 && a[r.s1-1] == b[r.s2-1] {
				r.s1--
				r.s2--
			}
			for r.e1 < hi1 && r.e2 < hi2 && a[r.e1] == b[r.e2] {
				r.e1++
				r.e2++
			}
			r.count = len(positions)
			for k := r.s1; k < r.e1; k++ {
				r.count = min(r.count, len(occurrences[a[k]]))
			}
			if r.count < best.count || (r.count == best.count && r.len() > best.len()) {
				best = r
				found = true
			}
		}
	}

	if !found {
		if common {
			in.myers(lo1, hi1, lo2, hi2)
			return
		}
		in.removeRange(lo1, hi1)
		in.addRange(lo2, hi2)
		return
	}
	in.histogram(lo1, best.s1, lo2, best.s2)
	in.histogram(best.e1, hi1, best.e2, hi2)
}

// Token ids are mapped onto private use code points so diffmatchpatch can
// diff them as runes: the BMP private use area first, then planes 15 and 16.
const (
	bmpPrivateUse   = 0xE000
	bmpPrivateCount = 0xF900 - 0xE000
	suppPrivateUse  = 0xF0000
	maxRuneTokens   = bmpPrivateCount + (0x10FFFF - 0xF0000 + 1)
)

func tokenRune(id int) rune {
	if id < bmpPrivateCount {
		return rune(bmpPrivateUse + id)
	}
	return rune(suppPrivateUse + id - bmpPrivateCount)
}

func tokenRunes(tokens []int) []rune {
	runes := make([]rune, len(tokens))
	for i, id := range tokens {
		runes[i] = tokenRune(id)
	}
	return runes
}

func (in *input) myers(lo1, hi1, lo2, hi2 int) {
	if in.ntokens > maxRuneTokens {
		in.removeRange(lo1, hi1)
		in.addRange(lo2, hi2)
		return
	}
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(tokenRunes(in.a[lo1:hi1]), tokenRunes(in.b[lo2:hi2]), false)
	i, j := lo1, lo2
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			i += n
			j += n
		case diffmatchpatch.DiffDelete:
			in.removeRange(i, i+n)
			i += n
		case diffmatchpatch.DiffInsert:
			in.addRange(j, j+n)
			j += n
		}
	}
}
