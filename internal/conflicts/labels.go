package conflicts

import (
	"math"
	"regexp"
	"strings"

	"github.com/prajaktaborse1234/synthmerge/internal/models"
)

// variantLabel splits "Name (variant) #2" into prefix, variant and suffix
var variantLabel = regexp.MustCompile(`^(.*) \(([^()]*)\)(.*)$`)

type labelGroup struct {
	prefix, suffix string
	labels         []string
	variants       []string
	plain          bool
}

// MergeLabels combines the labels of agreeing candidates. Labels sharing a
// name and suffix fold into "Name (X|Y)"; a group holding any label without
// a parenthesized variant keeps all of its labels listed separately.
func MergeLabels(labels []string) string {
	var groups []*labelGroup
	index := make(map[string]*labelGroup)
	seen := make(map[string]bool)
	for _, label := range labels {
		if seen[label] {
			continue
		}
		seen[label] = true

		prefix, variant, suffix, ok := label, "", "", false
		if m := variantLabel.FindStringSubmatch(label); m != nil {
			prefix, variant, suffix, ok = m[1], m[2], m[3], true
		}
		key := prefix + "\x00" + suffix
		g, found := index[key]
		if !found {
			g = &labelGroup{prefix: prefix, suffix: suffix}
			index[key] = g
			groups = append(groups, g)
		}
		g.labels = append(g.labels, label)
		if !ok {
			g.plain = true
			continue
		}
		for _, v := range strings.Split(variant, "|") {
			if !contains(g.variants, v) {
				g.variants = append(g.variants, v)
			}
		}
	}

	var parts []string
	for _, g := range groups {
		if g.plain || len(g.labels) == 1 {
			parts = append(parts, g.labels...)
			continue
		}
		parts = append(parts, g.prefix+" ("+strings.Join(g.variants, "|")+")"+g.suffix)
	}
	return strings.Join(parts, ", ")
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

type dedupKey struct {
	file string
	line int
	text string
}

// Deduplicate merges candidates resolving the same conflict to identical text.
// The merged entry keeps the first-seen position, the union of the labels, the
// longest duration, the sum of the known token counts and the lowest known logprob.
func Deduplicate(resolved []models.ResolvedConflict) []models.ResolvedConflict {
	index := make(map[dedupKey]int)
	var merged []models.ResolvedConflict
	var labels [][]string
	for _, rc := range resolved {
		key := dedupKey{file: rc.Conflict.FilePath, line: rc.Conflict.StartLine, text: rc.ResolvedVersion}
		i, ok := index[key]
		if !ok {
			index[key] = len(merged)
			rc.TotalTokens = copyTokens(rc.TotalTokens)
			rc.Logprob = copyLogprob(rc.Logprob)
			merged = append(merged, rc)
			labels = append(labels, []string{rc.Model})
			continue
		}
		m := &merged[i]
		m.Duration = math.Max(m.Duration, rc.Duration)
		if rc.TotalTokens != nil {
			sum := *rc.TotalTokens
			if m.TotalTokens != nil {
				sum += *m.TotalTokens
			}
			m.TotalTokens = &sum
		}
		if rc.Logprob != nil && (m.Logprob == nil || *rc.Logprob < *m.Logprob) {
			m.Logprob = copyLogprob(rc.Logprob)
		}
		labels[i] = append(labels[i], rc.Model)
	}
	for i := range merged {
		merged[i].Model = MergeLabels(labels[i])
	}
	return merged
}

func copyTokens(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyLogprob(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
