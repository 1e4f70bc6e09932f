package models

import (
	"sort"
)

// DefaultMarkerSize is the conflict marker width git uses without a conflict-marker-size attribute
const DefaultMarkerSize = 7

// Conflict represents one parsed diff3 conflict region of a file
type Conflict struct {
	FilePath           string `json:"file_path"`
	Local              string `json:"local"`
	Base               string `json:"base"`
	Remote             string `json:"remote"`
	HeadContext        string `json:"head_context"`
	TailContext        string `json:"tail_context"`
	StartLine          int    `json:"start_line"`
	RemoteStart        int    `json:"remote_start"`
	NrHeadContextLines int    `json:"nr_head_context_lines"`
	NrTailContextLines int    `json:"nr_tail_context_lines"`
	MarkerSize         int    `json:"marker_size"`
}

// InsertLine returns the 0-based index of the separator line in the file
// the conflict was parsed from.
func (c *Conflict) InsertLine() int {
	return c.StartLine + c.RemoteStart - 1
}

// ResolvedConflict is one candidate resolution, or several identical ones merged
type ResolvedConflict struct {
	Conflict        *Conflict `json:"conflict"`
	ResolvedVersion string    `json:"resolved_version"`
	Model           string    `json:"model"`
	Duration        float64   `json:"duration"`
	TotalTokens     *uint64   `json:"total_tokens,omitempty"`
	Logprob         *float64  `json:"logprob,omitempty"`
}

// ResolveErrors counts discarded candidates per model label
type ResolveErrors map[string]int

// Add increments the error count of a label
func (e ResolveErrors) Add(label string) {
	e[label]++
}

// Merge adds every count of other into e
func (e ResolveErrors) Merge(other ResolveErrors) {
	for label, n := range other {
		e[label] += n
	}
}

// Total returns the number of errors across all labels
func (e ResolveErrors) Total() int {
	total := 0
	for _, n := range e {
		total += n
	}
	return total
}

// Labels returns the tallied labels in sorted order
func (e ResolveErrors) Labels() []string {
	labels := make([]string, 0, len(e))
	for label := range e {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// CandidatesFile represents the dry run output file
type CandidatesFile struct {
	Commit     string             `json:"commit,omitempty"`
	Candidates []ResolvedConflict `json:"candidates"`
	Errors     ResolveErrors      `json:"errors,omitempty"`
}
