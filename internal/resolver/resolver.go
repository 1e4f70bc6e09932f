package resolver

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prajaktaborse1234/synthmerge/internal/endpoint"
	"github.com/prajaktaborse1234/synthmerge/internal/models"
	"github.com/prajaktaborse1234/synthmerge/internal/textdiff"
	"github.com/prajaktaborse1234/synthmerge/internal/ui"
)

// Querier is one endpoint the resolver fans out to
type Querier interface {
	Name() string
	Labels() []string
	Query(ctx context.Context, req *endpoint.Request) [][]endpoint.Result
}

// Options control how the prompt of each conflict is built
type Options struct {
	Algorithm    textdiff.Algorithm
	PatchContext int
	// GitDiff is the diff of the commit being merged, empty when unknown
	GitDiff string
}

// Resolver queries every endpoint for every conflict and keeps the valid answers
type Resolver struct {
	endpoints []Querier
	opts      Options
}

// New creates a resolver over endpoints, kept in configuration order
func New(endpoints []Querier, opts Options) *Resolver {
	if opts.Algorithm == "" {
		opts.Algorithm = textdiff.Histogram
	}
	return &Resolver{endpoints: endpoints, opts: opts}
}

// Report is the outcome of a run over all conflicts
type Report struct {
	Found      int
	Resolved   []models.ResolvedConflict
	Unresolved []*models.Conflict
	Errors     models.ResolveErrors
}

// ResolveAll resolves the conflicts one after the other, in document order
func (r *Resolver) ResolveAll(ctx context.Context, conflicts []*models.Conflict) *Report {
	report := &Report{Found: len(conflicts), Errors: models.ResolveErrors{}}
	ui.SetTotalConflicts(len(conflicts))

	var labels []string
	for _, q := range r.endpoints {
		labels = append(labels, q.Labels()...)
	}

	for i, c := range conflicts {
		if ctx.Err() != nil {
			report.Unresolved = append(report.Unresolved, conflicts[i:]...)
			break
		}
		ui.LogInfo("Resolving conflict %d of %d in %s:%d", i+1, len(conflicts), c.FilePath, c.StartLine)
		ui.UpdateStatus(fmt.Sprintf("Resolving %s:%d", c.FilePath, c.StartLine))
		ui.UpdateConflictDetails(c.FilePath, c.StartLine, labels)

		resolved, errs := r.Resolve(ctx, c)
		report.Resolved = append(report.Resolved, resolved...)
		report.Errors.Merge(errs)
		if len(resolved) == 0 {
			ui.LogWarning("No valid candidate for %s:%d", c.FilePath, c.StartLine)
			report.Unresolved = append(report.Unresolved, c)
		}
		ui.ConflictProcessed()
	}
	ui.UpdateStatus("Ready")
	return report
}

type completion struct {
	index   int
	results [][]endpoint.Result
	elapsed time.Duration
}

// Resolve queries all endpoints concurrently for one conflict. Candidates are
// returned in configuration order along with the per-label error tally.
func (r *Resolver) Resolve(ctx context.Context, c *models.Conflict) ([]models.ResolvedConflict, models.ResolveErrors) {
	req := BuildRequest(c, r.opts.GitDiff, r.opts.Algorithm, r.opts.PatchContext)
	ui.LogDebug("Message:\n%s", req.Message)

	done := make(chan completion, len(r.endpoints))
	var g errgroup.Group
	for i, q := range r.endpoints {
		g.Go(func() error {
			start := time.Now()
			defer func() {
				if p := recover(); p != nil {
					done <- completion{index: i, results: failAll(q, fmt.Errorf("endpoint task panicked: %v", p)), elapsed: time.Since(start)}
				}
			}()
			results := q.Query(ctx, req)
			done <- completion{index: i, results: results, elapsed: time.Since(start)}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(done)
	}()

	byEndpoint := make([][][]endpoint.Result, len(r.endpoints))
	for comp := range done {
		r.logCompletion(comp)
		byEndpoint[comp.index] = comp.results
	}

	return collect(c, byEndpoint)
}

func failAll(q Querier, err error) [][]endpoint.Result {
	labels := q.Labels()
	results := make([][]endpoint.Result, len(labels))
	for i, label := range labels {
		results[i] = []endpoint.Result{{Label: label, Err: err}}
	}
	return results
}

func (r *Resolver) logCompletion(comp completion) {
	for _, variant := range comp.results {
		if len(variant) == 0 {
			continue
		}
		res := variant[0]
		if res.Err != nil {
			line := fmt.Sprintf("%s failed in %.2f s", res.Label, comp.elapsed.Seconds())
			ui.LogInfo(" - %s", line)
			ui.AddEndpointCompletion(line)
			continue
		}
		line := progressLine(res.Label, res.Response)
		ui.LogInfo(" - %s", line)
		ui.AddEndpointCompletion(line)
	}
}

// progressLine reports latency, and token throughput when the endpoint counts tokens
func progressLine(label string, entry endpoint.ResponseEntry) string {
	secs := entry.Duration.Seconds()
	line := fmt.Sprintf("%s completed in %.2f s", label, secs)
	if entry.TotalTokens != nil && secs > 0 {
		line += fmt.Sprintf(" - tokens %d - %.2f t/s", *entry.TotalTokens, float64(*entry.TotalTokens)/secs)
	}
	if entry.Logprob != nil {
		line += fmt.Sprintf(" - prob %.1f%%", endpoint.LogprobToProb(*entry.Logprob))
	}
	return line
}

// collect validates every candidate and drops answers an endpoint repeated.
// byEndpoint is indexed by endpoint, variant and beam.
func collect(c *models.Conflict, byEndpoint [][][]endpoint.Result) ([]models.ResolvedConflict, models.ResolveErrors) {
	var resolved []models.ResolvedConflict
	errs := models.ResolveErrors{}
	for _, variants := range byEndpoint {
		seen := make(map[string]bool)
		for _, beams := range variants {
			for _, res := range beams {
				if res.Err != nil {
					ui.LogWarning("Skipping %s: %v", res.Label, res.Err)
					errs.Add(res.Label)
					continue
				}
				blocks, err := ParseResponse(res.Response.Text)
				if err != nil {
					ui.LogWarning("Skipping %s: %v", res.Label, err)
					errs.Add(res.Label)
					continue
				}
				for m, block := range blocks {
					label := endpoint.MultiLabel(res.Label, m)
					content, err := Validate(c, label, block)
					if err != nil {
						ui.LogWarning("Skipped %v", err)
						errs.Add(label)
						continue
					}
					if seen[content] {
						ui.LogDebug("%s repeats an earlier answer of the same endpoint", label)
						continue
					}
					seen[content] = true
					resolved = append(resolved, models.ResolvedConflict{
						Conflict:        c,
						ResolvedVersion: content,
						Model:           label,
						Duration:        res.Response.Duration.Seconds(),
						TotalTokens:     res.Response.TotalTokens,
						Logprob:         res.Response.Logprob,
					})
				}
			}
		}
	}
	return resolved, errs
}
