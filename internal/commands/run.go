package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/prajaktaborse1234/synthmerge/internal/config"
	"github.com/prajaktaborse1234/synthmerge/internal/conflicts"
	"github.com/prajaktaborse1234/synthmerge/internal/endpoint"
	"github.com/prajaktaborse1234/synthmerge/internal/models"
	"github.com/prajaktaborse1234/synthmerge/internal/resolver"
	"github.com/prajaktaborse1234/synthmerge/internal/services"
	"github.com/prajaktaborse1234/synthmerge/internal/textdiff"
	"github.com/prajaktaborse1234/synthmerge/internal/ui"
)

// DefaultOutputFile is the dry run output, relative to the repository root
const DefaultOutputFile = "synthmerge-candidates.json"

// RunApplication runs the main application logic
func RunApplication(ctx context.Context) error {
	if err := ui.InitLogging(Verbose, !UseTUI, DebugLogFile); err != nil {
		return err
	}
	defer ui.CloseLogging()
	if DebugLogFile != "" {
		ui.LogInfo("Debug logging enabled to %s", DebugLogFile)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if UseTUI {
		ui.SetupTUI()
		done := ui.StartTUI()
		defer ui.StopTUI()
		go func() {
			if err := <-done; err != nil {
				ui.LogError("Terminal UI stopped: %v", err)
			}
			stop()
		}()
		ui.LogInfo("Keyboard controls:")
		ui.LogInfo("  Ctrl+C: Exit program")
		ui.LogInfo("  PgUp/PgDn: Scroll log up/down")
	}

	err := run(ctx)
	if UseTUI && ctx.Err() == nil {
		if err != nil {
			ui.UpdateStatus("Error: " + err.Error() + " - press Ctrl+C to exit")
		} else {
			ui.UpdateStatus("Done - press Ctrl+C to exit")
		}
		<-ctx.Done()
	}
	return err
}

func run(ctx context.Context) error {
	algorithm, err := textdiff.ParseAlgorithm(DiffAlgorithm)
	if err != nil {
		return err
	}

	ui.UpdateStatus("Opening repository...")
	repo, err := services.OpenRepository(RepoPath)
	if err != nil {
		return fail("Failed to open repository", err)
	}
	if err := repo.CheckDiff3(); err != nil {
		return fail("Conflicts lack their base section", err)
	}
	store := conflicts.NewStore(repo, CodeContextLines)

	if ApplyChangesFile != "" {
		ui.LogInfo("Running in apply-changes mode using file: %s", ApplyChangesFile)
		return applyChangesMode(ctx, store, ApplyChangesFile)
	}

	ui.UpdateStatus("Loading configuration...")
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return fail("Failed to load configuration", err)
	}
	endpoints, err := newEndpoints(cfg)
	if err != nil {
		return fail("Failed to set up endpoints", err)
	}

	ui.UpdateStatus("Looking for conflicts...")
	found, skipped := store.FindConflicts()
	for _, parseErr := range multierr.Errors(skipped) {
		ui.LogError("Skipping file: %v", parseErr)
	}
	if len(found) == 0 {
		ui.LogInfo("No conflicts to resolve")
		return skipped
	}
	ui.LogInfo("Found %d conflict(s) in %d file(s)", len(found), countFiles(found))

	commit, gitDiff := inProgressDiff(repo, found)
	r := resolver.New(endpoints, resolver.Options{
		Algorithm:    algorithm,
		PatchContext: PatchContextLines,
		GitDiff:      gitDiff,
	})
	report := r.ResolveAll(ctx, found)
	logReport(report)
	if ctx.Err() != nil {
		ui.LogWarning("Interrupted, no file was modified")
		return ctx.Err()
	}

	if DryRun {
		output := OutputFile
		if output == "" {
			output = filepath.Join(repo.Root(), DefaultOutputFile)
		}
		err = saveCandidates(output, models.CandidatesFile{
			Commit:     commit,
			Candidates: report.Resolved,
			Errors:     report.Errors,
		})
	} else {
		err = applyResolutions(ctx, store, report.Resolved)
	}
	// files that could not be parsed are left for manual resolution
	return multierr.Append(err, skipped)
}

// fail reports an error in the log and the status bar before returning it
func fail(msg string, err error) error {
	ui.LogError("%s: %v", msg, err)
	ui.UpdateStatus("Error: " + msg)
	return errors.Wrap(err, msg)
}

func newEndpoints(cfg *config.Config) ([]resolver.Querier, error) {
	endpoints := make([]resolver.Querier, 0, len(cfg.Endpoints))
	for i := range cfg.Endpoints {
		client, err := endpoint.NewClient(&cfg.Endpoints[i])
		if err != nil {
			return nil, err
		}
		ui.LogDebug("Endpoint %s: %v", client.Name(), client.Labels())
		endpoints = append(endpoints, client)
	}
	return endpoints, nil
}

// inProgressDiff returns the commit the stopped operation is applying and its
// diff restricted to the directories holding conflicts
func inProgressDiff(repo *services.Repository, found []*models.Conflict) (string, string) {
	commit, from, ok := repo.InProgressCommit()
	if !ok {
		ui.LogDebug("No operation in progress, prompts go without the commit diff")
		return "", ""
	}

	seen := make(map[string]bool)
	var dirs []string
	for _, c := range found {
		dir := path.Dir(filepath.ToSlash(c.FilePath))
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	diff, err := repo.CommitDiff(commit, dirs, DiffContextLines)
	if err != nil {
		ui.LogWarning("Failed to get the diff of %s: %v", commit, err)
		return commit, ""
	}
	ui.LogInfo("Using the diff of %s from %s", commit, from)
	return commit, diff
}

func countFiles(found []*models.Conflict) int {
	files := make(map[string]bool)
	for _, c := range found {
		files[c.FilePath] = true
	}
	return len(files)
}

func logReport(report *resolver.Report) {
	resolved := report.Found - len(report.Unresolved)
	ui.LogInfo("Conflicts found: %d, resolved: %d, unresolved: %d, candidates: %d",
		report.Found, resolved, len(report.Unresolved), len(report.Resolved))
	for _, c := range report.Unresolved {
		ui.LogWarning("Unresolved: %s:%d", c.FilePath, c.StartLine)
	}
	for _, label := range report.Errors.Labels() {
		ui.LogWarning("Errors from %s: %d", label, report.Errors[label])
	}
}

func saveCandidates(output string, file models.CandidatesFile) error {
	data, err := sonic.ConfigStd.MarshalIndent(file, "", "  ")
	if err != nil {
		return fail("Failed to marshal dry run results", err)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fail("Failed to write dry run results", err)
	}
	ui.LogSuccess("Saved %d candidate(s) to %s", len(file.Candidates), output)
	return nil
}

func loadCandidates(input string) (*models.CandidatesFile, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, err
	}
	var file models.CandidatesFile
	if err := sonic.ConfigStd.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", input)
	}

	valid := file.Candidates[:0]
	for i, rc := range file.Candidates {
		if rc.Conflict == nil || rc.Conflict.FilePath == "" {
			ui.LogWarning("Ignoring candidate %d of %s: no conflict location", i+1, input)
			continue
		}
		if rc.Conflict.MarkerSize == 0 {
			rc.Conflict.MarkerSize = models.DefaultMarkerSize
		}
		valid = append(valid, rc)
	}
	file.Candidates = valid
	return &file, nil
}

// applyChangesMode writes back a candidates file saved by a dry run
func applyChangesMode(ctx context.Context, store *conflicts.Store, input string) error {
	ui.UpdateStatus("Applying changes from file...")
	file, err := loadCandidates(input)
	if err != nil {
		return fail("Failed to read changes file", err)
	}
	ui.LogInfo("Loaded %d candidate(s) from %s", len(file.Candidates), input)
	return applyResolutions(ctx, store, file.Candidates)
}

func applyResolutions(ctx context.Context, store *conflicts.Store, resolved []models.ResolvedConflict) error {
	if len(resolved) == 0 {
		ui.LogWarning("No candidate to write")
		return nil
	}

	files := make(map[string]bool)
	for _, rc := range resolved {
		files[rc.Conflict.FilePath] = true
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	confirmMessage := fmt.Sprintf("%d candidate resolution(s) will be inserted into %d file(s):\n%v\n\n'No' is selected by default. Use Tab to select 'Yes' if you want to proceed.",
		len(resolved), len(names), names)
	if !confirm(ctx, confirmMessage) {
		ui.LogInfo("User cancelled the operation, no file was modified")
		return nil
	}

	ui.UpdateStatus("Writing resolutions...")
	applied, err := store.Apply(resolved)
	if err != nil {
		ui.LogWarning("%d candidate(s) could not be written", len(multierr.Errors(err)))
	}
	if applied > 0 {
		ui.LogSuccess("Inserted %d resolution(s); review them, keep one per conflict, then continue the operation", applied)
	}
	return err
}

// confirm asks the user through the TUI; an interrupted run counts as no
func confirm(ctx context.Context, message string) bool {
	answer := make(chan bool, 1)
	go func() {
		answer <- ui.ShowConfirmationDialog(message)
	}()
	select {
	case ok := <-answer:
		return ok
	case <-ctx.Done():
		return false
	}
}
