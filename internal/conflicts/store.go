package conflicts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/prajaktaborse1234/synthmerge/internal/models"
	"github.com/prajaktaborse1234/synthmerge/internal/ui"
	"github.com/prajaktaborse1234/synthmerge/pkg/helpers"
)

// Repository is the version control view the store works against
type Repository interface {
	Root() string
	UnmergedFiles() ([]string, error)
	MarkerSize(path string) int
	MergeMessagePath() (string, bool)
}

// WriteBackError reports a candidate that could not be inserted because the
// file no longer has the expected marker at the insertion point
type WriteBackError struct {
	File   string
	Line   int
	Model  string
	Reason string
}

func (e *WriteBackError) Error() string {
	return fmt.Sprintf("%s:%d: cannot apply resolution from %s: %s", e.File, e.Line, e.Model, e.Reason)
}

// Store finds conflicts in a repository and writes resolutions back
type Store struct {
	repo         Repository
	contextWidth int
}

// NewStore creates a store capturing contextWidth lines around each conflict
func NewStore(repo Repository, contextWidth int) *Store {
	return &Store{repo: repo, contextWidth: contextWidth}
}

// FindConflicts parses every unmerged file. Files that fail to parse are
// skipped and reported through the returned error, which combines one
// ParseError per file (see multierr.Errors); conflicts of the other files
// are still returned.
func (s *Store) FindConflicts() ([]*models.Conflict, error) {
	files, err := s.repo.UnmergedFiles()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unmerged files")
	}

	var conflicts []*models.Conflict
	var parseErrs error
	for _, file := range files {
		content, err := os.ReadFile(filepath.Join(s.repo.Root(), file))
		if err != nil {
			parseErrs = multierr.Append(parseErrs, &ParseError{File: file, Reason: err.Error()})
			continue
		}
		markerSize := s.repo.MarkerSize(file)
		found, err := Parse(file, string(content), markerSize, s.contextWidth)
		if err != nil {
			parseErrs = multierr.Append(parseErrs, err)
			continue
		}
		ui.LogDebug("%s: %d conflict(s), marker size %d", file, len(found), markerSize)
		conflicts = append(conflicts, found...)
	}
	return conflicts, parseErrs
}

// Apply deduplicates the candidates and inserts each one below its own
// attribution marker, right above the conflict separator. Entries are applied
// bottom-up per file so line numbers of pending entries stay valid. Entries
// whose insertion point moved are skipped; their errors are combined in the
// returned error. The merge message gains the Assisted-by trailer when at
// least one entry was written.
func (s *Store) Apply(resolved []models.ResolvedConflict) (int, error) {
	merged := Deduplicate(resolved)
	order := make([]int, len(merged))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := merged[order[a]].Conflict, merged[order[b]].Conflict
		if ca.FilePath != cb.FilePath {
			return ca.FilePath < cb.FilePath
		}
		return ca.StartLine < cb.StartLine
	})

	applied := 0
	var errs error
	for k := len(order) - 1; k >= 0; k-- {
		rc := merged[order[k]]
		if err := s.applyOne(rc); err != nil {
			ui.LogError("%v", err)
			errs = multierr.Append(errs, err)
			continue
		}
		applied++
	}

	if applied > 0 {
		if err := s.annotateMergeMessage(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return applied, errs
}

func (s *Store) applyOne(rc models.ResolvedConflict) error {
	c := rc.Conflict
	path := filepath.Join(s.repo.Root(), c.FilePath)
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", c.FilePath)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", c.FilePath)
	}

	m := newMarkers(c.MarkerSize)
	lines := helpers.SplitLines(string(content))
	at := c.InsertLine()
	if at < 0 || at >= len(lines) {
		return &WriteBackError{File: c.FilePath, Line: at + 1, Model: rc.Model, Reason: "line is past the end of the file"}
	}
	if current := lines[at]; m.kind(current) != separatorMarker && !m.isAnnotation(current) {
		return &WriteBackError{
			File:   c.FilePath,
			Line:   at + 1,
			Model:  rc.Model,
			Reason: fmt.Sprintf("expected conflict separator, found %q", helpers.TruncateString(trimEOL(current), 60)),
		}
	}

	insert := append([]string{m.attribution(rc.Model)}, helpers.SplitLines(helpers.EnsureNewline(rc.ResolvedVersion))...)
	out := make([]string, 0, len(lines)+len(insert))
	out = append(out, lines[:at]...)
	out = append(out, insert...)
	out = append(out, lines[at:]...)

	if err := os.WriteFile(path, []byte(strings.Join(out, "")), info.Mode().Perm()); err != nil {
		return errors.Wrapf(err, "failed to write %s", c.FilePath)
	}
	ui.LogDebug("%s:%d: inserted resolution from %s", c.FilePath, c.StartLine, rc.Model)
	return nil
}

func (s *Store) annotateMergeMessage() error {
	path, ok := s.repo.MergeMessagePath()
	if !ok {
		ui.LogWarning("No merge message file found; add \"%s\" to the commit message if you keep the generated code", Trailer)
		return nil
	}
	changed, err := AnnotateMessageFile(path)
	if err != nil {
		return err
	}
	if changed {
		ui.LogInfo("Added \"%s\" to %s", Trailer, filepath.Base(path))
	}
	return nil
}
