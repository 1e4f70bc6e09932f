package services

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/format/gitattributes"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/prajaktaborse1234/synthmerge/internal/models"
	"github.com/prajaktaborse1234/synthmerge/internal/ui"
)

const markerSizeAttribute = "conflict-marker-size"

// inProgressHeads lists the files that name the commit being applied, in
// the order they are looked up
var inProgressHeads = []string{
	"CHERRY_PICK_HEAD",
	"REVERT_HEAD",
	"MERGE_HEAD",
	"REBASE_HEAD",
	filepath.Join("rebase-merge", "stopped-sha"),
}

// Repository is a working tree with an operation stopped on conflicts
type Repository struct {
	repo   *git.Repository
	root   string
	gitDir string

	attributesOnce sync.Once
	attributes     gitattributes.Matcher

	diffs *lru.Cache[string, string]
}

// OpenRepository opens the repository containing path
func OpenRepository(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	diffs, err := lru.New[string, string](32)
	if err != nil {
		return nil, err
	}

	r := &Repository{repo: repo, root: wt.Filesystem.Root(), diffs: diffs}
	r.gitDir = r.findGitDir()
	ui.LogDebug("Repository root %s, git dir %s", r.root, r.gitDir)
	return r, nil
}

func (r *Repository) findGitDir() string {
	out, err := GetCommandOutput("git", []string{"rev-parse", "--absolute-git-dir"}, r.root)
	if err == nil && strings.TrimSpace(out) != "" {
		return strings.TrimSpace(out)
	}
	if fs, ok := r.repo.Storer.(*filesystem.Storage); ok {
		return fs.Filesystem().Root()
	}
	return filepath.Join(r.root, git.GitDirName)
}

// Root is the top level directory of the working tree
func (r *Repository) Root() string {
	return r.root
}

// GitDir is the directory holding the repository state
func (r *Repository) GitDir() string {
	return r.gitDir
}

// UnmergedFiles lists the paths that have both an "ours" and a "theirs"
// stage in the index, relative to the root
func (r *Repository) UnmergedFiles() ([]string, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		ui.LogWarning("Failed to read the index, asking git instead: %v", err)
		return r.unmergedFromCLI()
	}

	stages := make(map[string]int)
	var order []string
	for _, e := range idx.Entries {
		var bit int
		switch e.Stage {
		case index.OurMode:
			bit = 1
		case index.TheirMode:
			bit = 2
		default:
			continue
		}
		if _, ok := stages[e.Name]; !ok {
			order = append(order, e.Name)
		}
		stages[e.Name] |= bit
	}

	var files []string
	for _, name := range order {
		if stages[name] == 3 {
			files = append(files, name)
		}
	}
	return files, nil
}

func (r *Repository) unmergedFromCLI() ([]string, error) {
	out, err := GetCommandOutput("git", []string{"diff", "--name-only", "--diff-filter=U"}, r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list unmerged files: %w", err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// MarkerSize returns the conflict marker length configured for path through
// .gitattributes or info/attributes
func (r *Repository) MarkerSize(path string) int {
	r.attributesOnce.Do(r.loadAttributes)
	if r.attributes == nil {
		return models.DefaultMarkerSize
	}

	results, _ := r.attributes.Match(strings.Split(filepath.ToSlash(path), "/"), []string{markerSizeAttribute})
	attr, ok := results[markerSizeAttribute]
	if !ok || !attr.IsValueSet() {
		return models.DefaultMarkerSize
	}
	size, err := strconv.Atoi(attr.Value())
	if err != nil || size <= 0 {
		ui.LogWarning("Ignoring invalid %s=%q for %s", markerSizeAttribute, attr.Value(), path)
		return models.DefaultMarkerSize
	}
	return size
}

func (r *Repository) loadAttributes() {
	wt, err := r.repo.Worktree()
	if err != nil {
		ui.LogWarning("Failed to read attributes: %v", err)
		return
	}
	patterns, err := gitattributes.ReadPatterns(wt.Filesystem, nil)
	if err != nil {
		ui.LogWarning("Failed to read .gitattributes: %v", err)
	}
	info, err := gitattributes.ReadAttributesFile(osfs.New(filepath.Join(r.gitDir, "info")), nil, "attributes", true)
	if err != nil {
		ui.LogWarning("Failed to read info/attributes: %v", err)
	}
	// info/attributes has the highest priority, the matcher prefers later patterns
	r.attributes = gitattributes.NewMatcher(append(patterns, info...))
}

// MergeMessagePath returns the file holding the message of the commit that
// will conclude the operation, when there is one
func (r *Repository) MergeMessagePath() (string, bool) {
	rebase := filepath.Join(r.gitDir, "rebase-merge")
	if fileExists(filepath.Join(rebase, "interactive")) {
		msg := filepath.Join(rebase, "message")
		return msg, fileExists(msg)
	}
	msg := filepath.Join(r.gitDir, "MERGE_MSG")
	return msg, fileExists(msg)
}

// InProgressCommit returns the commit the stopped operation is applying and
// the state file it was read from
func (r *Repository) InProgressCommit() (string, string, bool) {
	for _, name := range inProgressHeads {
		data, err := os.ReadFile(filepath.Join(r.gitDir, name))
		if err != nil {
			continue
		}
		fields := strings.Fields(string(data))
		if len(fields) == 0 {
			continue
		}
		return fields[0], name, true
	}
	return "", "", false
}

// CommitDiff renders the changes rev made to its first parent as a git style
// diff with contextLines of context. With dirs, only files below one of them
// are included. Results are cached.
func (r *Repository) CommitDiff(rev string, dirs []string, contextLines int) (string, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	key := fmt.Sprintf("%s\x00%s\x00%d", hash, strings.Join(dirs, "\x00"), contextLines)
	if cached, ok := r.diffs.Get(key); ok {
		return cached, nil
	}

	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return "", fmt.Errorf("failed to get commit %s: %w", hash, err)
	}
	changes, err := commitChanges(commit)
	if err != nil {
		return "", err
	}

	var kept object.Changes
	for _, change := range changes {
		path := change.To.Name
		if path == "" {
			path = change.From.Name
		}
		if underAny(path, dirs) {
			kept = append(kept, change)
		}
	}
	if len(kept) == 0 {
		r.diffs.Add(key, "")
		return "", nil
	}

	patch, err := kept.Patch()
	if err != nil {
		return "", fmt.Errorf("failed to generate patch for %s: %w", hash, err)
	}
	var buf bytes.Buffer
	if err := diff.NewUnifiedEncoder(&buf, contextLines).Encode(patch); err != nil {
		return "", fmt.Errorf("failed to encode patch for %s: %w", hash, err)
	}
	r.diffs.Add(key, buf.String())
	return buf.String(), nil
}

// commitChanges diffs a commit against its first parent, or against the
// empty tree for a root commit
func commitChanges(c *object.Commit) (object.Changes, error) {
	currentTree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree for commit %s: %w", c.Hash, err)
	}
	firstParent, err := c.Parents().Next()
	if err == io.EOF {
		changes, err := object.DiffTree(nil, currentTree)
		if err != nil {
			return nil, fmt.Errorf("failed to compute diff for initial commit %s: %w", c.Hash, err)
		}
		return changes, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting parent commits for %s: %w", c.Hash, err)
	}
	parentTree, err := firstParent.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get parent tree for commit %s: %w", c.Hash, err)
	}
	changes, err := parentTree.Diff(currentTree)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff for commit %s: %w", c.Hash, err)
	}
	return changes, nil
}

func underAny(path string, dirs []string) bool {
	if len(dirs) == 0 {
		return true
	}
	for _, dir := range dirs {
		dir = strings.Trim(filepath.ToSlash(dir), "/")
		if dir == "" || dir == "." || strings.HasPrefix(path, dir+"/") {
			return true
		}
	}
	return false
}

// CheckDiff3 fails unless conflicts are written with their base section
func (r *Repository) CheckDiff3() error {
	out, _ := GetCommandOutput("git", []string{"config", "merge.conflictStyle"}, r.root)
	switch style := strings.TrimSpace(out); style {
	case "diff3", "zdiff3":
		return nil
	case "":
		return fmt.Errorf("merge.conflictStyle is not set; run \"git config merge.conflictStyle diff3\" and redo the merge")
	default:
		return fmt.Errorf("merge.conflictStyle is %q; run \"git config merge.conflictStyle diff3\" and redo the merge", style)
	}
}

// GetCommandOutput runs a command and returns its output
func GetCommandOutput(command string, args []string, dir string) (string, error) {
	ui.LogShellCommand(command, args, dir)
	cmd := exec.Command(command, args...)
	cmd.Dir = dir
	var out strings.Builder
	cmd.Stdout = &out
	err := cmd.Run()
	return out.String(), err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
