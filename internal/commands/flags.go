package commands

import (
	"github.com/spf13/cobra"

	"github.com/prajaktaborse1234/synthmerge/internal/config"
	"github.com/prajaktaborse1234/synthmerge/internal/textdiff"
)

var (
	// Command line flags
	RepoPath          string
	ConfigPath        string
	CodeContextLines  int
	DiffContextLines  int
	PatchContextLines int
	DiffAlgorithm     string
	Verbose           bool
	DebugLogFile      string
	UseTUI            bool
	DryRun            bool
	OutputFile        string
	ApplyChangesFile  string
)

// NewRootCommand builds the synthmerge command with its flags bound to the
// package variables
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synthmerge",
		Short: "Resolve git merge conflicts with language models",
		Long: `synthmerge asks every configured endpoint to resolve the diff3 conflicts
left by a merge, rebase, cherry-pick or revert, and inserts each valid answer
into the conflict, above the ======= separator, for review.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return RunApplication(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&RepoPath, "repo", ".", "Path inside the git repository with conflicts")
	flags.StringVarP(&ConfigPath, "config", "c", config.DefaultPath, "Path to the endpoint configuration")
	flags.IntVar(&CodeContextLines, "code-context-lines", 3, "Lines of context around each conflict the model has to reproduce")
	flags.IntVar(&DiffContextLines, "diff-context-lines", 3, "Context lines of the commit diff attached to the prompt")
	flags.IntVar(&PatchContextLines, "patch-context-lines", 3, "Context lines of the base to remote patch")
	flags.StringVar(&DiffAlgorithm, "diff-algorithm", string(textdiff.Histogram), "Patch diff algorithm (histogram or myers)")
	flags.BoolVarP(&Verbose, "verbose", "v", false, "Log prompts and debug details")
	flags.StringVar(&DebugLogFile, "debug-log", "", "Path to output debug log file")
	flags.BoolVar(&UseTUI, "tui", false, "Show the interactive terminal UI and confirm before writing")
	flags.BoolVar(&DryRun, "dry-run", false, "Resolve conflicts but save the candidates instead of writing them")
	flags.StringVar(&OutputFile, "output", "", "Custom path for dry run output file (default: synthmerge-candidates.json in the repository root)")
	flags.StringVar(&ApplyChangesFile, "apply-changes", "", "Path to a saved candidates file to write back without querying any endpoint")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "apply-changes")
	return cmd
}
