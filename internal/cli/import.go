package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ruff-uno/simonini-isms/internal/importer"
	"github.com/ruff-uno/simonini-isms/internal/jobtread"
	"github.com/ruff-uno/simonini-isms/internal/store"
)

// NewImportCommand creates the import command group.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import rules and phase specs into the database",
	}
	cmd.AddCommand(newImportSpecsCommand(rootOpts))
	cmd.AddCommand(newImportRulesCommand(rootOpts))
	return cmd
}

// ImportSpecsOptions holds flags for import specs.
type ImportSpecsOptions struct {
	*RootOptions
	JobID       string
	Concurrency int
}

func newImportSpecsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportSpecsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "specs",
		Short: "Import phase spec PDFs from JobTread",
		Long: `Import phase spec PDFs from JobTread.

Lists the PDF files of the phase specs job, extracts their text, splits it into
sections and items, and replaces each phase's stored document. Files are parsed
concurrently; a file that fails is reported and the rest are still imported.

Exit codes:
  0 - all files imported
  1 - one or more files failed
  2 - command error (bad config, JobTread not configured)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportSpecs(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.JobID, "job", "", "JobTread job holding the spec PDFs (overrides config)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "files parsed in parallel (overrides config)")

	return cmd
}

func runImportSpecs(cmd *cobra.Command, opts *ImportSpecsOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.commandLogger(cmd)
	out := opts.formatter(cmd)

	jobID := cfg.JobTread.PhaseSpecsJobID
	if opts.JobID != "" {
		jobID = opts.JobID
	}
	if jobID == "" {
		return NewExitError(ExitCommandError, "no phase specs job configured (set PHASE_SPECS_JOB_ID or --job)")
	}
	concurrency := cfg.Importer.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}

	client, err := newJobTreadClient(cfg, logger)
	if errors.Is(err, jobtread.ErrNoAPIKey) {
		return WrapExitError(ExitCommandError, "JobTread is not configured", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create JobTread client", err)
	}

	st, err := openStore(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	ctx, stop := signalContext(cmd)
	defer stop()

	out.VerboseLog("Importing phase specs from job %s (%d parallel)", jobID, concurrency)
	imp := importer.NewSpecImporter(client, st, jobID,
		importer.WithConcurrency(concurrency),
		importer.WithLogger(logger))
	report, err := imp.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "spec import failed", err)
	}

	if err := out.Success(specImportResult{report}); err != nil {
		return err
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d files failed to import", report.Failed, report.Files))
	}
	return nil
}

type specImportResult struct {
	*importer.SpecReport
}

func (r specImportResult) String() string {
	var b strings.Builder
	for _, d := range r.Documents {
		fmt.Fprintf(&b, "  %s  %s (%d sections, %d items, %d figures)\n",
			d.PhaseCode, d.FullTitle, d.Sections, d.Items, d.Figures)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  FAILED %s: %s\n", e.File, e.Err)
	}
	fmt.Fprintf(&b, "Imported %d of %d files (%d items)\n", r.Succeeded, r.Files, r.Items)
	return b.String()
}

// ImportRulesOptions holds flags for import rules.
type ImportRulesOptions struct {
	*RootOptions
	User string
}

func newImportRulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportRulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rules <index.html>",
		Short: "Import phase rules from the legacy HTML rule book",
		Long: `Import phase rules from the legacy HTML rule book.

Each phase section of the page becomes a phase; its numbered list items become
rules. Existing phases are updated in place and their rules renumbered to match
the page. Sections without rules are skipped.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportRules(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "username recorded as the author (default: system)")

	return cmd
}

func runImportRules(cmd *cobra.Command, opts *ImportRulesOptions, path string) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.commandLogger(cmd)
	out := opts.formatter(cmd)

	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open rule book", err)
	}
	defer f.Close()

	st, err := openStore(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer closeStore(st, logger)

	ctx := cmd.Context()
	var userID int64
	if opts.User != "" {
		userID, err = st.UserIDByName(ctx, opts.User)
		if errors.Is(err, store.ErrNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown user %q", opts.User))
		}
		if err != nil {
			return WrapExitError(ExitFailure, "failed to look up user", err)
		}
	}

	out.VerboseLog("Importing rules from %s", path)
	report, err := importer.NewRuleImporter(st, logger).Run(ctx, f, userID)
	if err != nil {
		logger.Error("rule import failed", zap.String("path", path), zap.Error(err))
		return WrapExitError(ExitFailure, "rule import failed", err)
	}
	return out.Success(ruleImportResult{report})
}

type ruleImportResult struct {
	*importer.RuleReport
}

func (r ruleImportResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Imported %d rules in %d phases (%d sections read)\n", r.Rules, r.Phases, r.Sections)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, "Skipped sections without rules: %s\n", strings.Join(r.Skipped, ", "))
	}
	return b.String()
}
