package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dna-labs/dna/internal/branding"
	"github.com/dna-labs/dna/internal/dnaerr"
	"github.com/dna-labs/dna/internal/pipeline"
	"github.com/dna-labs/dna/internal/project"
	"github.com/dna-labs/dna/internal/recovery"
	"github.com/dna-labs/dna/internal/render"
	"github.com/dna-labs/dna/internal/templates"
	"github.com/dna-labs/dna/internal/ui"
)

var newFlags struct {
	template       string
	framework      string
	modules        []string
	vars           []string
	outputDir      string
	packageManager string
	skipInstall    bool
	skipGit        bool
	dryRun         bool
	overwrite      bool
	backup         bool
	yes            bool
	noInteractive  bool
	progress       bool
	timeout        time.Duration
	maxRetries     int
	noAutoFix      bool
	noDegrade      bool
	debug          bool
}

var newCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Generate a new project from a template",
	Long: `Generate a new project from a template and optional modules.

The project is written to <output-dir>/<name>. If any of the validate,
prepare, generate or finalize stages fails, everything the run created is
removed and an overwritten directory is restored from its backup. Dependency
installation and git initialization failures only produce warnings.

Exit status: 0 success (also with warnings), 2 invalid input, 3 template
rendering failed, 4 failed and rolled back, 5 failed and rollback incomplete.

Examples:
  dna new my-app --template basic --module auth-jwt --var author=ada
  dna new api --template high-performance-api --var port=9000 --skip-git
  dna new my-app --template basic --overwrite --backup`,
	Args: cobra.ExactArgs(1),
	RunE: runNew,
}

func init() {
	f := newCmd.Flags()
	f.StringVarP(&newFlags.template, "template", "t", "", "Template id (see 'dna templates')")
	f.StringVar(&newFlags.framework, "framework", "", "Target framework (default: the template's framework)")
	f.StringSliceVarP(&newFlags.modules, "module", "m", nil, "Module to add (repeatable)")
	f.StringArrayVar(&newFlags.vars, "var", nil, "Template variable as key=value (repeatable)")
	f.StringVarP(&newFlags.outputDir, "output-dir", "o", "", "Parent directory of the project (default: current directory)")
	f.StringVar(&newFlags.packageManager, "package-manager", "", "npm, yarn, pnpm or none (default from config)")
	f.BoolVar(&newFlags.skipInstall, "skip-install", false, "Do not install dependencies")
	f.BoolVar(&newFlags.skipGit, "skip-git", false, "Do not initialize a git repository")
	f.BoolVar(&newFlags.dryRun, "dry-run", false, "Show what would be generated without writing anything")
	f.BoolVar(&newFlags.overwrite, "overwrite", false, "Replace an existing output directory")
	f.BoolVar(&newFlags.backup, "backup", false, "Back up an existing output directory before replacing it")
	f.BoolVarP(&newFlags.yes, "yes", "y", false, "Answer yes to prompts (implies --overwrite and --no-interactive)")
	f.BoolVar(&newFlags.noInteractive, "no-interactive", false, "Never prompt")
	f.BoolVar(&newFlags.progress, "progress", true, "Print stage progress")
	f.DurationVar(&newFlags.timeout, "timeout", 10*time.Minute, "Abort the run after this long")
	f.IntVar(&newFlags.maxRetries, "max-retries", 0, "Attempts per error code (default from config)")
	f.BoolVar(&newFlags.noAutoFix, "no-auto-fix", false, "Do not apply automatic fixes")
	f.BoolVar(&newFlags.noDegrade, "no-degrade", false, "Do not continue past degradable errors")
	f.BoolVar(&newFlags.debug, "debug", false, "Show error details and debug logs")
	_ = newCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	reg, err := templates.Load()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	cfg, err := buildProjectConfig(cmd, reg, args[0])
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), ui.ErrorStyle.Render("Error:"), err)
		return &ExitError{Code: pipeline.OutcomeValidation.ExitCode(), Err: err}
	}
	opts := generationOptions()
	rec, err := recoveryOptions(cmd, opts.Interactive)
	if err != nil {
		return err
	}
	minDisk, err := settings.MinDiskBytes()
	if err != nil {
		return err
	}

	log := logger
	if newFlags.debug && log.GetLevel() > zerolog.DebugLevel {
		log = log.Level(zerolog.DebugLevel)
	}

	stderr := cmd.ErrOrStderr()
	engineOpts := []recovery.Option{
		recovery.WithOutput(stderr),
		recovery.WithLogger(log),
		recovery.WithMetrics(metrics),
	}
	deps := pipeline.Deps{
		Templates:           reg,
		Renderer:            render.New(reg),
		Reporter:            ui.NewProgressReporter(stderr, len(pipeline.Stages())),
		Logger:              &log,
		Metrics:             metrics,
		ToolVersion:         buildVersion,
		DefaultMinDiskSpace: minDisk,
	}
	if opts.Interactive {
		confirmer := newConfirmer(stderr)
		deps.Confirmer = confirmer
		engineOpts = append(engineOpts, recovery.WithPrompter(confirmer))
	}
	deps.Recovery = recovery.New(engineOpts...)

	ctx, cancel := context.WithTimeout(cmd.Context(), newFlags.timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	res, err := pipeline.New(deps).Run(ctx, cfg, opts, rec)
	if err != nil {
		var failure *pipeline.Failure
		if !errors.As(err, &failure) {
			return err
		}
		printFailure(stderr, failure, res.Run, newFlags.debug)
		return &ExitError{Code: res.Outcome.ExitCode(), Err: err}
	}

	printSummary(cmd.OutOrStdout(), cfg, opts, res)
	return nil
}

func buildProjectConfig(cmd *cobra.Command, reg *templates.Registry, name string) (project.ProjectConfig, error) {
	vars, err := parseVars(newFlags.vars)
	if err != nil {
		return project.ProjectConfig{}, err
	}
	output, err := project.ResolveOutputPath(newFlags.outputDir, name)
	if err != nil {
		return project.ProjectConfig{}, err
	}

	meta, known := reg.Get(newFlags.template)
	framework := newFlags.framework
	if framework == "" && known {
		framework = meta.Framework
	}
	if framework == "" {
		// The validate stage reports the unknown template.
		framework = "unknown"
	}

	pmValue := settings.PackageManager
	if cmd.Flags().Changed("package-manager") {
		pmValue = newFlags.packageManager
	} else if known && !meta.PackageManaged {
		pmValue = string(project.PackageManagerNone)
	}
	pm, err := project.ParsePackageManager(pmValue)
	if err != nil {
		return project.ProjectConfig{}, err
	}

	return project.ProjectConfig{
		Name:           name,
		OutputPath:     output,
		TemplateID:     newFlags.template,
		FrameworkID:    framework,
		ModuleIDs:      newFlags.modules,
		Variables:      vars,
		PackageManager: pm,
		SkipInstall:    newFlags.skipInstall,
		SkipVCSInit:    newFlags.skipGit,
	}, nil
}

func generationOptions() project.GenerationOptions {
	interactive := !newFlags.yes && !newFlags.noInteractive && isatty.IsTerminal(os.Stdin.Fd())
	return project.GenerationOptions{
		Interactive:       interactive,
		DryRun:            newFlags.dryRun,
		Overwrite:         newFlags.overwrite || newFlags.yes,
		BackupOnOverwrite: newFlags.backup,
		ReportProgress:    newFlags.progress,
	}
}

// newConfirmer uses the huh form when prompts go to a terminal and plain
// line prompts otherwise.
func newConfirmer(w io.Writer) pipeline.Confirmer {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return ui.NewHuhConfirmer()
	}
	return ui.NewLineConfirmer(os.Stdin, w)
}

func recoveryOptions(cmd *cobra.Command, interactive bool) (recovery.Options, error) {
	rec := recovery.Options{
		AutoFix:             settings.Recovery.AutoFix && !newFlags.noAutoFix,
		GracefulDegradation: settings.Recovery.GracefulDegradation && !newFlags.noDegrade,
		MaxRetries:          settings.Recovery.MaxRetries,
		Interactive:         interactive,
		ShowDetail:          newFlags.debug,
	}
	if cmd.Flags().Changed("max-retries") {
		if newFlags.maxRetries < 1 {
			return rec, errors.New("--max-retries must be at least 1")
		}
		rec.MaxRetries = newFlags.maxRetries
	}
	return rec, nil
}

// parseVars parses repeated key=value flags.
func parseVars(inputs []string) (map[string]string, error) {
	result := make(map[string]string, len(inputs))
	for _, input := range inputs {
		key, value, ok := strings.Cut(input, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", input)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid --var %q: key cannot be empty", input)
		}
		result[key] = strings.TrimSpace(value)
	}
	return result, nil
}

func printFailure(w io.Writer, f *pipeline.Failure, run *pipeline.Run, detailed bool) {
	if !f.Reported {
		fmt.Fprintln(w, ui.ErrorStyle.Render("✗ Generation failed at "+f.Stage))
		fmt.Fprint(w, dnaerr.Format(f.Err, detailed))
	}

	switch {
	case f.Outcome == pipeline.OutcomeFatalUnclean:
		fmt.Fprintln(w, ui.ErrorStyle.Render("Rollback did not complete; inspect these paths by hand:"))
		for _, err := range run.RollbackErrors {
			fmt.Fprint(w, dnaerr.Format(err, detailed))
		}
	case len(run.CreatedPaths) > 0 || run.BackupPath != "":
		fmt.Fprintln(w, ui.SubtleStyle.Render("All changes were rolled back."))
	default:
		fmt.Fprintln(w, ui.SubtleStyle.Render("No changes were made."))
	}
}

func printSummary(w io.Writer, cfg project.ProjectConfig, opts project.GenerationOptions, res *pipeline.Result) {
	run := res.Run

	if opts.DryRun {
		fmt.Fprintln(w, ui.TitleStyle.Render(fmt.Sprintf("Dry run: %d files would be written to %s", len(run.PlannedFiles), cfg.OutputPath)))
		for _, f := range run.PlannedFiles {
			fmt.Fprintf(w, "  %s\n", f)
		}
		printWarnings(w, run.Warnings)
		return
	}

	fmt.Fprintf(w, "%s Created %s at %s (%d files)\n",
		ui.SuccessStyle.Render("✓"), cfg.Name, cfg.OutputPath, len(run.Files))
	if run.BackupPath != "" {
		fmt.Fprintf(w, "  Previous contents backed up to %s\n", run.BackupPath)
	}
	printWarnings(w, run.Warnings)

	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintf(w, "  cd %s\n", cfg.OutputPath)
	if report, ok := run.Stage(pipeline.StageInstall); ok && report.State != pipeline.StageCompleted {
		if name, args, ok := cfg.PackageManager.InstallCommand(); ok {
			fmt.Fprintf(w, "  %s %s\n", name, strings.Join(args, " "))
		}
	}
	fmt.Fprintf(w, "  cat %s\n", branding.ManifestFile())
}

func printWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w, "\n"+ui.WarningStyle.Render("Warnings:"))
	for _, warning := range warnings {
		fmt.Fprintf(w, "  - %s\n", warning)
	}
}
