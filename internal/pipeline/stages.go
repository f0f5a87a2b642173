package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dna-labs/dna/internal/dnaerr"
	"github.com/dna-labs/dna/internal/render"
)

// Stage names, as reported in Run.Stages and logs.
const (
	StageValidate       = "validate"
	StagePrepare        = "prepare-directory"
	StageGenerate       = "generate-files"
	StageInstall        = "install-dependencies"
	StageVersionControl = "initialize-vcs"
	StageFinalize       = "finalize"
)

// Stages returns the stage names in execution order.
func Stages() []string {
	return []string{StageValidate, StagePrepare, StageGenerate, StageInstall, StageVersionControl, StageFinalize}
}

const initialCommitMessage = "Initial commit from dna"

type stage struct {
	name  string
	title string
	// fatal stages abort and roll back the run on failure; the others
	// degrade to a warning.
	fatal bool
	// cancelable stages are not started once the context is done.
	cancelable bool
	outcome    Outcome
	run        func(ctx context.Context, st *state) (StageState, error)
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{name: StageValidate, title: "Validating configuration", fatal: true, cancelable: true, outcome: OutcomeValidation, run: p.validate},
		{name: StagePrepare, title: "Preparing output directory", fatal: true, cancelable: true, outcome: OutcomeFatalRolledBack, run: p.prepareDirectory},
		{name: StageGenerate, title: "Generating files", fatal: true, cancelable: true, outcome: OutcomeGeneration, run: p.generateFiles},
		{name: StageInstall, title: "Installing dependencies", run: p.installDependencies},
		{name: StageVersionControl, title: "Initializing git repository", run: p.initVersionControl},
		{name: StageFinalize, title: "Writing project manifest", fatal: true, outcome: OutcomeFatalRolledBack, run: p.finalize},
	}
}

func (p *Pipeline) validate(_ context.Context, st *state) (StageState, error) {
	cfg := st.cfg
	if err := cfg.Validate(); err != nil {
		return StageFailed, err
	}

	meta, ok := p.templates.Get(cfg.TemplateID)
	if !ok {
		return StageFailed, dnaerr.Template(dnaerr.CodeTemplateNotFound,
			fmt.Sprintf("template %q not found", cfg.TemplateID)).
			WithSuggestion("Available templates: " + strings.Join(p.templates.IDs(), ", ")).
			WithDetail("template", cfg.TemplateID)
	}
	st.meta = meta

	if meta.Framework != cfg.FrameworkID {
		return StageFailed, dnaerr.Template(dnaerr.CodeFrameworkMismatch,
			fmt.Sprintf("template %q targets %s, not %s", meta.ID, meta.Framework, cfg.FrameworkID)).
			WithSuggestion(fmt.Sprintf("Use --framework %s or pick a %s template", meta.Framework, cfg.FrameworkID))
	}

	for _, id := range cfg.ModuleIDs {
		if !meta.SupportsModule(id) {
			st.warn(fmt.Sprintf("module %q is not listed as compatible with template %q", id, meta.ID))
		}
	}

	if !meta.ToolVersionAllowed(p.toolVersion) {
		return StageFailed, dnaerr.Configuration(dnaerr.CodeIncompatibleToolVersion,
			fmt.Sprintf("template %q requires dna %s, this is %s", meta.ID, meta.MinToolVersion, p.toolVersion)).
			WithSuggestion("Upgrade dna to a version that satisfies the template's requirement")
	}

	required := meta.RequiredBytes(p.minDisk)
	if required == 0 {
		return StageCompleted, nil
	}
	checkDir := nearestExisting(cfg.OutputPath)
	free, err := p.diskSpace(checkDir)
	if err != nil {
		st.warn(fmt.Sprintf("could not check free disk space at %s: %v", checkDir, err))
		return StageCompleted, nil
	}
	if free < required {
		return StageFailed, dnaerr.System(dnaerr.CodeInsufficientResources,
			fmt.Sprintf("only %s free at %s, template %q needs %s",
				humanize.Bytes(free), checkDir, meta.ID, humanize.Bytes(required))).
			WithSeverity(dnaerr.SeverityCritical).
			WithSuggestion("Free up disk space or choose a different --output-dir").
			WithDetail("free_bytes", free).
			WithDetail("required_bytes", required)
	}
	return StageCompleted, nil
}

// nearestExisting walks up from path to the first ancestor that exists.
func nearestExisting(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func (p *Pipeline) generateFiles(_ context.Context, st *state) (StageState, error) {
	req := render.Request{
		Name:       st.cfg.Name,
		Type:       st.cfg.TemplateID,
		Framework:  st.cfg.FrameworkID,
		ModuleIDs:  st.cfg.ModuleIDs,
		OutputPath: st.cfg.OutputPath,
		Variables:  st.cfg.Variables,
	}

	if st.opts.DryRun {
		previewer, ok := p.renderer.(render.Previewer)
		if !ok {
			return StageSkipped, nil
		}
		files, err := previewer.Preview(req)
		if err != nil {
			return StageFailed, templateFailure(err.Error())
		}
		st.run.PlannedFiles = files
		return StageSkipped, nil
	}

	resp := p.renderer.Render(req)
	for _, w := range resp.Warnings {
		st.warn(w)
	}
	if !resp.Success {
		return StageFailed, templateFailure(strings.Join(resp.Errors, "; "))
	}
	st.run.Files = resp.Files
	st.log.Info().Int("files", len(resp.Files)).Msg("files generated")
	return StageCompleted, nil
}

func templateFailure(detail string) *dnaerr.Error {
	return dnaerr.Template(dnaerr.CodeTemplateValidationFailed, "template rendering failed: "+detail).
		WithSuggestion("Check the --var values and the selected modules")
}

func (p *Pipeline) installDependencies(ctx context.Context, st *state) (StageState, error) {
	if st.opts.DryRun || st.cfg.SkipInstall {
		return StageSkipped, nil
	}
	name, args, ok := st.cfg.PackageManager.InstallCommand()
	if !ok {
		return StageSkipped, nil
	}

	st.log.Info().Str("command", name+" "+strings.Join(args, " ")).Msg("installing dependencies")
	output, err := p.runner.Run(ctx, st.cfg.OutputPath, name, args...)
	if err != nil {
		return StageFailed, dnaerr.Dependency(dnaerr.CodeDependencyError,
			fmt.Sprintf("%s install failed", name)).
			WithCause(err).
			WithSuggestion(fmt.Sprintf("Run `%s %s` in %s once the problem is fixed", name, strings.Join(args, " "), st.cfg.OutputPath)).
			WithDetail("output", tail(output, 20))
	}
	return StageCompleted, nil
}

func (p *Pipeline) initVersionControl(ctx context.Context, st *state) (StageState, error) {
	if st.opts.DryRun || st.cfg.SkipVCSInit {
		return StageSkipped, nil
	}
	dir := st.cfg.OutputPath

	commit := []string{"commit", "-q", "-m", initialCommitMessage}
	if _, err := p.runner.Run(ctx, dir, "git", "config", "--get", "user.email"); err != nil {
		commit = append([]string{"-c", "user.name=dna", "-c", "user.email=dna@localhost"}, commit...)
	}

	steps := [][]string{
		{"init", "-q"},
		{"add", "-A"},
		commit,
	}
	for _, args := range steps {
		if _, err := p.runner.Run(ctx, dir, "git", args...); err != nil {
			return StageFailed, dnaerr.System(dnaerr.CodeVCSInitFailed,
				fmt.Sprintf("git %s failed", args[0])).
				WithSeverity(dnaerr.SeverityLow).
				WithCause(err).
				WithSuggestion("Run `git init` in the project directory manually")
		}
	}
	return StageCompleted, nil
}

func (p *Pipeline) finalize(_ context.Context, st *state) (StageState, error) {
	if st.opts.DryRun {
		return StageSkipped, nil
	}
	path, err := writeManifest(st.cfg, p.toolVersion, p.now())
	if err != nil {
		return StageFailed, dnaerr.Configuration(dnaerr.CodeConfigurationError, "failed to write project manifest").
			WithCause(err).
			WithSuggestion("Check that the output directory is writable")
	}
	st.log.Debug().Str("manifest", path).Msg("manifest written")
	return StageCompleted, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
