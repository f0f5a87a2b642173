package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dna-labs/dna/internal/dnaerr"
	"github.com/dna-labs/dna/internal/project"
	"github.com/dna-labs/dna/internal/recovery"
	"github.com/dna-labs/dna/internal/render"
	"github.com/dna-labs/dna/internal/telemetry"
	"github.com/dna-labs/dna/internal/templates"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

var allStages = []string{
	StageValidate,
	StagePrepare,
	StageGenerate,
	StageInstall,
	StageVersionControl,
	StageFinalize,
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	onRun func(key string)
}

// Run keys failures by the command name and its first argument, e.g.
// "npm install" or "git init".
func (r *fakeRunner) Run(ctx context.Context, _ string, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	r.mu.Unlock()

	key := name
	if len(args) > 0 {
		key += " " + args[0]
	}
	if r.onRun != nil {
		r.onRun(key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := r.fail[key]; ok {
		return []byte("npm ERR! code E404\n"), err
	}
	return nil, nil
}

func (r *fakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type failingRenderer struct {
	errs []string
}

func (f failingRenderer) Render(render.Request) render.Response {
	return render.Response{Errors: f.errs}
}

type fakeConfirmer struct {
	answer bool
	asked  []string
}

func (c *fakeConfirmer) Confirm(prompt string) (bool, error) {
	c.asked = append(c.asked, prompt)
	return c.answer, nil
}

func newTestPipeline(t *testing.T, mutate ...func(*Deps)) (*Pipeline, *fakeRunner) {
	t.Helper()
	reg, err := templates.Load()
	require.NoError(t, err)

	runner := &fakeRunner{fail: map[string]error{}}
	deps := Deps{
		Templates:   reg,
		Renderer:    render.New(reg),
		Runner:      runner,
		ToolVersion: "1.2.3",
		DiskSpace:   func(string) (uint64, error) { return 1 << 40, nil },
		Clock:       func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&deps)
	}
	p := New(deps)
	p.newID = func() string { return "run-1" }
	return p, runner
}

func testConfig(t *testing.T) project.ProjectConfig {
	t.Helper()
	return project.ProjectConfig{
		Name:           "demo",
		OutputPath:     filepath.Join(t.TempDir(), "demo"),
		TemplateID:     "basic",
		FrameworkID:    "node",
		PackageManager: project.PackageManagerNPM,
	}
}

func withRenderer(r render.Renderer) func(*Deps) {
	return func(d *Deps) { d.Renderer = r }
}

func requireFailure(t *testing.T, err error) *Failure {
	t.Helper()
	var f *Failure
	require.True(t, errors.As(err, &f), "expected *Failure, got %v", err)
	return f
}

func stageState(t *testing.T, run *Run, name string) StageState {
	t.Helper()
	report, ok := run.Stage(name)
	require.True(t, ok, "stage %s did not run", name)
	return report.State
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func assertTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, content, string(data), rel)
	}
}

func TestRunSuccess(t *testing.T) {
	p, runner := newTestPipeline(t)
	cfg := testConfig(t)
	cfg.ModuleIDs = []string{"auth-jwt"}

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)

	run := res.Run
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 0, res.Outcome.ExitCode())
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, Stages(), run.StageNames())
	for _, name := range allStages {
		assert.Equal(t, StageCompleted, stageState(t, run, name), name)
	}
	assert.Equal(t, []string{cfg.OutputPath}, run.CreatedPaths)
	assert.Contains(t, run.Files, "package.json")
	assert.Contains(t, run.Files, "src/auth/jwt.js")
	assert.Empty(t, run.Warnings)

	assert.Equal(t, []string{
		"npm install",
		"git config --get user.email",
		"git init -q",
		"git add -A",
		"git commit -q -m Initial commit from dna",
	}, runner.Calls())

	info, err := os.Stat(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	m, err := ReadManifest(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, Manifest{
		Template:  "basic",
		Framework: "node",
		Modules:   []string{"auth-jwt"},
		Generated: "2026-03-04T05:06:07Z",
		Version:   "1.2.3",
	}, *m)
}

func TestManifestModulesNeverNull(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := testConfig(t)

	_, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)

	data, err := os.ReadFile(ManifestPath(cfg.OutputPath))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"modules": []`)
}

func TestRunDoesNotMutateConfig(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := testConfig(t)
	cfg.ModuleIDs = []string{"monitoring"}
	cfg.Variables = map[string]string{"author": "ada"}

	_, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"monitoring"}, cfg.ModuleIDs)
	assert.Equal(t, map[string]string{"author": "ada"}, cfg.Variables)
}

func TestGitIdentityFallback(t *testing.T) {
	p, runner := newTestPipeline(t)
	runner.fail["git config"] = errors.New("exit status 1")

	res, err := p.Run(context.Background(), testConfig(t), project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Contains(t, runner.Calls(),
		"git -c user.name=dna -c user.email=dna@localhost commit -q -m Initial commit from dna")
}

func TestSkipInstallAndVCS(t *testing.T) {
	p, runner := newTestPipeline(t)
	cfg := testConfig(t)
	cfg.SkipInstall = true
	cfg.SkipVCSInit = true

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, runner.Calls())
	assert.Equal(t, StageSkipped, stageState(t, res.Run, StageInstall))
	assert.Equal(t, StageSkipped, stageState(t, res.Run, StageVersionControl))
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestPackageManagerNoneSkipsInstall(t *testing.T) {
	p, runner := newTestPipeline(t)
	cfg := testConfig(t)
	cfg.PackageManager = project.PackageManagerNone

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, StageSkipped, stageState(t, res.Run, StageInstall))
	assert.NotContains(t, runner.Calls(), "npm install")
}

func TestDryRunTouchesNothing(t *testing.T) {
	p, runner := newTestPipeline(t)
	cfg := testConfig(t)

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{DryRun: true}, recovery.DefaultOptions())
	require.NoError(t, err)

	run := res.Run
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, allStages, run.StageNames())
	assert.Equal(t, StageCompleted, stageState(t, run, StageValidate))
	for _, name := range allStages[1:] {
		assert.Equal(t, StageSkipped, stageState(t, run, name), name)
	}
	assert.Contains(t, run.PlannedFiles, "package.json")
	assert.Contains(t, run.PlannedFiles, "src/index.js")
	assert.Empty(t, run.Files)
	assert.Empty(t, run.CreatedPaths)
	assert.Empty(t, runner.Calls())

	_, err = os.Stat(cfg.OutputPath)
	assert.True(t, os.IsNotExist(err), "dry run created %s", cfg.OutputPath)
}

func TestDryRunReportsTemplateErrors(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := testConfig(t)
	cfg.ModuleIDs = []string{"no-such-module"}

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{DryRun: true}, recovery.DefaultOptions())
	f := requireFailure(t, err)
	assert.Equal(t, dnaerr.CodeTemplateValidationFailed, f.Err.Code)
	assert.Equal(t, OutcomeGeneration, res.Outcome)
}

func TestInstallFailureDegrades(t *testing.T) {
	p, runner := newTestPipeline(t)
	runner.fail["npm install"] = errors.New("exit status 1")
	cfg := testConfig(t)

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)

	run := res.Run
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, OutcomeDependencyDegraded, res.Outcome)
	assert.Equal(t, 0, res.Outcome.ExitCode())
	assert.Equal(t, StageDegraded, stageState(t, run, StageInstall))
	assert.Equal(t, StageCompleted, stageState(t, run, StageVersionControl))
	assert.Equal(t, StageCompleted, stageState(t, run, StageFinalize))
	require.NotEmpty(t, run.Warnings)
	assert.Contains(t, run.Warnings[0], "npm install failed")

	assert.FileExists(t, ManifestPath(cfg.OutputPath))
	assert.Contains(t, runner.Calls(), "git init -q")
}

func TestInstallFailureDegradesWithoutGracefulDegradation(t *testing.T) {
	var out bytes.Buffer
	p, runner := newTestPipeline(t, func(d *Deps) {
		d.Recovery = recovery.New(recovery.WithOutput(&out))
	})
	runner.fail["npm install"] = errors.New("exit status 1")
	rec := recovery.DefaultOptions()
	rec.GracefulDegradation = false

	res, err := p.Run(context.Background(), testConfig(t), project.GenerationOptions{}, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDependencyDegraded, res.Outcome)
	assert.Equal(t, StatusSucceeded, res.Run.Status)

	assert.Contains(t, out.String(), "Skipped after error")
	assert.NotContains(t, out.String(), "Unrecoverable")
}

func TestInstallAndVersionControlFailuresAreDependencyDegraded(t *testing.T) {
	p, runner := newTestPipeline(t)
	runner.fail["npm install"] = errors.New("exit status 1")
	runner.fail["git init"] = errors.New("exit status 128")

	res, err := p.Run(context.Background(), testConfig(t), project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDependencyDegraded, res.Outcome)
	assert.Equal(t, StageDegraded, stageState(t, res.Run, StageInstall))
	assert.Equal(t, StageDegraded, stageState(t, res.Run, StageVersionControl))
}

func TestVersionControlFailureDegrades(t *testing.T) {
	p, runner := newTestPipeline(t)
	runner.fail["git init"] = errors.New("exit status 128")
	cfg := testConfig(t)

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, OutcomeVCSDegraded, res.Outcome)
	assert.Equal(t, 0, res.Outcome.ExitCode())
	assert.Equal(t, StageCompleted, stageState(t, res.Run, StageInstall))
	assert.Equal(t, StageDegraded, stageState(t, res.Run, StageVersionControl))
	assert.FileExists(t, filepath.Join(cfg.OutputPath, "package.json"))
	assert.NotContains(t, runner.Calls(), "git add -A")
}

func TestDirectoryExistsAborts(t *testing.T) {
	p, runner := newTestPipeline(t)
	cfg := testConfig(t)
	existing := map[string]string{"user.txt": "keep me"}
	writeTree(t, cfg.OutputPath, existing)

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	f := requireFailure(t, err)

	assert.Equal(t, dnaerr.CodeDirectoryExists, f.Err.Code)
	assert.Equal(t, StagePrepare, f.Stage)
	assert.Equal(t, StagePrepare, f.Err.Stage)
	assert.True(t, f.RolledBack)
	assert.True(t, f.Reported)
	assert.Equal(t, OutcomeFatalRolledBack, res.Outcome)
	assert.Equal(t, 4, res.Outcome.ExitCode())

	run := res.Run
	assert.Equal(t, StatusRolledBack, run.Status)
	assert.Empty(t, run.CreatedPaths)
	assert.Equal(t, []string{StageValidate, StagePrepare}, run.StageNames())
	assert.Empty(t, runner.Calls())
	assertTree(t, cfg.OutputPath, existing)
}

func TestExistingFileIsNotReplaced(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.OutputPath, []byte("file"), 0o644))

	_, err := p.Run(context.Background(), cfg, project.GenerationOptions{Overwrite: true}, recovery.DefaultOptions())
	f := requireFailure(t, err)
	assert.Equal(t, dnaerr.CodeFileExists, f.Err.Code)

	data, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "file", string(data))
}

func TestInteractiveOverwrite(t *testing.T) {
	for _, answer := range []bool{true, false} {
		t.Run(map[bool]string{true: "confirmed", false: "declined"}[answer], func(t *testing.T) {
			confirmer := &fakeConfirmer{answer: answer}
			p, _ := newTestPipeline(t, func(d *Deps) { d.Confirmer = confirmer })
			cfg := testConfig(t)
			writeTree(t, cfg.OutputPath, map[string]string{"user.txt": "old"})

			res, err := p.Run(context.Background(), cfg, project.GenerationOptions{Interactive: true}, recovery.DefaultOptions())
			require.Len(t, confirmer.asked, 1)
			assert.Contains(t, confirmer.asked[0], cfg.OutputPath)

			if answer {
				require.NoError(t, err)
				assert.Equal(t, OutcomeSuccess, res.Outcome)
				assert.NoFileExists(t, filepath.Join(cfg.OutputPath, "user.txt"))
				assert.FileExists(t, filepath.Join(cfg.OutputPath, "package.json"))
				return
			}
			f := requireFailure(t, err)
			assert.Equal(t, dnaerr.CodeDirectoryExists, f.Err.Code)
			assertTree(t, cfg.OutputPath, map[string]string{"user.txt": "old"})
		})
	}
}

func TestOverwriteWithBackupKeepsCopy(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := testConfig(t)
	original := map[string]string{
		"user.txt":        "mine",
		"nested/deep.txt": "deep",
	}
	writeTree(t, cfg.OutputPath, original)

	opts := project.GenerationOptions{Overwrite: true, BackupOnOverwrite: true}
	res, err := p.Run(context.Background(), cfg, opts, recovery.DefaultOptions())
	require.NoError(t, err)

	backup := res.Run.BackupPath
	require.NotEmpty(t, backup)
	assert.True(t, strings.HasPrefix(backup, cfg.OutputPath+".backup."), backup)
	assertTree(t, backup, original)
	assert.NoFileExists(t, filepath.Join(cfg.OutputPath, "user.txt"))
}

func TestFailedOverwriteRestoresBackup(t *testing.T) {
	p, _ := newTestPipeline(t, withRenderer(failingRenderer{errs: []string{"bad var"}}))
	cfg := testConfig(t)
	original := map[string]string{
		"user.txt":        "mine",
		"nested/deep.txt": "deep\x00binary",
	}
	writeTree(t, cfg.OutputPath, original)

	opts := project.GenerationOptions{Overwrite: true, BackupOnOverwrite: true}
	res, err := p.Run(context.Background(), cfg, opts, recovery.DefaultOptions())
	f := requireFailure(t, err)

	assert.Equal(t, StageGenerate, f.Stage)
	assert.True(t, f.RolledBack)
	assert.Equal(t, StatusRolledBack, res.Run.Status)
	assertTree(t, cfg.OutputPath, original)

	leftovers, err := filepath.Glob(cfg.OutputPath + ".backup.*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

// removeFailingOnce deletes one file of the tree, then fails, the way a
// removal stops at an undeletable file. Later calls remove normally.
func removeFailingOnce(t *testing.T, victim string) func(string) error {
	t.Helper()
	failed := false
	return func(path string) error {
		if failed {
			return os.RemoveAll(path)
		}
		failed = true
		require.NoError(t, os.Remove(filepath.Join(path, victim)))
		return errors.New("unlinkat: operation not permitted")
	}
}

func TestRetriedOverwriteKeepsFirstBackup(t *testing.T) {
	confirmer := &fakeConfirmer{answer: true}
	p, _ := newTestPipeline(t,
		withRenderer(failingRenderer{errs: []string{"bad var"}}),
		func(d *Deps) {
			d.Confirmer = confirmer
			d.Recovery = recovery.New(recovery.WithPrompter(confirmer))
		})
	cfg := testConfig(t)
	original := map[string]string{
		"a.txt":        "first",
		"locked.txt":   "second",
		"nested/b.txt": "third",
	}
	writeTree(t, cfg.OutputPath, original)
	p.removeAll = removeFailingOnce(t, "a.txt")

	rec := recovery.DefaultOptions()
	rec.Interactive = true
	opts := project.GenerationOptions{Interactive: true, BackupOnOverwrite: true}
	res, err := p.Run(context.Background(), cfg, opts, rec)
	f := requireFailure(t, err)

	assert.Equal(t, StageGenerate, f.Stage)
	report, ok := res.Run.Stage(StagePrepare)
	require.True(t, ok)
	assert.Equal(t, 2, report.Attempts)
	assert.Equal(t, StatusRolledBack, res.Run.Status)
	assertTree(t, cfg.OutputPath, original)

	leftovers, err := filepath.Glob(cfg.OutputPath + ".backup.*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestAbortAfterPartialRemovalRestoresBackup(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := testConfig(t)
	original := map[string]string{
		"a.txt":        "first",
		"nested/b.txt": "third",
	}
	writeTree(t, cfg.OutputPath, original)
	p.removeAll = removeFailingOnce(t, "a.txt")

	opts := project.GenerationOptions{Overwrite: true, BackupOnOverwrite: true}
	res, err := p.Run(context.Background(), cfg, opts, recovery.DefaultOptions())
	f := requireFailure(t, err)

	assert.Equal(t, StagePrepare, f.Stage)
	assert.Equal(t, dnaerr.CodeFilesystemError, f.Err.Code)
	assert.Equal(t, StatusRolledBack, res.Run.Status)
	assertTree(t, cfg.OutputPath, original)

	leftovers, err := filepath.Glob(cfg.OutputPath + ".backup.*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestExistingBackupDestinationIsNotRemoved(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := testConfig(t)
	writeTree(t, cfg.OutputPath, map[string]string{"a.txt": "current"})
	backup := cfg.OutputPath + ".backup." + strconv.FormatInt(fixedNow.UnixMilli(), 10)
	writeTree(t, backup, map[string]string{"a.txt": "earlier"})

	opts := project.GenerationOptions{Overwrite: true, BackupOnOverwrite: true}
	res, err := p.Run(context.Background(), cfg, opts, recovery.DefaultOptions())
	f := requireFailure(t, err)

	assert.Equal(t, dnaerr.CodeBackupFailed, f.Err.Code)
	assert.Empty(t, res.Run.BackupPath)
	assertTree(t, backup, map[string]string{"a.txt": "earlier"})
	assertTree(t, cfg.OutputPath, map[string]string{"a.txt": "current"})
}

func TestTemplateFailureRollsBack(t *testing.T) {
	p, runner := newTestPipeline(t, withRenderer(failingRenderer{errs: []string{"bad var"}}))
	cfg := testConfig(t)

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	f := requireFailure(t, err)

	assert.Equal(t, dnaerr.CodeTemplateValidationFailed, f.Err.Code)
	assert.Contains(t, f.Err.Message, "bad var")
	assert.Equal(t, OutcomeGeneration, res.Outcome)
	assert.Equal(t, 3, res.Outcome.ExitCode())
	assert.Equal(t, StatusRolledBack, res.Run.Status)
	assert.Equal(t, []string{StageValidate, StagePrepare, StageGenerate}, res.Run.StageNames())
	assert.Empty(t, runner.Calls())

	_, err = os.Stat(cfg.OutputPath)
	assert.True(t, os.IsNotExist(err))
}

func TestParentNotFoundIsAutoFixed(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t)
	cfg.OutputPath = filepath.Join(root, "a", "b", "demo")

	p, _ := newTestPipeline(t)
	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)

	report, _ := res.Run.Stage(StagePrepare)
	assert.Equal(t, 2, report.Attempts)
	assert.Equal(t, []string{filepath.Join(root, "a"), cfg.OutputPath}, res.Run.CreatedPaths)
	assert.DirExists(t, cfg.OutputPath)
}

func TestRetryCountersPersistAcrossRuns(t *testing.T) {
	p, _ := newTestPipeline(t)
	for _, dir := range []string{"a", "b"} {
		cfg := testConfig(t)
		cfg.OutputPath = filepath.Join(t.TempDir(), dir, "demo")
		_, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, p.recovery.Attempts(dnaerr.CodeParentNotFound))

	rec := recovery.DefaultOptions()
	rec.MaxRetries = 2
	cfg := testConfig(t)
	cfg.OutputPath = filepath.Join(t.TempDir(), "c", "demo")
	_, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, rec)
	f := requireFailure(t, err)
	assert.Equal(t, dnaerr.CodeParentNotFound, f.Err.Code)
	assert.NoDirExists(t, filepath.Dir(cfg.OutputPath))
}

func TestParentNotFoundWithoutAutoFix(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t)
	cfg.OutputPath = filepath.Join(root, "a", "demo")
	rec := recovery.DefaultOptions()
	rec.AutoFix = false

	p, _ := newTestPipeline(t)
	_, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, rec)
	f := requireFailure(t, err)
	assert.Equal(t, dnaerr.CodeParentNotFound, f.Err.Code)
	assert.NoDirExists(t, filepath.Join(root, "a"))
}

func TestRollbackRemovesAutoCreatedParents(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t)
	cfg.OutputPath = filepath.Join(root, "a", "b", "demo")

	p, _ := newTestPipeline(t, withRenderer(failingRenderer{errs: []string{"bad var"}}))
	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	requireFailure(t, err)
	assert.Equal(t, StatusRolledBack, res.Run.Status)
	assert.NoDirExists(t, filepath.Join(root, "a"))
	assert.DirExists(t, root)
}

func TestInsufficientDiskSpace(t *testing.T) {
	p, _ := newTestPipeline(t, func(d *Deps) {
		d.DiskSpace = func(string) (uint64, error) { return 10 << 20, nil }
	})
	cfg := testConfig(t)

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	f := requireFailure(t, err)

	assert.Equal(t, dnaerr.CodeInsufficientResources, f.Err.Code)
	assert.Equal(t, dnaerr.SeverityCritical, f.Err.Severity)
	assert.Contains(t, f.Err.Message, "10 MB")
	assert.Equal(t, OutcomeValidation, res.Outcome)
	assert.Equal(t, 2, res.Outcome.ExitCode())
	assert.NoDirExists(t, cfg.OutputPath)
}

func TestDiskSpaceCheckErrorWarns(t *testing.T) {
	p, _ := newTestPipeline(t, func(d *Deps) {
		d.DiskSpace = func(string) (uint64, error) { return 0, errors.New("statfs: unsupported") }
	})

	res, err := p.Run(context.Background(), testConfig(t), project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, res.Run.Warnings)
	assert.Contains(t, res.Run.Warnings[0], "could not check free disk space")
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*project.ProjectConfig)
		code   string
	}{
		{"invalid name", func(c *project.ProjectConfig) { c.Name = "1bad" }, dnaerr.CodeInvalidProjectName},
		{"relative path", func(c *project.ProjectConfig) { c.OutputPath = "demo" }, dnaerr.CodeInvalidOutputPath},
		{"duplicate module", func(c *project.ProjectConfig) { c.ModuleIDs = []string{"monitoring", "monitoring"} }, dnaerr.CodeDuplicateModule},
		{"unknown template", func(c *project.ProjectConfig) { c.TemplateID = "nope" }, dnaerr.CodeTemplateNotFound},
		{"framework mismatch", func(c *project.ProjectConfig) { c.FrameworkID = "axum" }, dnaerr.CodeFrameworkMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, runner := newTestPipeline(t)
			cfg := testConfig(t)
			tt.mutate(&cfg)

			res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
			f := requireFailure(t, err)
			assert.Equal(t, tt.code, f.Err.Code)
			assert.Equal(t, StageValidate, f.Stage)
			assert.Equal(t, OutcomeValidation, res.Outcome)
			assert.Equal(t, []string{StageValidate}, res.Run.StageNames())
			assert.Empty(t, runner.Calls())
		})
	}
}

func TestTemplateNotFoundListsAvailable(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := testConfig(t)
	cfg.TemplateID = "nope"

	_, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	f := requireFailure(t, err)
	assert.Contains(t, f.Err.Suggestion, "basic")
	assert.Contains(t, f.Err.Suggestion, "tauri-native")
}

func TestIncompatibleModuleWarns(t *testing.T) {
	p, _ := newTestPipeline(t)
	cfg := testConfig(t)
	cfg.TemplateID = "tauri-native"
	cfg.FrameworkID = "tauri"
	cfg.ModuleIDs = []string{"auth-jwt"}
	cfg.PackageManager = project.PackageManagerNone

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Run.Warnings)
	report, _ := res.Run.Stage(StageValidate)
	assert.NotEmpty(t, report.Warnings)
}

func TestCanceledBeforeStart(t *testing.T) {
	p, runner := newTestPipeline(t)
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx, cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	f := requireFailure(t, err)
	assert.Equal(t, dnaerr.CodeCanceled, f.Err.Code)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, f.Reported)
	assert.Equal(t, StatusRolledBack, res.Run.Status)
	assert.Empty(t, runner.Calls())
	assert.NoDirExists(t, cfg.OutputPath)
}

func TestCancelDuringInstallDegrades(t *testing.T) {
	p, runner := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.onRun = func(key string) {
		if key == "npm install" {
			cancel()
		}
	}
	cfg := testConfig(t)

	res, err := p.Run(ctx, cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, OutcomeDependencyDegraded, res.Outcome)
	assert.Equal(t, StageDegraded, stageState(t, res.Run, StageInstall))
	assert.Equal(t, StageDegraded, stageState(t, res.Run, StageVersionControl))
	assert.Equal(t, StageCompleted, stageState(t, res.Run, StageFinalize))
	report, _ := res.Run.Stage(StageInstall)
	assert.Equal(t, 1, report.Attempts)
	assert.FileExists(t, ManifestPath(cfg.OutputPath))
}

func TestRollbackIsIdempotent(t *testing.T) {
	p, _ := newTestPipeline(t, withRenderer(failingRenderer{errs: []string{"bad var"}}))
	cfg := testConfig(t)

	res, err := p.Run(context.Background(), cfg, project.GenerationOptions{}, recovery.DefaultOptions())
	requireFailure(t, err)
	require.Equal(t, StatusRolledBack, res.Run.Status)

	assert.True(t, p.Rollback(res.Run))
	assert.True(t, p.Rollback(res.Run))
	assert.Equal(t, StatusRolledBack, res.Run.Status)
	assert.Empty(t, res.Run.RollbackErrors)
}

func TestRollbackRecordsErrors(t *testing.T) {
	p, _ := newTestPipeline(t)
	root := t.TempDir()
	out := filepath.Join(root, "demo")
	backup := out + ".backup.1"
	writeTree(t, out, map[string]string{"x": "current"})
	writeTree(t, backup, map[string]string{"x": "old"})

	// out was not created by the run, so it blocks the restore.
	run := newRun("r", out)
	run.Status = StatusFailed
	run.BackupPath = backup

	assert.False(t, p.Rollback(run))
	assert.Equal(t, StatusFailed, run.Status)
	require.Len(t, run.RollbackErrors, 1)
	derr, ok := dnaerr.As(run.RollbackErrors[0])
	require.True(t, ok)
	assert.Equal(t, dnaerr.CodeRollbackFailed, derr.Code)
	assertTree(t, out, map[string]string{"x": "current"})
	assertTree(t, backup, map[string]string{"x": "old"})
}

func TestRunMetrics(t *testing.T) {
	metrics := telemetry.NewMetrics()
	p, _ := newTestPipeline(t,
		withRenderer(failingRenderer{errs: []string{"bad var"}}),
		func(d *Deps) { d.Metrics = metrics },
	)

	_, err := p.Run(context.Background(), testConfig(t), project.GenerationOptions{}, recovery.DefaultOptions())
	requireFailure(t, err)

	count, err := testutil.GatherAndCount(metrics.Registry(), "dna_runs_total", "dna_rollbacks_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

type recordingReporter struct {
	started  []string
	progress []float64
}

func (r *recordingReporter) OnStageStart(name string) { r.started = append(r.started, name) }
func (r *recordingReporter) OnStageProgress(fraction float64) { r.progress = append(r.progress, fraction) }

func TestProgressReporting(t *testing.T) {
	reporter := &recordingReporter{}
	p, _ := newTestPipeline(t, func(d *Deps) { d.Reporter = reporter })

	_, err := p.Run(context.Background(), testConfig(t), project.GenerationOptions{}, recovery.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, reporter.started, "progress is opt-in")

	_, err = p.Run(context.Background(), testConfig(t), project.GenerationOptions{ReportProgress: true}, recovery.DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, reporter.started, len(allStages))
	require.Len(t, reporter.progress, len(allStages))
	assert.InDelta(t, 1.0, reporter.progress[len(allStages)-1], 1e-9)
}

func TestExitCodes(t *testing.T) {
	tests := map[Outcome]int{
		OutcomeSuccess:            0,
		OutcomeDependencyDegraded: 0,
		OutcomeVCSDegraded:        0,
		OutcomeValidation:         2,
		OutcomeGeneration:         3,
		OutcomeFatalRolledBack:    4,
		OutcomeFatalUnclean:       5,
	}
	for outcome, code := range tests {
		assert.Equal(t, code, outcome.ExitCode(), string(outcome))
	}
}

func TestTail(t *testing.T) {
	assert.Equal(t, "c\nd", tail([]byte("a\nb\nc\nd\n"), 2))
	assert.Equal(t, "a", tail([]byte("a"), 5))
}
