package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dna-labs/dna/internal/dnaerr"
	"github.com/dna-labs/dna/internal/project"
	"github.com/dna-labs/dna/internal/recovery"
	"github.com/dna-labs/dna/internal/render"
	"github.com/dna-labs/dna/internal/telemetry"
	"github.com/dna-labs/dna/internal/templates"
)

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// Reporter receives progress callbacks. It is never required for
// correctness.
type Reporter interface {
	OnStageStart(name string)
	OnStageProgress(fraction float64)
}

type nopReporter struct{}

func (nopReporter) OnStageStart(string) {}
func (nopReporter) OnStageProgress(float64) {}

// Deps are the collaborators a Pipeline needs. Templates and Renderer are
// required; everything else has a default.
type Deps struct {
	Templates templates.Lookup
	Renderer  render.Renderer
	Recovery  *recovery.Engine
	Runner    CommandRunner
	Confirmer Confirmer
	Reporter  Reporter
	Logger    *zerolog.Logger
	Metrics   *telemetry.Metrics

	// ToolVersion is written to the manifest and checked against each
	// template's minToolVersion.
	ToolVersion string
	// DiskSpace reports free bytes at a path. Defaults to FreeSpace.
	DiskSpace func(path string) (uint64, error)
	// DefaultMinDiskSpace applies to templates that declare no minimum.
	DefaultMinDiskSpace uint64
	Clock               func() time.Time
}

// Pipeline generates projects. Per-run state lives in Run; retry counters
// live in the recovery engine and are shared by every run of a Pipeline.
type Pipeline struct {
	templates templates.Lookup
	renderer  render.Renderer
	recovery  *recovery.Engine
	runner    CommandRunner
	confirmer Confirmer
	reporter  Reporter
	log       zerolog.Logger
	metrics   *telemetry.Metrics

	toolVersion string
	diskSpace   func(string) (uint64, error)
	minDisk     uint64
	now         func() time.Time
	newID       func() string
	removeAll   func(string) error
}

// New creates a pipeline from deps.
func New(deps Deps) *Pipeline {
	p := &Pipeline{
		templates:   deps.Templates,
		renderer:    deps.Renderer,
		recovery:    deps.Recovery,
		runner:      deps.Runner,
		confirmer:   deps.Confirmer,
		reporter:    deps.Reporter,
		log:         zerolog.Nop(),
		metrics:     deps.Metrics,
		toolVersion: deps.ToolVersion,
		diskSpace:   deps.DiskSpace,
		minDisk:     deps.DefaultMinDiskSpace,
		now:         deps.Clock,
		newID:       uuid.NewString,
		removeAll:   os.RemoveAll,
	}
	if deps.Logger != nil {
		p.log = deps.Logger.With().Str("component", "pipeline").Logger()
	}
	if p.recovery == nil {
		p.recovery = recovery.New()
	}
	if p.runner == nil {
		p.runner = ExecRunner{}
	}
	if p.reporter == nil {
		p.reporter = nopReporter{}
	}
	if p.toolVersion == "" {
		p.toolVersion = "dev"
	}
	if p.diskSpace == nil {
		p.diskSpace = FreeSpace
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// state is what stages share within one run.
type state struct {
	cfg       project.ProjectConfig
	opts      project.GenerationOptions
	run       *Run
	meta      *templates.Metadata
	log       zerolog.Logger
	overwrite bool
	report    *StageReport
	// reported is set when the recovery engine displayed the last error.
	reported bool
}

func (s *state) warn(msg string) {
	s.log.Warn().Msg(msg)
	s.report.Warnings = append(s.report.Warnings, msg)
	s.run.Warnings = append(s.run.Warnings, msg)
}

// Run generates the project described by cfg. The Result is returned even
// when the run fails; the error is then a *Failure.
func (p *Pipeline) Run(ctx context.Context, cfg project.ProjectConfig, opts project.GenerationOptions, rec recovery.Options) (*Result, error) {
	cfg = cfg.Clone()
	run := newRun(p.newID(), cfg.OutputPath)
	st := &state{
		cfg:       cfg,
		opts:      opts,
		run:       run,
		overwrite: opts.Overwrite,
	}
	st.log = p.log.With().
		Str("run_id", run.ID).
		Str("template", cfg.TemplateID).
		Str("output", cfg.OutputPath).
		Logger()

	reporter := p.reporter
	if !opts.ReportProgress {
		reporter = nopReporter{}
	}

	_ = run.transition(StatusRunning)
	st.log.Info().Bool("dry_run", opts.DryRun).Msg("generation started")

	all := p.stages()
	for i, s := range all {
		run.StageIndex = i
		reporter.OnStageStart(s.title)

		if err := p.runStage(ctx, st, s, rec); err != nil {
			return p.fail(st, s, err)
		}
		reporter.OnStageProgress(float64(i+1) / float64(len(all)))
	}

	_ = run.transition(StatusSucceeded)
	outcome := successOutcome(run)
	p.metrics.RecordRun(string(outcome))
	st.log.Info().Str("outcome", string(outcome)).Int("warnings", len(run.Warnings)).Msg("generation finished")
	return &Result{Run: run, Outcome: outcome}, nil
}

func successOutcome(run *Run) Outcome {
	if !run.Degraded() {
		return OutcomeSuccess
	}
	if r, ok := run.Stage(StageInstall); ok && r.State == StageDegraded {
		return OutcomeDependencyDegraded
	}
	if r, ok := run.Stage(StageVersionControl); ok && r.State == StageDegraded {
		return OutcomeVCSDegraded
	}
	return OutcomeSuccess
}

// runStage executes s, consulting the recovery engine after each failure.
// It returns an error only when the run must abort.
func (p *Pipeline) runStage(ctx context.Context, st *state, s stage, rec recovery.Options) *dnaerr.Error {
	st.run.Stages = append(st.run.Stages, StageReport{Name: s.name})
	st.report = &st.run.Stages[len(st.run.Stages)-1]
	log := st.log.With().Str("stage", s.name).Logger()
	prev := st.log
	st.log = log
	defer func() { st.log = prev }()

	// Non-fatal stages are skipped on Abort, so the engine reports them as
	// warnings.
	rec.Optional = !s.fatal

	start := p.now()
	defer func() {
		p.metrics.ObserveStage(s.name, string(st.report.State), p.now().Sub(start))
	}()

	for {
		st.report.Attempts++
		log.Debug().Int("attempt", st.report.Attempts).Msg("stage started")

		var (
			result StageState
			err    error
		)
		if ctxErr := ctx.Err(); ctxErr != nil && s.cancelable {
			err = ctxErr
		} else {
			result, err = s.run(ctx, st)
		}
		if err == nil {
			st.report.State = result
			log.Debug().Str("state", string(result)).Msg("stage finished")
			return nil
		}

		derr := dnaerr.From(err).WithStage(s.name)

		// A canceled or timed out run is not retried.
		if ctx.Err() != nil {
			st.reported = false
			if s.fatal {
				st.report.State = StageFailed
				return derr
			}
			st.warn(derr.Message)
			st.report.State = StageDegraded
			return nil
		}

		decision := p.recovery.Decide(derr, rec)
		st.reported = decision == recovery.Abort && s.fatal
		log.Info().Str("code", derr.Code).Str("decision", decision.String()).Msg("stage failed")
		if decision == recovery.Retry {
			continue
		}

		if s.fatal {
			st.report.State = StageFailed
			return derr
		}
		st.warn(derr.Message)
		st.report.State = StageDegraded
		return nil
	}
}

// fail marks the run failed, rolls back and builds the Failure.
func (p *Pipeline) fail(st *state, s stage, derr *dnaerr.Error) (*Result, error) {
	run := st.run
	_ = run.transition(StatusFailed)
	st.log.Error().Err(derr).Str("stage", s.name).Msg("generation failed")

	outcome := s.outcome
	if !p.Rollback(run) {
		outcome = OutcomeFatalUnclean
	}
	p.metrics.RecordRun(string(outcome))

	return &Result{Run: run, Outcome: outcome}, &Failure{
		Outcome:    outcome,
		Stage:      s.name,
		Err:        derr,
		RolledBack: run.Status == StatusRolledBack,
		Reported:   st.reported,
	}
}
