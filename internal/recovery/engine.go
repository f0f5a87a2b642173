package recovery

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dna-labs/dna/internal/dnaerr"
	"github.com/dna-labs/dna/internal/telemetry"
	"github.com/dna-labs/dna/internal/ui"
)

// DefaultHistoryLimit bounds the in-memory error history.
const DefaultHistoryLimit = 100

// Decision tells the caller what to do after a failure.
type Decision int

const (
	// Abort stops the enclosing operation.
	Abort Decision = iota
	// Retry re-runs the failed step.
	Retry
	// Continue skips the failed step and proceeds in degraded mode.
	Continue
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case Continue:
		return "continue"
	default:
		return "abort"
	}
}

// Proceed reports whether the caller may keep going.
func (d Decision) Proceed() bool {
	return d != Abort
}

// Options controls a single Handle or Decide call.
type Options struct {
	Interactive         bool
	AutoFix             bool
	ShowDetail          bool
	GracefulDegradation bool
	MaxRetries          int
	// Optional marks a step the caller skips instead of failing on Abort.
	// The final message is then printed as a warning.
	Optional bool
}

// DefaultOptions enables auto-fix and graceful degradation with three
// attempts per error code.
func DefaultOptions() Options {
	return Options{
		AutoFix:             true,
		GracefulDegradation: true,
		MaxRetries:          3,
	}
}

// Prompter asks the operator a yes/no question.
type Prompter interface {
	Confirm(prompt string) (bool, error)
}

// Engine classifies failures and decides how to recover from them.
type Engine struct {
	mu       sync.Mutex
	history  []*dnaerr.Error
	limit    int
	attempts map[string]int

	prompter Prompter
	out      io.Writer
	log      zerolog.Logger
	metrics  *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithPrompter sets the prompter used for interactive recovery.
func WithPrompter(p Prompter) Option {
	return func(e *Engine) { e.prompter = p }
}

// WithOutput sets where recovery plans and final error messages are printed.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l.With().Str("component", "recovery").Logger() }
}

// WithMetrics records decisions in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithHistoryLimit overrides DefaultHistoryLimit.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limit = n
		}
	}
}

// New creates an engine. Without options it prints nothing and never prompts.
func New(opts ...Option) *Engine {
	e := &Engine{
		limit:    DefaultHistoryLimit,
		attempts: make(map[string]int),
		out:      io.Discard,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle reports whether the caller may continue (retry or degrade) after
// raw. False means the enclosing operation must abort.
func (e *Engine) Handle(raw error, opts Options) bool {
	return e.Decide(raw, opts).Proceed()
}

// Decide normalizes raw, records it, and decides how the caller proceeds.
// Every call counts as one attempt for the error's code; once a code has
// used MaxRetries attempts, Decide aborts regardless of category.
func (e *Engine) Decide(raw error, opts Options) Decision {
	err := dnaerr.From(raw)
	if err == nil {
		return Continue
	}

	exhausted := e.record(err, opts.MaxRetries)
	log := e.log.With().
		Str("code", err.Code).
		Str("category", string(err.Category)).
		Str("severity", string(err.Severity)).
		Logger()

	if exhausted {
		log.Error().Int("max_retries", opts.MaxRetries).Msg("retry limit reached")
		e.printFinal(err, opts, fmt.Sprintf("giving up after %d attempts", opts.MaxRetries))
		return e.decided(err, Abort)
	}

	plan := BuildPlan(err)

	if opts.AutoFix && plan.AutoFixAvailable {
		log.Info().Msg("attempting automatic fix")
		fixErr := err.AutoFix()
		if fixErr == nil {
			fmt.Fprintf(e.out, "%s Applied automatic fix for %s\n", ui.SuccessStyle.Render("✓"), err.Code)
			return e.decided(err, Retry)
		}
		log.Warn().Err(fixErr).Msg("automatic fix failed")
	}

	if opts.Interactive && plan.CanRecover && e.prompter != nil {
		e.printPlan(err, plan, opts.ShowDetail)
		ok, promptErr := e.prompter.Confirm("Retry after completing these steps?")
		if promptErr != nil {
			log.Warn().Err(promptErr).Msg("recovery prompt failed")
		} else if ok {
			return e.decided(err, Retry)
		}
	}

	if opts.GracefulDegradation && degradable(err) {
		log.Warn().Msg("continuing in degraded mode")
		return e.decided(err, Continue)
	}

	e.printFinal(err, opts, "")
	return e.decided(err, Abort)
}

// record appends err to the history and counts the attempt. It reports
// whether the code had already exhausted its attempts.
func (e *Engine) record(err *dnaerr.Error, maxRetries int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, err)
	if over := len(e.history) - e.limit; over > 0 {
		e.history = append([]*dnaerr.Error(nil), e.history[over:]...)
	}

	if e.attempts[err.Code] >= maxRetries {
		return true
	}
	e.attempts[err.Code]++
	return false
}

func (e *Engine) decided(err *dnaerr.Error, d Decision) Decision {
	e.metrics.RecordDecision(err.Code, string(err.Category), string(err.Severity), d.String())
	return d
}

// History returns a copy of the recorded errors, oldest first.
func (e *Engine) History() []*dnaerr.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*dnaerr.Error(nil), e.history...)
}

// Attempts returns how many attempts have been counted for code.
func (e *Engine) Attempts(code string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[code]
}

// ResetAttempts clears the counter for code. Counters otherwise persist
// across successful retries, so an owner that wants a fresh budget for a
// code, such as a long-lived process starting a new job, calls this.
func (e *Engine) ResetAttempts(code string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.attempts, code)
}

// Reset clears the history and all counters.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
	e.attempts = make(map[string]int)
}

func (e *Engine) printPlan(err *dnaerr.Error, plan Plan, detailed bool) {
	var b strings.Builder
	b.WriteString(ui.WarningStyle.Render(fmt.Sprintf("Recoverable error [%s]", err.Code)))
	b.WriteString("\n" + err.Message + "\n")
	if err.Suggestion != "" {
		b.WriteString(ui.SubtleStyle.Render("Suggestion: "+err.Suggestion) + "\n")
	}
	b.WriteString("\n" + ui.TitleStyle.Render("Manual steps") + "\n")
	for i, step := range plan.ManualSteps {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
	}
	if len(plan.AlternativeApproaches) > 0 {
		b.WriteString("\n" + ui.TitleStyle.Render("Alternatives") + "\n")
		for _, alt := range plan.AlternativeApproaches {
			fmt.Fprintf(&b, "  - %s\n", alt)
		}
	}
	fmt.Fprintf(&b, "\nRisk: %s", plan.RiskLevel)
	if detailed {
		b.WriteString("\n\n" + strings.TrimRight(dnaerr.Format(err, true), "\n"))
	}
	fmt.Fprintln(e.out, ui.BoxStyle.Render(b.String()))
}

func (e *Engine) printFinal(err *dnaerr.Error, opts Options, reason string) {
	heading, style := "✗ Unrecoverable error", ui.ErrorStyle
	if opts.Optional {
		heading, style = "! Skipped after error", ui.WarningStyle
	}
	if reason != "" {
		heading += " (" + reason + ")"
	}
	fmt.Fprintln(e.out, style.Render(heading))
	fmt.Fprint(e.out, dnaerr.Format(err, opts.ShowDetail))
}
