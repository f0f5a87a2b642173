package pipeline

import (
	"fmt"

	"github.com/dna-labs/dna/internal/dnaerr"
)

// Outcome classifies how a run ended, for choosing a process exit code.
type Outcome string

// A run whose dependency installation was skipped after a failure is
// dependency-degraded even when version control also failed; vcs-degraded
// means only version control initialization was skipped.
const (
	OutcomeSuccess            Outcome = "success"
	OutcomeDependencyDegraded Outcome = "dependency-degraded"
	OutcomeVCSDegraded        Outcome = "vcs-degraded"
	OutcomeValidation         Outcome = "validation"
	OutcomeGeneration         Outcome = "generation"
	OutcomeFatalRolledBack    Outcome = "fatal-rolled-back"
	OutcomeFatalUnclean       Outcome = "fatal-unclean"
)

// ExitCode maps the outcome to the CLI's process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess, OutcomeDependencyDegraded, OutcomeVCSDegraded:
		return 0
	case OutcomeValidation:
		return 2
	case OutcomeGeneration:
		return 3
	case OutcomeFatalRolledBack:
		return 4
	default:
		return 5
	}
}

// Result is returned by Pipeline.Run whether or not the run succeeded.
type Result struct {
	Run     *Run
	Outcome Outcome
}

// Failure is the error returned when a run aborts.
type Failure struct {
	Outcome    Outcome
	Stage      string
	Err        *dnaerr.Error
	RolledBack bool
	// Reported is true when the recovery engine already displayed Err.
	Reported bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("stage %s failed: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
