package pipeline

import (
	"fmt"
	"slices"
)

// Status is the lifecycle state of a Run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolledBack"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusSucceeded, StatusFailed},
	StatusFailed:  {StatusRolledBack},
}

// StageState is the result of a single stage.
type StageState string

const (
	StageCompleted StageState = "completed"
	StageSkipped   StageState = "skipped"
	StageDegraded  StageState = "degraded"
	StageFailed    StageState = "failed"
)

// StageReport records what happened in one stage.
type StageReport struct {
	Name     string
	State    StageState
	Attempts int
	Warnings []string
}

// Run is the mutable state of one pipeline invocation. It is owned by the
// pipeline until Run returns and is never persisted.
type Run struct {
	ID         string
	OutputPath string
	StageIndex int
	BackupPath string
	// CreatedPaths lists directories this run created, in creation order.
	// Rollback only removes these.
	CreatedPaths []string
	Status       Status
	Stages       []StageReport
	Warnings     []string
	// PlannedFiles lists the files a dry run would generate.
	PlannedFiles []string
	// Files lists the files written by the generate stage.
	Files          []string
	RollbackErrors []error
}

func newRun(id, outputPath string) *Run {
	return &Run{ID: id, OutputPath: outputPath, Status: StatusPending}
}

func (r *Run) transition(to Status) error {
	if !slices.Contains(transitions[r.Status], to) {
		return fmt.Errorf("invalid run transition %s -> %s", r.Status, to)
	}
	r.Status = to
	return nil
}

func (r *Run) created(path string) bool {
	return slices.Contains(r.CreatedPaths, path)
}

func (r *Run) addCreated(path string) {
	if !r.created(path) {
		r.CreatedPaths = append(r.CreatedPaths, path)
	}
}

// StageNames returns the names of the stages that ran, in order.
func (r *Run) StageNames() []string {
	names := make([]string, len(r.Stages))
	for i, s := range r.Stages {
		names[i] = s.Name
	}
	return names
}

// Stage returns the report for the named stage.
func (r *Run) Stage(name string) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageReport{}, false
}

// Degraded reports whether any stage was skipped after a failure.
func (r *Run) Degraded() bool {
	for _, s := range r.Stages {
		if s.State == StageDegraded {
			return true
		}
	}
	return false
}
