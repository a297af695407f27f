package engine

import (
	"time"
)

// Invocation identifies a command execution.
type Invocation struct {
	// Command is the command name, e.g. "provision".
	Command string `json:"command"`

	// Environment is the target environment name.
	Environment string `json:"environment"`
}

// CommandResult is the outcome of running a command's steps.
type CommandResult struct {
	// RunID uniquely identifies this execution.
	RunID string `json:"run_id"`

	Command     string `json:"command"`
	Environment string `json:"environment"`

	// Status is the overall status of the command.
	Status Status `json:"status"`

	// Steps holds one entry per planned step, in order. Steps after a
	// failure are reported as skipped.
	Steps []StepResult `json:"steps"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`

	// Error is the classified failure, if any.
	Error *EngineError `json:"error,omitempty"`
}

// StepResult is the outcome of a single step.
type StepResult struct {
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Actions  []ActionResult `json:"actions,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// ActionResult is the outcome of a single action, across all its attempts.
type ActionResult struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// FailedStep returns the first failed step, or nil.
func (r *CommandResult) FailedStep() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Status == StatusFailed || r.Steps[i].Status == StatusCancelled {
			return &r.Steps[i]
		}
	}
	return nil
}

// Succeeded reports whether every step completed.
func (r *CommandResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}
