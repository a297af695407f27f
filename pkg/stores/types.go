package stores

import (
	"time"

	"github.com/openfroyo/deployer/pkg/engine"
)

// CommandRecord is one command invocation in the audit log.
type CommandRecord struct {
	ID           string        `json:"id"`
	Environment  string        `json:"environment"`
	Command      string        `json:"command"`
	Status       engine.Status `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Duration     time.Duration `json:"duration"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Help         string        `json:"help,omitempty"`
	FailedStep   string        `json:"failed_step,omitempty"`
	FailedAction string        `json:"failed_action,omitempty"`
}

// StepRecord is one step of a command invocation.
type StepRecord struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id"`
	Position    int           `json:"position"`
	Name        string        `json:"name"`
	Status      engine.Status `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// ActionRecord is one attempt of an action.
type ActionRecord struct {
	ID          string        `json:"id"`
	RunID       string        `json:"run_id"`
	StepID      string        `json:"step_id"`
	StepName    string        `json:"step_name"`
	Name        string        `json:"name"`
	Attempt     int           `json:"attempt"`
	Status      engine.Status `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	ErrorClass  string        `json:"error_class,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// RunDetail is a command invocation with its steps and action attempts.
type RunDetail struct {
	Command *CommandRecord  `json:"command"`
	Steps   []*StepRecord   `json:"steps"`
	Actions []*ActionRecord `json:"actions"`
}
