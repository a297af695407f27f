package engine

import (
	"encoding/json"
	"fmt"
)

// Status represents the outcome of a command, step or action execution.
type Status string

const (
	// StatusPending indicates the unit has not started yet.
	StatusPending Status = "pending"

	// StatusRunning indicates the unit is currently executing.
	StatusRunning Status = "running"

	// StatusSucceeded indicates the unit completed successfully.
	StatusSucceeded Status = "succeeded"

	// StatusFailed indicates the unit failed.
	StatusFailed Status = "failed"

	// StatusSkipped indicates the unit never ran because an earlier unit failed.
	StatusSkipped Status = "skipped"

	// StatusCancelled indicates the unit was interrupted.
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed ||
		s == StatusSkipped || s == StatusCancelled
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusPending, StatusRunning, StatusSucceeded,
		StatusFailed, StatusSkipped, StatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Status(str)
	return s.Validate()
}

// Level identifies which layer of the execution hierarchy a record belongs to.
type Level string

const (
	LevelCommand Level = "command"
	LevelStep    Level = "step"
	LevelAction  Level = "action"
)

// statusFor maps an execution error onto a final status. It takes the
// concrete type so that a nil result never becomes a non-nil error.
func statusFor(err *EngineError) Status {
	if err == nil {
		return StatusSucceeded
	}
	if err.Kind == KindCancelled {
		return StatusCancelled
	}
	return StatusFailed
}
