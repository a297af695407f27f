package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityWarning is reported but does not block the command.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the command.
	SeverityError Severity = "error"
)

// Policy is one Rego module contributing deny rules.
type Policy struct {
	// Name is the unique name of the policy, the file name for user policies.
	Name string `json:"name"`

	Description string `json:"description,omitempty"`

	// Rego is the module source.
	Rego string `json:"rego"`

	// Severity applies to violations that do not carry their own.
	Severity Severity `json:"severity"`

	// Source is "builtin" or the file path.
	Source string `json:"source"`
}

// Input is the document evaluated by every policy as input.
type Input struct {
	// Command is the command about to run, e.g. "destroy".
	Command string `json:"command"`

	// Environment is the target environment name.
	Environment string `json:"environment"`

	// State is the current lifecycle state. Empty for "create".
	State string `json:"state,omitempty"`

	Labels map[string]string `json:"labels"`

	// Force is set by --force.
	Force bool `json:"force"`
}

// Violation is a single deny result.
type Violation struct {
	Policy   string   `json:"policy"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Decision is the outcome of evaluating every policy for one input.
type Decision struct {
	// Allowed is false when at least one violation has error severity.
	Allowed bool `json:"allowed"`

	Violations []Violation `json:"violations,omitempty"`
	Warnings   []Violation `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}
