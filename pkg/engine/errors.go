package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: SSH not accepting connections yet, health endpoint not ready.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion.
	// Should be retried with a longer backoff.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a resource state conflict.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid configuration, permission denied, missing binary.
	ErrorClassPermanent ErrorClass = "permanent"
)

// ErrorKind places an error in the deployer's error taxonomy. The kind decides
// how the error is surfaced and which remediation text applies.
type ErrorKind string

const (
	// KindValidation is malformed input detected before any side effect.
	KindValidation ErrorKind = "validation"

	// KindStateTransition is an operation incompatible with the current lifecycle state.
	KindStateTransition ErrorKind = "state_transition"

	// KindRepository is an I/O or serialization failure of the state repository.
	KindRepository ErrorKind = "repository"

	// KindAction is a failure raised while executing an Action.
	KindAction ErrorKind = "action"

	// KindCancelled is a command interrupted by context cancellation.
	KindCancelled ErrorKind = "cancelled"

	// KindInternal is a broken programming invariant.
	KindInternal ErrorKind = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind places the error in the taxonomy.
	Kind ErrorKind `json:"kind"`

	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the short human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Environment is the environment the failing operation targeted.
	Environment string `json:"environment,omitempty"`

	// Command is the top-level command that was running.
	Command string `json:"command,omitempty"`

	// Step is the step that failed, if any.
	Step string `json:"step,omitempty"`

	// Action is the action that failed, if any.
	Action string `json:"action,omitempty"`

	// Remediation is the extended, actionable help text.
	Remediation string `json:"help,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if loc := e.location(); loc != "" {
		msg += " (" + loc + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) location() string {
	var loc string
	add := func(k, v string) {
		if v == "" {
			return
		}
		if loc != "" {
			loc += ", "
		}
		loc += k + "=" + v
	}
	add("environment", e.Environment)
	add("step", e.Step)
	add("action", e.Action)
	return loc
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
// A target with an empty Code matches any error of the same kind.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// Help returns the remediation text, falling back to the default for the kind.
func (e *EngineError) Help() string {
	if e == nil {
		return ""
	}
	if e.Remediation != "" {
		return e.Remediation
	}
	var h helper
	if errors.As(e.Err, &h) {
		if text := h.Help(); text != "" {
			return text
		}
	}
	return defaultHelp(e.Kind)
}

// helper is implemented by domain errors that know their own remediation.
type helper interface {
	Help() string
}

func defaultHelp(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return "Fix the reported input and run the command again. Nothing was changed."
	case KindStateTransition:
		return "Check the current state with 'deployer show <environment>' and run the prerequisite command first."
	case KindRepository:
		return "Check that the data directory exists, is readable and writable by the current user, and that the environment file contains valid JSON."
	case KindAction:
		return "Inspect the failed step with 'deployer history <environment>', fix the cause, then re-run the same command. Completed steps are safe to repeat."
	case KindCancelled:
		return "The command was interrupted before anything was persisted. Re-run it."
	default:
		return "This is a bug in the deployer. Please report it together with the log output."
	}
}

func newError(kind ErrorKind, class ErrorClass, code, message string, err error) *EngineError {
	return &EngineError{
		Kind:    kind,
		Class:   class,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates an error for malformed input.
func NewValidationError(message string, err error) *EngineError {
	return newError(KindValidation, ErrorClassPermanent, ErrCodeValidation, message, err)
}

// NewStateTransitionError creates an error for an operation that does not fit the current state.
func NewStateTransitionError(message string, err error) *EngineError {
	return newError(KindStateTransition, ErrorClassPermanent, ErrCodeInvalidState, message, err)
}

// NewRepositoryError creates an error for a state repository failure.
func NewRepositoryError(message string, err error) *EngineError {
	return newError(KindRepository, ErrorClassPermanent, ErrCodeRepository, message, err)
}

// NewTransientError creates a new transient action error.
func NewTransientError(message string, err error) *EngineError {
	return newError(KindAction, ErrorClassTransient, ErrCodeActionFailed, message, err)
}

// NewThrottledError creates a new throttled action error.
func NewThrottledError(message string, err error) *EngineError {
	return newError(KindAction, ErrorClassThrottled, ErrCodeRateLimited, message, err)
}

// NewConflictError creates a new conflict action error.
func NewConflictError(message string, err error) *EngineError {
	return newError(KindAction, ErrorClassConflict, ErrCodeConflict, message, err)
}

// NewPermanentError creates a new permanent action error.
func NewPermanentError(message string, err error) *EngineError {
	return newError(KindAction, ErrorClassPermanent, ErrCodeActionFailed, message, err)
}

// NewCancelledError creates an error for an interrupted command.
func NewCancelledError(err error) *EngineError {
	return newError(KindCancelled, ErrorClassPermanent, ErrCodeCancelled, "operation cancelled", err)
}

// NewInternalError creates an error for a broken invariant.
func NewInternalError(message string, err error) *EngineError {
	return newError(KindInternal, ErrorClassPermanent, ErrCodeInternal, message, err)
}

// WithEnvironment adds environment context to an error.
func (e *EngineError) WithEnvironment(name string) *EngineError {
	e.Environment = name
	return e
}

// WithCommand adds command context to an error.
func (e *EngineError) WithCommand(command string) *EngineError {
	e.Command = command
	return e
}

// WithStep adds step context to an error.
func (e *EngineError) WithStep(step string) *EngineError {
	e.Step = step
	return e
}

// WithAction adds action context to an error.
func (e *EngineError) WithAction(action string) *EngineError {
	e.Action = action
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithHelp sets the remediation text.
func (e *EngineError) WithHelp(help string) *EngineError {
	e.Remediation = help
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// clone returns a shallow copy so callers can add context without touching shared values.
func (e *EngineError) clone() *EngineError {
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// AsEngineError extracts a non-nil *EngineError from the error chain.
func AsEngineError(err error) (*EngineError, bool) {
	var e *EngineError
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// temporary is implemented by transport errors that know whether they are retryable.
type temporary interface {
	Temporary() bool
}

// Classify converts any error into an *EngineError.
// Errors already in the taxonomy are returned as copies; context errors become
// cancelled or transient; errors reporting Temporary() become transient; the
// rest are permanent action errors.
func Classify(err error) *EngineError {
	if err == nil {
		return nil
	}
	if e, ok := AsEngineError(err); ok {
		return e.clone()
	}
	if errors.Is(err, context.Canceled) {
		return NewCancelledError(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError("operation timed out", err).WithCode(ErrCodeTimeout)
	}
	var t temporary
	if errors.As(err, &t) && t.Temporary() {
		return NewTransientError("temporary failure", err)
	}
	return NewPermanentError("execution failed", err)
}

// KindOf returns the taxonomy kind of err, or KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	if e, ok := AsEngineError(err); ok {
		return e.Kind
	}
	return KindInternal
}

// HelpFor returns the remediation text for any error.
func HelpFor(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := AsEngineError(err); ok {
		return e.Help()
	}
	var h helper
	if errors.As(err, &h) {
		return h.Help()
	}
	return defaultHelp(KindInternal)
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	e, ok := AsEngineError(err)
	return ok && e.Class == ErrorClassTransient
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	e, ok := AsEngineError(err)
	return ok && e.Class == ErrorClassThrottled
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	e, ok := AsEngineError(err)
	return ok && e.Class == ErrorClassConflict
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	e, ok := AsEngineError(err)
	return ok && e.Class == ErrorClassPermanent
}

// IsRetryable returns true if the error can be retried.
// Only action errors of class transient, throttled or conflict qualify.
func IsRetryable(err error) bool {
	if KindOf(err) != KindAction {
		return false
	}
	return IsTransient(err) || IsThrottled(err) || IsConflict(err)
}

// Common error codes.
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeAlreadyExists        = "ALREADY_EXISTS"
	ErrCodeInvalidState         = "INVALID_STATE"
	ErrCodeRepository           = "REPOSITORY_ERROR"
	ErrCodePermissionDenied     = "PERMISSION_DENIED"
	ErrCodeCorrupted            = "CORRUPTED"
	ErrCodeTimeout              = "TIMEOUT"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeConflict             = "CONFLICT"
	ErrCodeInternal             = "INTERNAL_ERROR"
	ErrCodeActionFailed         = "ACTION_FAILED"
	ErrCodeCancelled            = "CANCELLED"
	ErrCodePolicyDenied         = "POLICY_DENIED"
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
)
