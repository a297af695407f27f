package engine

import (
	"context"
	"time"
)

// Action is the smallest unit of execution: one external interaction such as
// a subprocess, a remote command, a file render or an HTTP probe.
// Execute must honour ctx cancellation.
type Action interface {
	Name() string
	Execute(ctx context.Context) error
}

// Step groups an ordered sequence of actions that realise one logical phase.
type Step interface {
	Name() string
	Actions() []Action
}

type funcAction struct {
	name string
	fn   func(ctx context.Context) error
}

// NewAction builds an Action from a function.
func NewAction(name string, fn func(ctx context.Context) error) Action {
	return &funcAction{name: name, fn: fn}
}

func (a *funcAction) Name() string { return a.name }

func (a *funcAction) Execute(ctx context.Context) error {
	return a.fn(ctx)
}

type step struct {
	name    string
	actions []Action
}

// NewStep builds a Step from an ordered list of actions.
func NewStep(name string, actions ...Action) Step {
	return &step{name: name, actions: actions}
}

func (s *step) Name() string      { return s.name }
func (s *step) Actions() []Action { return s.actions }

type independentStep struct {
	Step
}

// ContinueOnFailure marks a step whose failure is recorded without skipping
// the steps after it. The command still fails.
func ContinueOnFailure(s Step) Step {
	return &independentStep{Step: s}
}

func continuesOnFailure(s Step) bool {
	_, ok := s.(*independentStep)
	return ok
}

// wrapped is implemented by decorators so options can be discovered through a chain.
type wrapped interface {
	Unwrap() Action
}

type retryingAction struct {
	Action
	policy RetryPolicy
}

// Retrying attaches a retry policy to an action.
// The policy has no effect on actions marked Destructive.
func Retrying(a Action, policy RetryPolicy) Action {
	return &retryingAction{Action: a, policy: policy}
}

func (a *retryingAction) Unwrap() Action { return a.Action }

type destructiveAction struct {
	Action
}

// Destructive marks an action as non-idempotent. Destructive actions are
// never retried, regardless of any attached policy.
func Destructive(a Action) Action {
	return &destructiveAction{Action: a}
}

func (a *destructiveAction) Unwrap() Action { return a.Action }

type timeoutAction struct {
	Action
	timeout time.Duration
}

// WithTimeout bounds every attempt of an action by d.
func WithTimeout(a Action, d time.Duration) Action {
	return &timeoutAction{Action: a, timeout: d}
}

func (a *timeoutAction) Unwrap() Action { return a.Action }

func (a *timeoutAction) Execute(ctx context.Context) error {
	if a.timeout <= 0 {
		return a.Action.Execute(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.Action.Execute(ctx)
}

// RetryPolicyOf returns the policy attached to a, if any.
func RetryPolicyOf(a Action) (RetryPolicy, bool) {
	for a != nil {
		if r, ok := a.(*retryingAction); ok {
			return r.policy, true
		}
		w, ok := a.(wrapped)
		if !ok {
			break
		}
		a = w.Unwrap()
	}
	return RetryPolicy{}, false
}

// IsDestructive reports whether a was marked with Destructive anywhere in its decorator chain.
func IsDestructive(a Action) bool {
	for a != nil {
		if _, ok := a.(*destructiveAction); ok {
			return true
		}
		w, ok := a.(wrapped)
		if !ok {
			break
		}
		a = w.Unwrap()
	}
	return false
}

// maxAttempts is the number of times the runner may execute a.
func maxAttempts(a Action) (int, RetryPolicy) {
	policy, ok := RetryPolicyOf(a)
	if !ok || IsDestructive(a) || policy.MaxAttempts < 1 {
		return 1, policy
	}
	return policy.MaxAttempts, policy
}
