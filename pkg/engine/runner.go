package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Runner executes the steps of a command strictly in order. A failed step
// aborts the command and the remaining steps are reported as skipped.
// Every command produces exactly one start and one end record.
type Runner struct {
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSleep replaces the function used to wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a runner reporting to observer. A nil observer is allowed.
func NewRunner(observer Observer, opts ...RunnerOption) *Runner {
	if observer == nil {
		observer = NopObserver()
	}
	r := &Runner{
		observer: observer,
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes steps for inv inside a single command record. The returned
// result is always non-nil; the error is an *EngineError carrying command,
// step and action context.
func (r *Runner) Run(ctx context.Context, inv Invocation, steps []Step) (*CommandResult, error) {
	x := r.Begin(ctx, inv)
	result := x.Finish(x.Run(steps))
	if result.Error != nil {
		return result, result.Error
	}
	return result, nil
}

// Execution is an open command record. Steps run inside it with Run; Finish
// closes it with the command's final outcome, which may come from work done
// outside any step such as loading or saving the environment.
type Execution struct {
	r       *Runner
	ctx     context.Context
	rec     Record
	result  *CommandResult
	stepErr *EngineError
	blocked bool
	done    bool
}

// Begin opens the command record for inv and reports its start.
func (r *Runner) Begin(ctx context.Context, inv Invocation) *Execution {
	runID := uuid.New().String()
	start := r.now()

	rec := Record{
		RunID:       runID,
		ID:          runID,
		Level:       LevelCommand,
		Command:     inv.Command,
		Environment: inv.Environment,
		StartedAt:   start,
		Status:      StatusRunning,
	}
	return &Execution{
		r:   r,
		ctx: r.observer.Start(ctx, rec),
		rec: rec,
		result: &CommandResult{
			RunID:       runID,
			Command:     inv.Command,
			Environment: inv.Environment,
			Status:      StatusRunning,
			Steps:       []StepResult{},
			StartedAt:   start,
		},
	}
}

// SetEnvironment names the target environment when it is only known after
// the command started.
func (x *Execution) SetEnvironment(name string) {
	x.rec.Environment = name
	x.result.Environment = name
}

// Result returns the command result, final once Finish was called.
func (x *Execution) Result() *CommandResult {
	return x.result
}

// Run executes steps in order. After a failed step the remaining steps are
// reported as skipped, unless the step was marked with ContinueOnFailure.
// The error is the first step failure, or the cancellation.
func (x *Execution) Run(steps []Step) error {
	for _, s := range steps {
		if x.blocked {
			x.result.Steps = append(x.result.Steps, StepResult{Name: s.Name(), Status: StatusSkipped})
			continue
		}
		if err := x.ctx.Err(); err != nil {
			x.fail(NewCancelledError(err).WithStep(s.Name()), true)
			x.result.Steps = append(x.result.Steps, StepResult{Name: s.Name(), Status: StatusCancelled})
			continue
		}

		sr, err := x.r.runStep(x.ctx, x.rec, len(x.result.Steps), s)
		x.result.Steps = append(x.result.Steps, sr)
		if err != nil {
			x.fail(err, !continuesOnFailure(s) || err.Kind == KindCancelled)
		}
	}
	if x.stepErr != nil {
		return x.stepErr
	}
	return nil
}

func (x *Execution) fail(err *EngineError, block bool) {
	if x.stepErr == nil || err.Kind == KindCancelled {
		x.stepErr = err.WithCommand(x.rec.Command).WithEnvironment(x.rec.Environment)
	}
	if block {
		x.blocked = true
	}
}

// Finish closes the command record with err as the final outcome. A nil err
// after a failed step still finishes the command as failed. Calls after the
// first return the same result.
func (x *Execution) Finish(err error) *CommandResult {
	if x.done {
		return x.result
	}
	x.done = true

	final, ok := AsEngineError(err)
	if !ok {
		final = Classify(err)
	}
	if final == nil {
		final = x.stepErr
	}
	if final != nil {
		if final.Command == "" {
			final.WithCommand(x.rec.Command)
		}
		if final.Environment == "" {
			final.WithEnvironment(x.rec.Environment)
		}
	}

	end := x.r.now()
	x.result.CompletedAt = end
	x.result.Duration = end.Sub(x.result.StartedAt)
	x.result.Status = statusFor(final)
	x.result.Error = final

	rec := x.rec
	rec.Duration = x.result.Duration
	rec.Status = x.result.Status
	if final != nil {
		rec.Err = final
	}
	x.r.observer.End(x.ctx, rec)

	return x.result
}

func (r *Runner) runStep(ctx context.Context, parent Record, position int, s Step) (StepResult, *EngineError) {
	start := r.now()
	rec := parent
	rec.ID = uuid.New().String()
	rec.ParentID = parent.ID
	rec.Level = LevelStep
	rec.Step = s.Name()
	rec.Position = position
	rec.StartedAt = start
	rec.Status = StatusRunning

	stepCtx := r.observer.Start(ctx, rec)

	sr := StepResult{Name: s.Name(), Status: StatusRunning}
	var stepErr *EngineError
	for _, a := range s.Actions() {
		if stepErr != nil {
			sr.Actions = append(sr.Actions, ActionResult{Name: a.Name(), Status: StatusSkipped})
			continue
		}
		ar, err := r.runAction(stepCtx, rec, a)
		sr.Actions = append(sr.Actions, ar)
		if err != nil {
			stepErr = err.WithStep(s.Name())
		}
	}

	sr.Duration = r.now().Sub(start)
	sr.Status = StatusSucceeded
	if stepErr != nil {
		sr.Status = statusFor(stepErr)
	}

	rec.Duration = sr.Duration
	rec.Status = sr.Status
	if stepErr != nil {
		rec.Err = stepErr
	}
	r.observer.End(stepCtx, rec)

	return sr, stepErr
}

func (r *Runner) runAction(ctx context.Context, parent Record, a Action) (ActionResult, *EngineError) {
	attempts, policy := maxAttempts(a)
	start := r.now()
	ar := ActionResult{Name: a.Name()}

	var lastErr *EngineError
	for attempt := 1; attempt <= attempts; attempt++ {
		ar.Attempts = attempt
		lastErr = r.attempt(ctx, parent, a, attempt)
		if lastErr == nil {
			break
		}
		if attempt == attempts || !IsRetryable(lastErr) {
			break
		}
		if ctx.Err() != nil {
			lastErr = NewCancelledError(ctx.Err())
			break
		}
		if err := r.sleep(ctx, policy.Backoff(attempt, lastErr)); err != nil {
			lastErr = NewCancelledError(err)
			break
		}
	}

	ar.Duration = r.now().Sub(start)
	ar.Status = statusFor(lastErr)
	if lastErr != nil {
		lastErr.WithAction(a.Name()).WithDetail("attempts", ar.Attempts)
		ar.Error = lastErr.Error()
		return ar, lastErr
	}
	return ar, nil
}

func (r *Runner) attempt(ctx context.Context, parent Record, a Action, attempt int) *EngineError {
	start := r.now()
	rec := parent
	rec.ID = uuid.New().String()
	rec.ParentID = parent.ID
	rec.Level = LevelAction
	rec.Action = a.Name()
	rec.Attempt = attempt
	rec.StartedAt = start
	rec.Status = StatusRunning

	actionCtx := r.observer.Start(ctx, rec)
	err := a.Execute(actionCtx)

	var classified *EngineError
	if err != nil {
		classified = Classify(err)
		// A context error raised because the parent was cancelled is a cancellation,
		// even when the action reported it as a timeout.
		if ctx.Err() != nil && classified.Kind != KindCancelled {
			classified = NewCancelledError(err)
		}
	}

	rec.Duration = r.now().Sub(start)
	rec.Status = statusFor(classified)
	if classified != nil {
		rec.Err = classified
	}
	r.observer.End(actionCtx, rec)

	return classified
}
