package engine

import (
	"context"
	"time"
)

// Record describes the start or the end of one unit of execution.
type Record struct {
	// RunID identifies the command invocation all records belong to.
	RunID string `json:"run_id"`

	// ID identifies this unit. Start and End of the same unit share it.
	ID string `json:"id"`

	// ParentID is the ID of the enclosing unit, empty for commands.
	ParentID string `json:"parent_id,omitempty"`

	Level       Level  `json:"level"`
	Command     string `json:"command"`
	Environment string `json:"environment"`
	Step        string `json:"step,omitempty"`
	Action      string `json:"action,omitempty"`

	// Position is the zero-based index of a step within its command.
	Position int `json:"position"`

	// Attempt is the 1-based attempt number of an action.
	Attempt int `json:"attempt,omitempty"`

	StartedAt time.Time `json:"started_at"`

	// Duration and Status are only set on End.
	Duration time.Duration `json:"duration,omitempty"`
	Status   Status        `json:"status"`
	Err      error         `json:"-"`
}

// Observer receives start and end notifications for commands, steps and actions.
// Start may return a derived context, which the runner passes to the unit and
// its children and finally to End.
type Observer interface {
	Start(ctx context.Context, rec Record) context.Context
	End(ctx context.Context, rec Record)
}

// Observers fans records out to several observers in order.
type Observers []Observer

// Start implements Observer.
func (o Observers) Start(ctx context.Context, rec Record) context.Context {
	for _, obs := range o {
		if obs != nil {
			ctx = obs.Start(ctx, rec)
		}
	}
	return ctx
}

// End implements Observer. Observers are notified in reverse order so that
// nested spans close before their parents.
func (o Observers) End(ctx context.Context, rec Record) {
	for i := len(o) - 1; i >= 0; i-- {
		if o[i] != nil {
			o[i].End(ctx, rec)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Start(ctx context.Context, _ Record) context.Context { return ctx }
func (nopObserver) End(context.Context, Record)                         {}

// NopObserver returns an observer that ignores all records.
func NopObserver() Observer {
	return nopObserver{}
}
