package commands

import (
	"context"
	"fmt"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

// PurgeOptions are the inputs of Purge.
type PurgeOptions struct {
	// Force skips confirmation and overrides protecting policies.
	Force bool

	// Confirmed is set when the operator answered the confirmation prompt.
	Confirmed bool
}

// Purge removes every local trace of an environment in any state: the
// stored document, its data directory and its build directory. It does not
// touch the instance. Purging a missing environment succeeds.
func (c *Container) Purge(ctx context.Context, name string, opts PurgeOptions) (_ *PurgeResult, err error) {
	inv := engine.Invocation{Command: CommandPurge, Environment: name}
	x := c.begin(ctx, inv)
	defer func() { x.Finish(err) }()

	n, err := environment.NewName(name)
	if err != nil {
		return nil, fail(inv, err)
	}
	if !opts.Force && !opts.Confirmed {
		return nil, engine.NewValidationError(fmt.Sprintf("purging %q requires confirmation", name), nil).
			WithCode(engine.ErrCodeConfirmationRequired).
			WithCommand(inv.Command).
			WithEnvironment(name).
			WithHelp(fmt.Sprintf("Run 'deployer purge %s --force' to purge without a prompt.", name))
	}

	result := &PurgeResult{Name: n}

	// A corrupted document is purged like any other.
	env, found, loadErr := c.Repository.Load(ctx, n)
	switch {
	case loadErr != nil:
		c.log(inv).WithError(loadErr).Warn("purging an unreadable environment")
	case found:
		result.PreviousState = env.State()
	default:
		result.AlreadyAbsent = true
	}

	if found {
		warnings, err := c.guard(ctx, inv, env, opts.Force)
		if err != nil {
			return nil, err
		}
		result.Warnings = warnings
	}

	steps := []engine.Step{
		engine.NewStep("remove-build-directory",
			engine.NewAction("remove-build-directory", func(context.Context) error {
				return c.Layout.Clean(n)
			}),
		),
		engine.NewStep("remove-state",
			engine.Destructive(engine.NewAction("delete-environment", func(ctx context.Context) error {
				return c.Repository.Delete(ctx, n)
			})),
		),
	}
	if _, err := c.execute(x, steps); err != nil {
		return nil, err
	}

	if !result.AlreadyAbsent {
		c.log(inv).Info("environment purged")
	}
	return result, nil
}
