package commands

import (
	"context"

	"github.com/openfroyo/deployer/pkg/artifacts"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

// DestroyOptions are the inputs of Destroy.
type DestroyOptions struct {
	// Force overrides policies that protect the environment.
	Force bool
}

// Destroy tears down the instance of any non-terminal environment and
// removes its build directory. The record stays until purge.
func (c *Container) Destroy(ctx context.Context, name string, opts DestroyOptions) (_ *DestroyResult, err error) {
	inv := engine.Invocation{Command: CommandDestroy, Environment: name}
	x := c.begin(ctx, inv)
	defer func() { x.Finish(err) }()

	env, err := c.load(ctx, inv)
	if err != nil {
		return nil, err
	}
	if err := environment.Transition(env.Base().Name, env.State(), environment.StateDestroyed); err != nil {
		return nil, fail(inv, err)
	}
	warnings, err := c.guard(ctx, inv, env, opts.Force)
	if err != nil {
		return nil, err
	}

	common := env.Base()
	var steps []engine.Step

	// A Created environment has infrastructure only if an earlier provision
	// got as far as rendering the tofu files.
	if env.State().HasInstance() || c.Layout.HasInfrastructure(common.Name) {
		var infra artifacts.Infrastructure
		steps = append(steps, engine.NewStep("destroy-infrastructure",
			engine.NewAction("render-tofu", func(context.Context) error {
				var err error
				infra, err = c.Artifacts.Infrastructure(common)
				return err
			}),
			engine.WithTimeout(engine.NewAction("tofu-init", func(ctx context.Context) error {
				return c.Infrastructure.Init(ctx, infra.Dir, infra.Env)
			}), c.Timeouts.Tool),
			engine.Destructive(engine.WithTimeout(engine.NewAction("tofu-destroy", func(ctx context.Context) error {
				return c.Infrastructure.Destroy(ctx, infra.Dir, infra.Env)
			}), c.Timeouts.Tool)),
		))
	}
	steps = append(steps, engine.NewStep("clean-build-directory",
		engine.NewAction("remove-build-directory", func(context.Context) error {
			return c.Layout.Clean(common.Name)
		}),
	))

	exec, err := c.execute(x, steps)
	if err != nil {
		return &DestroyResult{Name: common.Name, PreviousState: env.State(), Execution: exec}, err
	}

	destroyed, err := environment.Destroy(env, c.now())
	if err != nil {
		return nil, fail(inv, err)
	}
	if err := c.save(ctx, inv, destroyed); err != nil {
		return &DestroyResult{Name: common.Name, PreviousState: env.State(), Execution: exec}, err
	}

	return &DestroyResult{
		Name:          common.Name,
		PreviousState: env.State(),
		DestroyedAt:   destroyed.DestroyedAt,
		Warnings:      warnings,
		Execution:     exec,
	}, nil
}
