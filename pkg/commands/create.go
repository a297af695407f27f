package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/deployer/pkg/config"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

// CreateOptions are the inputs of Create.
type CreateOptions struct {
	// ConfigPath is the creation config file (.yaml, .yml, .json or .cue).
	ConfigPath string
}

// Create registers a new environment in the Created state.
func (c *Container) Create(ctx context.Context, opts CreateOptions) (_ *CreateResult, err error) {
	inv := engine.Invocation{Command: CommandCreate}
	x := c.begin(ctx, inv)
	defer func() { x.Finish(err) }()

	cfg, err := c.Loader.LoadFile(opts.ConfigPath)
	if err != nil {
		return nil, fail(inv, err)
	}
	inv.Environment = cfg.Name
	x.SetEnvironment(cfg.Name)

	var created *environment.Created
	steps := []engine.Step{
		engine.NewStep("validate-config",
			engine.NewAction("build-environment", func(context.Context) error {
				env, err := newEnvironment(cfg, c.now())
				if err != nil {
					return err
				}
				created = env
				return nil
			}),
		),
		engine.NewStep("check-availability",
			engine.NewAction("check-name-unused", func(ctx context.Context) error {
				_, found, err := c.Repository.Load(ctx, environment.Name(cfg.Name))
				if err != nil {
					return classify(err)
				}
				if found {
					return engine.NewValidationError(fmt.Sprintf("environment %q already exists", cfg.Name), nil).
						WithCode(engine.ErrCodeAlreadyExists).
						WithHelp(fmt.Sprintf("Choose another name, or remove the old one with 'deployer purge %s'.", cfg.Name))
				}
				return nil
			}),
		),
	}

	warnings, err := c.guard(ctx, inv, nil, false)
	if err != nil {
		return nil, err
	}

	exec, err := c.execute(x, steps)
	if err != nil {
		return &CreateResult{Name: environment.Name(cfg.Name), Execution: exec}, err
	}
	if err := c.save(ctx, inv, created); err != nil {
		return &CreateResult{Name: created.Name, Execution: exec}, err
	}

	return &CreateResult{
		Name:         created.Name,
		State:        created.State(),
		InstanceName: created.InstanceName,
		Provider:     created.Provider.Kind,
		Warnings:     warnings,
		Execution:    exec,
	}, nil
}

// newEnvironment converts a validated config into a Created environment.
func newEnvironment(cfg *config.EnvironmentConfig, at time.Time) (*environment.Created, error) {
	common, err := cfg.ToCommon()
	if err != nil {
		return nil, engine.NewValidationError(fmt.Sprintf("invalid environment config: %v", err), err)
	}
	created, err := environment.New(common, at)
	if err != nil {
		if e := classify(err); e.Kind == engine.KindValidation {
			return nil, e
		}
		return nil, engine.NewValidationError(fmt.Sprintf("invalid environment: %v", err), err)
	}
	return created, nil
}
