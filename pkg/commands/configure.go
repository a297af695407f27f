package commands

import (
	"context"
	"strings"

	"github.com/openfroyo/deployer/pkg/artifacts"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

// Configure installs Docker, the compose plugin and the firewall on a
// Provisioned environment.
func (c *Container) Configure(ctx context.Context, name string) (_ *ConfigureResult, err error) {
	inv := engine.Invocation{Command: CommandConfigure, Environment: name}
	x := c.begin(ctx, inv)
	defer func() { x.Finish(err) }()

	env, err := c.load(ctx, inv)
	if err != nil {
		return nil, err
	}
	provisioned, err := environment.Require[*environment.Provisioned](env)
	if err != nil {
		return nil, fail(inv, err)
	}
	warnings, err := c.guard(ctx, inv, env, false)
	if err != nil {
		return nil, err
	}

	common := provisioned.Base()
	ip := provisioned.Instance.IP
	r := c.remote(common, ip)
	defer r.close()

	var cfg artifacts.Configuration
	steps := []engine.Step{
		engine.NewStep("render-configuration",
			engine.NewAction("render-ansible", func(context.Context) error {
				var err error
				cfg, err = c.Artifacts.Configuration(common, ip)
				return err
			}),
		),
	}
	for _, book := range artifacts.Playbooks {
		steps = append(steps, engine.NewStep(strings.TrimSuffix(book, ".yml"),
			engine.WithTimeout(engine.NewAction("ansible-playbook", func(ctx context.Context) error {
				return c.Configuration.Playbook(ctx, cfg.Dir, cfg.Inventory, cfg.Variables, book)
			}), c.Timeouts.Tool),
		))
	}
	steps = append(steps, engine.NewStep("verify-docker",
		c.connectAction(r),
		remoteAction("docker-compose-version", r, "docker compose version"),
	))

	exec, err := c.execute(x, steps)
	if err != nil {
		return &ConfigureResult{Name: common.Name, InstanceIP: ip, Execution: exec}, err
	}

	configured := provisioned.Configure(c.now())
	if err := c.save(ctx, inv, configured); err != nil {
		return &ConfigureResult{Name: common.Name, InstanceIP: ip, Execution: exec}, err
	}

	return &ConfigureResult{
		Name:         common.Name,
		InstanceIP:   ip,
		ConfiguredAt: configured.ConfiguredAt,
		Warnings:     warnings,
		Execution:    exec,
	}, nil
}
