package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/deployer/pkg/artifacts"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

// Provision creates the instance of a Created environment and waits until it
// accepts SSH connections and cloud-init has finished.
func (c *Container) Provision(ctx context.Context, name string) (_ *ProvisionResult, err error) {
	inv := engine.Invocation{Command: CommandProvision, Environment: name}
	x := c.begin(ctx, inv)
	defer func() { x.Finish(err) }()

	env, err := c.load(ctx, inv)
	if err != nil {
		return nil, err
	}
	created, err := environment.Require[*environment.Created](env)
	if err != nil {
		return nil, fail(inv, err)
	}
	warnings, err := c.guard(ctx, inv, env, false)
	if err != nil {
		return nil, err
	}

	common := created.Base()
	var (
		infra artifacts.Infrastructure
		ip    string
	)
	r := &remote{c: c}
	defer r.close()

	steps := []engine.Step{
		engine.NewStep("render-infrastructure",
			engine.NewAction("render-tofu", func(context.Context) error {
				var err error
				infra, err = c.Artifacts.Infrastructure(common)
				return err
			}),
		),
		engine.NewStep("create-instance",
			engine.Retrying(engine.WithTimeout(engine.NewAction("tofu-init", func(ctx context.Context) error {
				return c.Infrastructure.Init(ctx, infra.Dir, infra.Env)
			}), c.Timeouts.Tool), c.Retry.ProviderAPI),
			engine.Retrying(engine.WithTimeout(engine.NewAction("tofu-apply", func(ctx context.Context) error {
				return c.Infrastructure.Apply(ctx, infra.Dir, infra.Env)
			}), c.Timeouts.Tool), c.Retry.ProviderAPI),
			engine.NewAction("read-instance-ip", func(ctx context.Context) error {
				var err error
				ip, err = c.Infrastructure.Output(ctx, infra.Dir, infra.Env, artifacts.InstanceIPOutput)
				if err != nil {
					return err
				}
				r.cfg = c.sshConfig(common, ip)
				return nil
			}),
		),
		engine.NewStep("wait-for-ssh", c.connectAction(r)),
		engine.NewStep("wait-for-cloud-init", c.cloudInitAction(r)),
	}

	exec, err := c.execute(x, steps)
	if err != nil {
		return &ProvisionResult{Name: common.Name, InstanceIP: ip, Execution: exec}, err
	}

	provisioned := created.Provision(ip, c.now())
	if err := c.save(ctx, inv, provisioned); err != nil {
		return &ProvisionResult{Name: common.Name, InstanceIP: ip, Execution: exec}, err
	}

	return &ProvisionResult{
		Name:          common.Name,
		InstanceIP:    ip,
		SSHUser:       common.Credentials.Username,
		SSHPort:       common.Credentials.Port,
		SSHKeyPath:    common.Credentials.PrivateKeyPath,
		Provider:      common.Provider.Kind,
		ProvisionedAt: provisioned.Instance.ProvisionedAt,
		Domains:       common.Services.Domains(),
		Warnings:      warnings,
		Execution:     exec,
	}, nil
}

// cloudInitAction polls "cloud-init status" until it reports done.
func (c *Container) cloudInitAction(r *remote) engine.Action {
	a := engine.NewAction("cloud-init-status", func(ctx context.Context) error {
		res, err := r.run(ctx, "cloud-init status || true")
		if err != nil {
			return err
		}
		return cloudInitDone(res.Stdout)
	})
	return engine.Retrying(a, c.Retry.CloudInit)
}

// cloudInitDone interprets the output of "cloud-init status".
func cloudInitDone(out string) error {
	switch {
	case strings.Contains(out, "status: done"):
		return nil
	case strings.Contains(out, "status: error"), strings.Contains(out, "status: degraded"):
		return engine.NewPermanentError(fmt.Sprintf("cloud-init failed: %s", strings.TrimSpace(out)), nil).
			WithHelp("Inspect /var/log/cloud-init-output.log on the instance, then destroy and provision again.")
	default:
		return engine.NewTransientError(fmt.Sprintf("cloud-init not finished: %s", strings.TrimSpace(out)), nil)
	}
}
