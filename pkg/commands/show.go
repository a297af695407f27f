package commands

import (
	"context"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

// Show returns the stored environment with the fields of its state. It
// does not contact the instance.
func (c *Container) Show(ctx context.Context, name string) (_ *ShowResult, err error) {
	inv := engine.Invocation{Command: CommandShow, Environment: name}
	x := c.begin(ctx, inv)
	defer func() { x.Finish(err) }()

	env, err := c.load(ctx, inv)
	if err != nil {
		return nil, err
	}
	common := env.Base()

	out := &ShowResult{
		Name:         common.Name,
		State:        env.State(),
		InstanceName: common.InstanceName,
		Provider:     common.Provider.Redacted(),
		SSHUser:      common.Credentials.Username,
		SSHPort:      common.Credentials.Port,
		SSHKeyPath:   common.Credentials.PrivateKeyPath,
		Services:     common.Services,
		Labels:       common.Labels,
		CreatedAt:    common.CreatedAt,
		UpdatedAt:    common.UpdatedAt,
		NextCommand:  nextCommand(env.State()),
	}

	switch e := env.(type) {
	case *environment.Provisioned:
		out.setInstance(e.Instance)
	case *environment.Configured:
		out.setInstance(e.Instance)
		out.ConfiguredAt = &e.ConfiguredAt
	case *environment.Released:
		out.setInstance(e.Instance)
		out.ConfiguredAt = &e.ConfiguredAt
		out.ReleasedAt = &e.Release.ReleasedAt
		out.ComposeDigest = e.Release.ComposeDigest
	case *environment.Running:
		out.setInstance(e.Instance)
		out.ConfiguredAt = &e.ConfiguredAt
		out.ReleasedAt = &e.Release.ReleasedAt
		out.ComposeDigest = e.Release.ComposeDigest
		out.StartedAt = &e.StartedAt
		out.Endpoints = endpoints(e.Instance.IP, common.Services)
	case *environment.Destroyed:
		out.DestroyedAt = &e.DestroyedAt
	}
	return out, nil
}

func (r *ShowResult) setInstance(inst environment.Instance) {
	r.InstanceIP = inst.IP
	r.ProvisionedAt = &inst.ProvisionedAt
}

// nextCommand names the command that moves an environment out of s.
func nextCommand(s environment.State) string {
	switch s {
	case environment.StateCreated:
		return CommandProvision
	case environment.StateProvisioned:
		return CommandConfigure
	case environment.StateConfigured:
		return CommandRelease
	case environment.StateReleased:
		return CommandRun
	case environment.StateDestroyed:
		return CommandPurge
	default:
		return ""
	}
}
