package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
	"github.com/openfroyo/deployer/pkg/policy"
	"github.com/openfroyo/deployer/pkg/telemetry"
	"github.com/openfroyo/deployer/pkg/transports/ssh"
)

// Command names.
const (
	CommandCreate    = "create"
	CommandProvision = "provision"
	CommandConfigure = "configure"
	CommandRelease   = "release"
	CommandRun       = "run"
	CommandDestroy   = "destroy"
	CommandTest      = "test"
	CommandList      = "list"
	CommandPurge     = "purge"
	CommandShow      = "show"
	CommandHistory   = "history"
)

// load resolves name and reads the stored environment. A missing
// environment is a state transition error.
func (c *Container) load(ctx context.Context, inv engine.Invocation) (environment.AnyEnvironment, error) {
	name, err := environment.NewName(inv.Environment)
	if err != nil {
		return nil, fail(inv, err)
	}
	env, found, err := c.Repository.Load(ctx, name)
	if err != nil {
		return nil, fail(inv, err)
	}
	if !found {
		return nil, notFound(name).WithCommand(inv.Command).WithEnvironment(inv.Environment)
	}
	return env, nil
}

// guard evaluates the policies for inv against env and logs warnings.
func (c *Container) guard(ctx context.Context, inv engine.Invocation, env environment.AnyEnvironment, force bool) ([]string, error) {
	if c.Guard == nil {
		return nil, nil
	}
	in := policy.Input{Command: inv.Command, Environment: inv.Environment, Force: force}
	if env != nil {
		in.State = string(env.State())
		in.Labels = env.Base().Labels
	}

	violations, err := c.Guard.Check(ctx, in)
	if err != nil {
		return nil, err
	}
	warnings := make([]string, 0, len(violations))
	for _, v := range violations {
		c.log(inv).WithField("policy", v.Policy).Warn(v.Message)
		warnings = append(warnings, v.Message)
	}
	return warnings, nil
}

// begin opens the command record for inv. Handlers close it with the error
// they return, so rejected commands and failed saves are recorded too.
func (c *Container) begin(ctx context.Context, inv engine.Invocation) *engine.Execution {
	return c.runner().Begin(ctx, inv)
}

// execute runs steps inside x. The report is always non-nil; the error is an
// *engine.EngineError naming the failed step and action.
func (c *Container) execute(x *engine.Execution, steps []engine.Step) (*engine.CommandResult, error) {
	err := x.Run(steps)
	return x.Result(), err
}

// save persists env after a successful command.
func (c *Container) save(ctx context.Context, inv engine.Invocation, env environment.AnyEnvironment) error {
	if err := c.Repository.Save(ctx, env); err != nil {
		return fail(inv, err)
	}
	c.log(inv).WithField("state", env.State()).Info("environment saved")
	return nil
}

func (c *Container) log(inv engine.Invocation) *telemetry.Logger {
	return c.logger().WithCommand(inv.Command).WithEnvironment(inv.Environment)
}

// sshConfig describes how to reach the instance of env at ip.
func (c *Container) sshConfig(common environment.Common, ip string) *ssh.Config {
	cfg := ssh.DefaultConfig(ip, common.Credentials.Username)
	cfg.Port = common.Credentials.Port
	cfg.PrivateKeyPath = common.Credentials.PrivateKeyPath
	if c.Timeouts.SSHConnect > 0 {
		cfg.ConnectionTimeout = c.Timeouts.SSHConnect
	}
	if c.Timeouts.RemoteCommand > 0 {
		cfg.CommandTimeout = c.Timeouts.RemoteCommand
	}
	return cfg
}

// remote keeps one SSH connection open across the actions of a command.
type remote struct {
	c     *Container
	cfg   *ssh.Config
	shell RemoteShell
}

func (c *Container) remote(common environment.Common, ip string) *remote {
	return &remote{c: c, cfg: c.sshConfig(common, ip)}
}

// connect dials the instance unless already connected.
func (r *remote) connect(ctx context.Context) error {
	if r.shell != nil {
		return nil
	}
	shell, err := r.c.Dialer.Dial(ctx, r.cfg)
	if err != nil {
		return err
	}
	r.shell = shell
	return nil
}

// run executes cmd, connecting first if needed.
func (r *remote) run(ctx context.Context, cmd string) (ssh.ExecResult, error) {
	if err := r.connect(ctx); err != nil {
		return ssh.ExecResult{}, err
	}
	res, err := r.shell.Run(ctx, cmd)
	if err != nil {
		// Drop the connection so a retry dials again.
		if !engine.IsPermanent(engine.Classify(err)) {
			r.close()
		}
		return res, err
	}
	return res, nil
}

func (r *remote) close() {
	if r.shell != nil {
		_ = r.shell.Close()
		r.shell = nil
	}
}

// connectAction returns the retried "connect" action of remote commands.
func (c *Container) connectAction(r *remote) engine.Action {
	a := engine.NewAction("ssh-connect", func(ctx context.Context) error {
		if _, err := r.run(ctx, "true"); err != nil {
			return err
		}
		return nil
	})
	if c.Timeouts.SSHConnect > 0 {
		a = engine.WithTimeout(a, c.Timeouts.SSHConnect*2)
	}
	return engine.Retrying(a, c.Retry.SSHConnectivity)
}

// remoteAction runs a shell command on the instance once.
func remoteAction(name string, r *remote, cmd string) engine.Action {
	return engine.NewAction(name, func(ctx context.Context) error {
		_, err := r.run(ctx, cmd)
		return err
	})
}

// releasePath is the path of a release file relative to the SSH user's home.
func releasePath(file string) string {
	return releaseDir + "/" + file
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func composeCmd(args string) string {
	return fmt.Sprintf("cd %s && docker compose %s", shellQuote(releaseDir), args)
}
