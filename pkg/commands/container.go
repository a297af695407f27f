// Package commands implements the deployer commands on top of the engine.
//
// Each handler follows the same shape: load the environment, require the
// starting state, evaluate the policy guard, run the command's steps through
// an engine.Runner and, only when every step succeeded, persist the next
// state. A failed or cancelled command leaves the stored document untouched
// and can be rerun.
package commands

import (
	"context"
	"os"
	"time"

	"github.com/openfroyo/deployer/pkg/artifacts"
	"github.com/openfroyo/deployer/pkg/config"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
	"github.com/openfroyo/deployer/pkg/policy"
	"github.com/openfroyo/deployer/pkg/stores"
	"github.com/openfroyo/deployer/pkg/telemetry"
	"github.com/openfroyo/deployer/pkg/transports/ssh"
)

// ConfigLoader reads environment creation configs.
type ConfigLoader interface {
	LoadFile(path string) (*config.EnvironmentConfig, error)
}

// ArtifactGenerator renders the files handed to external tools.
type ArtifactGenerator interface {
	Infrastructure(c environment.Common) (artifacts.Infrastructure, error)
	Configuration(c environment.Common, ip string) (artifacts.Configuration, error)
	Release(c environment.Common) (artifacts.Release, error)
}

// Infrastructure creates and removes instances. *tools.Tofu implements it.
type Infrastructure interface {
	Init(ctx context.Context, dir string, env []string) error
	Apply(ctx context.Context, dir string, env []string) error
	Destroy(ctx context.Context, dir string, env []string) error
	Output(ctx context.Context, dir string, env []string, name string) (string, error)
}

// ConfigurationRunner applies playbooks. *tools.Ansible implements it.
type ConfigurationRunner interface {
	Playbook(ctx context.Context, dir, inventory, variables, playbook string) error
}

// RemoteShell is a connection to a provisioned instance. *ssh.Client implements it.
type RemoteShell interface {
	Run(ctx context.Context, cmd string) (ssh.ExecResult, error)
	Upload(ctx context.Context, data []byte, remotePath string, mode os.FileMode) error
	Checksum(ctx context.Context, remotePath string) (string, error)
	Close() error
}

// RemoteDialer opens remote shells.
type RemoteDialer interface {
	Dial(ctx context.Context, cfg *ssh.Config) (RemoteShell, error)
}

// DialFunc adapts a function to RemoteDialer.
type DialFunc func(ctx context.Context, cfg *ssh.Config) (RemoteShell, error)

// Dial calls f.
func (f DialFunc) Dial(ctx context.Context, cfg *ssh.Config) (RemoteShell, error) {
	return f(ctx, cfg)
}

// SSHDialer dials instances with the ssh transport.
var SSHDialer RemoteDialer = DialFunc(func(ctx context.Context, cfg *ssh.Config) (RemoteShell, error) {
	c, err := ssh.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
})

// HealthProber checks HTTP endpoints. *tools.HTTPProber implements it.
type HealthProber interface {
	Probe(ctx context.Context, url string) error
}

// Guard vets commands against policy. *policy.Guard implements it.
type Guard interface {
	Check(ctx context.Context, in policy.Input) ([]policy.Violation, error)
}

// AuditLog reads past command executions. *stores.AuditStore implements it.
type AuditLog interface {
	RecentCommands(ctx context.Context, environment string, limit int) ([]*stores.CommandRecord, error)
	GetRun(ctx context.Context, runID string) (*stores.RunDetail, error)
}

// Container holds every collaborator of the command handlers. It is built
// once per process; tests build it by hand with fakes.
type Container struct {
	Repository     stores.EnvironmentRepository
	Loader         ConfigLoader
	Artifacts      ArtifactGenerator
	Layout         artifacts.Layout
	Infrastructure Infrastructure
	Configuration  ConfigurationRunner
	Dialer         RemoteDialer
	Prober         HealthProber
	Guard          Guard

	// Audit is nil when the audit log is disabled.
	Audit AuditLog

	Observer engine.Observer
	Logger   *telemetry.Logger

	Retry           config.RetryConfig
	Timeouts        config.TimeoutConfig
	ListConcurrency int

	// Now defaults to time.Now.
	Now func() time.Time

	// RunnerOptions are passed to every engine.Runner, e.g. engine.WithSleep in tests.
	RunnerOptions []engine.RunnerOption

	closers []func() error
}

func (c *Container) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Container) logger() *telemetry.Logger {
	if c.Logger == nil {
		return telemetry.NopLogger()
	}
	return c.Logger
}

func (c *Container) runner() *engine.Runner {
	obs := c.Observer
	if obs == nil {
		obs = engine.NopObserver()
	}
	return engine.NewRunner(obs, c.RunnerOptions...)
}

// Close releases resources opened by Build.
func (c *Container) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
