package commands

import (
	"context"

	"github.com/spf13/cobra"

	core "github.com/openfroyo/deployer/pkg/commands"
)

func newCreateCommand(opts *options) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "create --config FILE",
		Short: "Register a new environment",
		Long: `Create validates an environment config file and stores the environment in
the Created state. Nothing is provisioned yet.

The config file may be YAML, JSON or CUE.`,
		Example: `  # Create from YAML
  deployer create --config envs/staging.yaml

  # Create from CUE
  deployer create --config envs/staging.cue --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.CreateResult, error) {
				return c.Create(ctx, core.CreateOptions{ConfigPath: configPath})
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "environment config file")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func newProvisionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "provision NAME",
		Short: "Create the virtual machine of an environment",
		Long: `Provision renders the OpenTofu files, creates the instance and waits until it
accepts SSH connections and cloud-init has finished.`,
		Example: `  deployer provision staging`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.ProvisionResult, error) {
				return c.Provision(ctx, args[0])
			})
		},
	}
}

func newConfigureCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "configure NAME",
		Short: "Install Docker and harden a provisioned instance",
		Long: `Configure runs the Ansible playbooks that install Docker and Docker Compose
and open the firewall ports of the enabled services.`,
		Example: `  deployer configure staging`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.ConfigureResult, error) {
				return c.Configure(ctx, args[0])
			})
		},
	}
}

func newReleaseCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "release NAME",
		Short: "Upload the service stack to a configured instance",
		Example: `  deployer release staging`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.ReleaseResult, error) {
				return c.Release(ctx, args[0])
			})
		},
	}
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "run NAME",
		Short:   "Start the released services and wait until they are healthy",
		Example: `  deployer run staging`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.RunResult, error) {
				return c.Run(ctx, args[0])
			})
		},
	}
}

func newTestCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "test NAME",
		Short: "Check an environment without changing it",
		Long: `Test runs the read-only checks that apply to the environment's state:
SSH connectivity, cloud-init, Docker, the released compose digest and the
HTTP health endpoint. The command fails when any check fails.`,
		Example: `  deployer test staging`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.TestResult, error) {
				return c.Test(ctx, args[0])
			})
		},
	}
}

func newDestroyCommand(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "destroy NAME",
		Short: "Tear down the infrastructure of an environment",
		Long: `Destroy removes the instance and the build directory. The environment is
kept in the Destroyed state until it is purged.`,
		Example: `  deployer destroy staging

  # Override a policy protecting the environment
  deployer destroy production --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.DestroyResult, error) {
				return c.Destroy(ctx, args[0], core.DestroyOptions{Force: force})
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "override policies protecting the environment")

	return cmd
}
