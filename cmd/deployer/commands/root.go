// Package commands implements the deployer command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/deployer/pkg/config"
	core "github.com/openfroyo/deployer/pkg/commands"
	"github.com/openfroyo/deployer/pkg/telemetry"
)

// BuildInfo identifies the binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// options are the global flags plus the streams commands write to.
type options struct {
	configFile  string
	output      string
	logLevel    string
	logFormat   string
	metricsAddr string

	build  BuildInfo
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// newContainer is replaced in tests.
	newContainer func(ctx context.Context, ws *config.Workspace, tel *telemetry.Telemetry) (*core.Container, error)
}

// errReported marks an error that was already written to the user.
var errReported = errors.New("command failed")

// Execute runs the root command. Errors are reported before they are
// returned, so the caller only decides the exit code.
func Execute(ctx context.Context, build BuildInfo) error {
	root, opts := newRootCommand(build)
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		opts.reportError(err)
	}
	return err
}

func newRootCommand(build BuildInfo) (*cobra.Command, *options) {
	opts := &options{build: build, newContainer: core.Build}

	rootCmd := &cobra.Command{
		Use:   "deployer",
		Short: "Deploy a tracker stack to a single virtual machine",
		Long: `deployer drives one environment at a time through its lifecycle:

  create → provision → configure → release → run → destroy

Each command validates the current state, runs its steps and persists the
new state only when every step succeeded. A failed command can be re-run.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", build.Version, build.Commit, build.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.in = cmd.InOrStdin()
			opts.out = cmd.OutOrStdout()
			opts.errOut = cmd.ErrOrStderr()
			switch opts.output {
			case OutputText, OutputJSON:
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want %s or %s)", opts.output, OutputText, OutputJSON)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config-file", "", "workspace file (default "+config.DefaultWorkspaceFile+" if present)")
	flags.StringVarP(&opts.output, "output", "o", OutputText, "output format: text or json")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: console or json")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(newCreateCommand(opts))
	rootCmd.AddCommand(newProvisionCommand(opts))
	rootCmd.AddCommand(newConfigureCommand(opts))
	rootCmd.AddCommand(newReleaseCommand(opts))
	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newTestCommand(opts))
	rootCmd.AddCommand(newDestroyCommand(opts))
	rootCmd.AddCommand(newPurgeCommand(opts))
	rootCmd.AddCommand(newListCommand(opts))
	rootCmd.AddCommand(newShowCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))

	return rootCmd, opts
}

// workspace loads the workspace file and applies the global flags.
func (o *options) workspace() (*config.Workspace, error) {
	ws, err := config.LoadWorkspace(o.configFile)
	if err != nil {
		return nil, err
	}
	if ws.Telemetry == nil {
		ws.Telemetry = telemetry.DefaultConfig()
	}
	if o.logLevel != "" {
		ws.Telemetry.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		ws.Telemetry.Logging.Format = o.logFormat
	}
	if o.metricsAddr != "" {
		ws.Telemetry.Metrics.ListenAddress = o.metricsAddr
	}
	ws.Telemetry.ServiceVersion = o.build.Version
	return ws, nil
}

// run builds the container, calls fn and renders what it returns. A
// non-nil result is rendered even when fn fails, so partial progress and
// the step report reach the user.
func run[T any](cmd *cobra.Command, o *options, fn func(ctx context.Context, c *core.Container) (*T, error)) error {
	ctx := cmd.Context()

	ws, err := o.workspace()
	if err != nil {
		return o.finish(nil, err)
	}
	tel, err := telemetry.NewTelemetry(ws.Telemetry)
	if err != nil {
		return o.finish(nil, fmt.Errorf("telemetry: %w", err))
	}
	defer func() {
		_ = tel.Shutdown(context.WithoutCancel(ctx))
	}()
	tel.Metrics.Serve(ctx, tel.Logger)

	c, err := o.newContainer(ctx, ws, tel)
	if err != nil {
		return o.finish(nil, err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			tel.Logger.WithError(err).Warn("closing resources")
		}
	}()

	result, err := fn(ctx, c)
	if result == nil {
		return o.finish(nil, err)
	}
	return o.finish(result, err)
}

// finish renders result and err in the selected format.
func (o *options) finish(result any, err error) error {
	if o.output == OutputJSON {
		o.writeJSON(result, err)
	} else {
		if result != nil {
			renderText(o.out, result)
		}
		if err != nil {
			o.reportError(err)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errReported, err)
	}
	return nil
}
