package commands

import (
	"context"

	"github.com/spf13/cobra"

	core "github.com/openfroyo/deployer/pkg/commands"
	"github.com/openfroyo/deployer/pkg/stores"
)

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List environments and their states",
		Long: `List reads every stored environment. Documents that cannot be read are
reported as warnings; the command still succeeds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.ListResult, error) {
				return c.List(ctx)
			})
		},
	}
}

func newShowCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "show NAME",
		Short:   "Show the details of an environment",
		Example: `  deployer show staging --output json`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.ShowResult, error) {
				return c.Show(ctx, args[0])
			})
		},
	}
}

func newHistoryCommand(opts *options) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history NAME",
		Short: "Show recorded command runs of an environment",
		Long: `History lists the most recent command runs recorded in the audit log, newest
first, with the step and action that failed. Pass --run to see every step
and action attempt of one run.`,
		Example: `  deployer history staging --limit 5
  deployer history staging --run 4c1f3a52-8d7e-4a43-9b55-0f4f5c2b1d7e`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID != "" {
				return run(cmd, opts, func(ctx context.Context, c *core.Container) (*stores.RunDetail, error) {
					return c.RunDetail(ctx, runID)
				})
			}
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.HistoryResult, error) {
				return c.History(ctx, args[0], limit)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", core.DefaultHistoryLimit, "number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "show the steps and attempts of one run")

	return cmd
}
