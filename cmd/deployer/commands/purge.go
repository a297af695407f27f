package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	core "github.com/openfroyo/deployer/pkg/commands"
)

func newPurgeCommand(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "purge NAME",
		Short: "Remove every local trace of an environment",
		Long: `Purge deletes the stored environment, its data directory and its build
directory, whatever its state. It never touches the instance: destroy first
if the environment still has infrastructure.

Without --force the command asks for confirmation.`,
		Example: `  deployer purge staging
  deployer purge staging --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			confirmed := false
			if !force && interactive(opts.in) {
				confirmed = opts.confirm(fmt.Sprintf("Purge environment %q? This cannot be undone.", name))
				if !confirmed {
					fmt.Fprintln(opts.stderr(), "Aborted.")
					return nil
				}
			}
			return run(cmd, opts, func(ctx context.Context, c *core.Container) (*core.PurgeResult, error) {
				return c.Purge(ctx, name, core.PurgeOptions{Force: force, Confirmed: confirmed})
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation and override protecting policies")

	return cmd
}

// interactive reports whether in can answer a prompt. A stdin that is not
// a terminal cannot; purge then fails asking for --force.
func interactive(in io.Reader) bool {
	if f, ok := in.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return in != nil
}

// confirm asks a yes/no question on stderr and reads the answer from stdin.
func (o *options) confirm(question string) bool {
	fmt.Fprintf(o.stderr(), "%s [y/N]: ", question)
	answer, _ := bufio.NewReader(o.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
