package commands

import (
	"context"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
	"github.com/openfroyo/deployer/pkg/stores"
)

// DefaultHistoryLimit is the number of runs History returns by default.
const DefaultHistoryLimit = 20

// History returns the most recent command runs recorded for name, newest
// first. The environment does not need to exist any more.
func (c *Container) History(ctx context.Context, name string, limit int) (*HistoryResult, error) {
	inv := engine.Invocation{Command: CommandHistory, Environment: name}

	n, err := environment.NewName(name)
	if err != nil {
		return nil, fail(inv, err)
	}
	if c.Audit == nil {
		return nil, engine.NewValidationError("the audit log is disabled", nil).
			WithCommand(inv.Command).
			WithEnvironment(name).
			WithHelp("Set audit_db in deployer.yaml to record command runs.")
	}
	if limit < 1 {
		limit = DefaultHistoryLimit
	}

	runs, err := c.Audit.RecentCommands(ctx, name, limit)
	if err != nil {
		return nil, engine.NewRepositoryError("cannot read the audit log", err).
			WithCommand(inv.Command).
			WithEnvironment(name)
	}
	if runs == nil {
		runs = []*stores.CommandRecord{}
	}
	return &HistoryResult{Name: n, Runs: runs}, nil
}

// RunDetail returns one recorded run with its steps and action attempts.
func (c *Container) RunDetail(ctx context.Context, runID string) (*stores.RunDetail, error) {
	inv := engine.Invocation{Command: CommandHistory}
	if c.Audit == nil {
		return nil, engine.NewValidationError("the audit log is disabled", nil).WithCommand(inv.Command)
	}
	detail, err := c.Audit.GetRun(ctx, runID)
	if err != nil {
		return nil, engine.NewRepositoryError("cannot read the audit log", err).WithCommand(inv.Command)
	}
	return detail, nil
}
