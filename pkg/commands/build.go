package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/openfroyo/deployer/pkg/artifacts"
	"github.com/openfroyo/deployer/pkg/config"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/policy"
	"github.com/openfroyo/deployer/pkg/stores"
	"github.com/openfroyo/deployer/pkg/telemetry"
	"github.com/openfroyo/deployer/pkg/tools"
)

// Build wires the production collaborators from the workspace settings.
// Close the container when done.
func Build(ctx context.Context, ws *config.Workspace, tel *telemetry.Telemetry) (*Container, error) {
	loader, err := config.NewLoader()
	if err != nil {
		return nil, err
	}

	guard, err := policy.NewGuard(ctx, tel.Logger, ws.PolicyDir)
	if err != nil {
		return nil, err
	}

	runner := tools.NewExecRunner(tel.Logger)
	c := &Container{
		Repository:      stores.NewFileRepository(ws.DataDir),
		Loader:          loader,
		Artifacts:       artifacts.NewGenerator(ws.BuildDir),
		Layout:          artifacts.Layout{BuildDir: ws.BuildDir},
		Infrastructure:  tools.NewTofu(runner, ws.Tools.Tofu),
		Configuration:   tools.NewAnsible(runner, ws.Tools.AnsiblePlaybook),
		Dialer:          SSHDialer,
		Prober:          tools.NewHTTPProber(ws.Timeouts.HTTPProbe),
		Guard:           guard,
		Logger:          tel.Logger,
		Retry:           ws.Retry,
		Timeouts:        ws.Timeouts,
		ListConcurrency: ws.ListConcurrency,
	}

	observers := engine.Observers{tel.Observer()}
	if ws.AuditDB != "" {
		audit, err := openAudit(ctx, ws.AuditDB, tel.Logger)
		if err != nil {
			// The audit log is best effort; commands still run without it.
			tel.Logger.WithError(err).WithField("path", ws.AuditDB).Warn("audit log disabled")
		} else {
			c.Audit = audit
			c.closers = append(c.closers, audit.Close)
			observers = append(observers, audit)
		}
	}
	c.Observer = observers

	return c, nil
}

func openAudit(ctx context.Context, path string, logger *telemetry.Logger) (*stores.AuditStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	audit, err := stores.NewAuditStore(stores.Config{Path: path}, logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if err := audit.Init(ctx); err != nil {
		_ = audit.Close()
		return nil, err
	}
	if err := audit.Migrate(ctx); err != nil {
		_ = audit.Close()
		return nil, err
	}
	return audit, nil
}
