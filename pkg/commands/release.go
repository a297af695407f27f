package commands

import (
	"context"
	"fmt"

	"github.com/openfroyo/deployer/pkg/artifacts"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

const releaseDir = artifacts.ReleaseDir

// ensureSecrets creates the .env file with generated passwords on first
// release and leaves it alone afterwards.
var ensureSecrets = fmt.Sprintf(`cd %s && if [ ! -f %s ]; then umask 077; {
  echo "MYSQL_ROOT_PASSWORD=$(tr -dc A-Za-z0-9 </dev/urandom | head -c 32)"
  echo "GRAFANA_ADMIN_PASSWORD=$(tr -dc A-Za-z0-9 </dev/urandom | head -c 32)"
  echo "TRACKER_ADMIN_TOKEN=$(tr -dc A-Za-z0-9 </dev/urandom | head -c 32)"
} > %s; fi`, releaseDir, artifacts.EnvFile, artifacts.EnvFile)

// Release renders the compose stack and uploads it to a Configured environment.
func (c *Container) Release(ctx context.Context, name string) (_ *ReleaseResult, err error) {
	inv := engine.Invocation{Command: CommandRelease, Environment: name}
	x := c.begin(ctx, inv)
	defer func() { x.Finish(err) }()

	env, err := c.load(ctx, inv)
	if err != nil {
		return nil, err
	}
	configured, err := environment.Require[*environment.Configured](env)
	if err != nil {
		return nil, fail(inv, err)
	}
	warnings, err := c.guard(ctx, inv, env, false)
	if err != nil {
		return nil, err
	}

	common := configured.Base()
	ip := configured.Instance.IP
	r := c.remote(common, ip)
	defer r.close()

	var rel artifacts.Release
	upload := engine.NewAction("upload-files", func(ctx context.Context) error {
		if err := r.connect(ctx); err != nil {
			return err
		}
		for _, f := range rel.Files {
			if err := r.shell.Upload(ctx, f.Data, releasePath(f.Name), f.Mode); err != nil {
				return err
			}
		}
		return nil
	})
	verify := engine.NewAction("verify-compose-digest", func(ctx context.Context) error {
		if err := r.connect(ctx); err != nil {
			return err
		}
		got, err := r.shell.Checksum(ctx, releasePath(artifacts.ComposeFile))
		if err != nil {
			return err
		}
		if got != rel.ComposeDigest {
			return engine.NewPermanentError(
				fmt.Sprintf("uploaded %s has digest %s, expected %s", artifacts.ComposeFile, got, rel.ComposeDigest), nil,
			).WithCode(engine.ErrCodeConflict)
		}
		return nil
	})

	steps := []engine.Step{
		engine.NewStep("render-release",
			engine.NewAction("render-compose", func(context.Context) error {
				var err error
				rel, err = c.Artifacts.Release(common)
				return err
			}),
		),
		engine.NewStep("upload-release",
			c.connectAction(r),
			upload,
			remoteAction("ensure-secrets", r, ensureSecrets),
			verify,
		),
	}

	exec, err := c.execute(x, steps)
	if err != nil {
		return &ReleaseResult{Name: common.Name, InstanceIP: ip, Execution: exec}, err
	}

	released := configured.Release(rel.ComposeDigest, c.now())
	if err := c.save(ctx, inv, released); err != nil {
		return &ReleaseResult{Name: common.Name, InstanceIP: ip, Execution: exec}, err
	}

	files := make([]string, 0, len(rel.Files))
	for _, f := range rel.Files {
		files = append(files, f.Name)
	}
	return &ReleaseResult{
		Name:          common.Name,
		InstanceIP:    ip,
		ComposeDigest: rel.ComposeDigest,
		Files:         files,
		ReleasedAt:    released.Release.ReleasedAt,
		Warnings:      warnings,
		Execution:     exec,
	}, nil
}
