package commands

import (
	"context"
	"fmt"

	"github.com/openfroyo/deployer/pkg/artifacts"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

// Test runs the read-only checks that apply to the environment's state.
// Every applicable check runs even if an earlier one failed; checks that do
// not apply are reported as skipped. The error is non-nil when a check failed.
func (c *Container) Test(ctx context.Context, name string) (_ *TestResult, err error) {
	inv := engine.Invocation{Command: CommandTest, Environment: name}
	x := c.begin(ctx, inv)
	defer func() { x.Finish(err) }()

	env, err := c.load(ctx, inv)
	if err != nil {
		return nil, err
	}

	common := env.Base()
	state := env.State()
	result := &TestResult{Name: common.Name, State: state}

	inst, hasInstance := environment.InstanceOf(env)
	rel, hasRelease := environment.ReleaseOf(env)
	r := c.remote(common, inst.IP)
	defer r.close()

	reached := func(s environment.State) bool {
		return !state.IsTerminal() && environment.RequireState(env, statesFrom(s)...) == nil
	}

	type check struct {
		name    string
		applies bool
		run     func(ctx context.Context) error
	}
	checks := []check{
		{"ssh-connectivity", hasInstance, func(ctx context.Context) error {
			_, err := r.run(ctx, "true")
			return err
		}},
		{"cloud-init", hasInstance, func(ctx context.Context) error {
			res, err := r.run(ctx, "cloud-init status || true")
			if err != nil {
				return err
			}
			return cloudInitDone(res.Stdout)
		}},
		{"docker", reached(environment.StateConfigured), func(ctx context.Context) error {
			_, err := r.run(ctx, "docker compose version")
			return err
		}},
		{"compose-digest", hasRelease, func(ctx context.Context) error {
			if err := r.connect(ctx); err != nil {
				return err
			}
			got, err := r.shell.Checksum(ctx, releasePath(artifacts.ComposeFile))
			if err != nil {
				return err
			}
			if got != rel.ComposeDigest {
				return fmt.Errorf("remote %s digest %s does not match released %s", artifacts.ComposeFile, got, rel.ComposeDigest)
			}
			return nil
		}},
		{"http-health", reached(environment.StateRunning), func(ctx context.Context) error {
			return c.Prober.Probe(ctx, healthURL(inst.IP, common.Services))
		}},
	}

	var steps []engine.Step
	for _, chk := range checks {
		if !chk.applies {
			result.Checks = append(result.Checks, Check{Name: chk.name, Status: CheckSkipped})
			continue
		}
		i := len(result.Checks)
		result.Checks = append(result.Checks, Check{Name: chk.name})
		steps = append(steps, engine.ContinueOnFailure(engine.NewStep(chk.name, engine.NewAction(chk.name, func(ctx context.Context) error {
			if err := chk.run(ctx); err != nil {
				if engine.KindOf(engine.Classify(err)) != engine.KindCancelled {
					result.Checks[i].Status = CheckFailed
					result.Checks[i].Detail = err.Error()
				}
				return err
			}
			result.Checks[i].Status = CheckPassed
			return nil
		}))))
	}

	exec, err := c.execute(x, steps)
	result.Execution = exec
	if engine.KindOf(err) == engine.KindCancelled {
		return result, err
	}

	failed := 0
	for _, chk := range result.Checks {
		if chk.Status == CheckFailed {
			failed++
		}
	}
	if failed > 0 {
		return result, engine.NewPermanentError(fmt.Sprintf("%d of %d checks failed", failed, len(steps)), nil).
			WithCommand(inv.Command).
			WithEnvironment(inv.Environment).
			WithHelp(fmt.Sprintf("See the failed checks above, or inspect the instance with 'ssh %s@%s'.", common.Credentials.Username, inst.IP))
	}
	return result, err
}

// statesFrom lists s and every later non-terminal state.
func statesFrom(s environment.State) []environment.State {
	var out []environment.State
	found := false
	for _, st := range environment.States {
		if st == s {
			found = true
		}
		if found && !st.IsTerminal() {
			out = append(out, st)
		}
	}
	return out
}
