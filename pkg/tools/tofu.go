package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tofu drives the OpenTofu CLI in one working directory.
type Tofu struct {
	runner Runner
	binary string
}

// NewTofu returns a wrapper calling binary through runner.
func NewTofu(runner Runner, binary string) *Tofu {
	if binary == "" {
		binary = "tofu"
	}
	return &Tofu{runner: runner, binary: binary}
}

func (t *Tofu) run(ctx context.Context, dir string, env []string, args ...string) (Result, error) {
	return t.runner.Run(ctx, Command{
		Binary: t.binary,
		Args:   append([]string{"-chdir=" + dir}, args...),
		Env:    append([]string{"TF_IN_AUTOMATION=1"}, env...),
	})
}

// Init downloads providers. It is safe to repeat.
func (t *Tofu) Init(ctx context.Context, dir string, env []string) error {
	_, err := t.run(ctx, dir, env, "init", "-input=false", "-no-color")
	return err
}

// Validate checks the configuration syntax.
func (t *Tofu) Validate(ctx context.Context, dir string, env []string) error {
	_, err := t.run(ctx, dir, env, "validate", "-no-color")
	return err
}

// Plan reports whether applying would change infrastructure.
func (t *Tofu) Plan(ctx context.Context, dir string, env []string) (bool, error) {
	res, err := t.run(ctx, dir, env, "plan", "-input=false", "-no-color", "-detailed-exitcode")
	if err != nil {
		// -detailed-exitcode reports pending changes with exit code 2.
		if res.ExitCode == 2 {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// Apply creates or updates infrastructure.
func (t *Tofu) Apply(ctx context.Context, dir string, env []string) error {
	_, err := t.run(ctx, dir, env, "apply", "-auto-approve", "-input=false", "-no-color")
	return err
}

// Destroy removes every resource in the state.
func (t *Tofu) Destroy(ctx context.Context, dir string, env []string) error {
	_, err := t.run(ctx, dir, env, "destroy", "-auto-approve", "-input=false", "-no-color")
	return err
}

type tofuOutput struct {
	Value     json.RawMessage `json:"value"`
	Sensitive bool            `json:"sensitive"`
}

// Output returns the string output named name.
func (t *Tofu) Output(ctx context.Context, dir string, env []string, name string) (string, error) {
	res, err := t.run(ctx, dir, env, "output", "-json", "-no-color")
	if err != nil {
		return "", err
	}

	var outputs map[string]tofuOutput
	if err := json.Unmarshal([]byte(res.Stdout), &outputs); err != nil {
		return "", fmt.Errorf("decode tofu outputs: %w", err)
	}
	out, ok := outputs[name]
	if !ok {
		return "", fmt.Errorf("tofu output %q not found", name)
	}
	var value string
	if err := json.Unmarshal(out.Value, &value); err != nil {
		return "", fmt.Errorf("tofu output %q is not a string: %w", name, err)
	}
	if value == "" {
		return "", fmt.Errorf("tofu output %q is empty", name)
	}
	return value, nil
}
