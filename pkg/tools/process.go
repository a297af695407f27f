// Package tools runs the local binaries the deployer depends on (OpenTofu and
// ansible-playbook) and probes HTTP endpoints of deployed services.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/telemetry"
)

// Command is one local process invocation.
type Command struct {
	Binary string
	Args   []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env is appended to the parent environment.
	Env []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// Result is the captured outcome of a finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner starts local processes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger *telemetry.Logger
}

// NewExecRunner returns a runner logging to logger. A nil logger disables logging.
func NewExecRunner(logger *telemetry.Logger) *ExecRunner {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &ExecRunner{logger: logger.NewComponentLogger("tools")}
}

// stderrTail bounds how much stderr ends up in error messages.
const stderrTail = 2048

// Run executes cmd and waits for it. A missing binary and a non-zero exit
// are permanent errors; a cancelled context is returned as is.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.WaitDelay = 10 * time.Second

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	log := r.logger.WithFields(map[string]any{"command": cmd.String(), "dir": cmd.Dir})
	log.Debug("running tool")

	start := time.Now()
	err := c.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		log.WithField("duration", res.Duration).Debug("tool finished")
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, exec.ErrNotFound):
		res.ExitCode = -1
		return res, engine.NewPermanentError(fmt.Sprintf("%s not found", cmd.Binary), err).
			WithCode(engine.ErrCodeNotFound).
			WithHelp(fmt.Sprintf("Install %s and make sure it is on PATH, or set its path in the tools section of deployer.yaml.", cmd.Binary))
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		log.WithField("exit_code", res.ExitCode).Warn("tool failed")
		return res, classifyFailure(cmd, res, err)
	default:
		res.ExitCode = -1
		return res, engine.NewPermanentError(fmt.Sprintf("cannot start %s", cmd.Binary), err)
	}
}

// classifyFailure turns a non-zero exit into an action error. Provider rate
// limits are throttled and network hiccups transient so retry policies can
// act on them; everything else is permanent.
func classifyFailure(cmd Command, res Result, err error) error {
	tail := res.Stderr
	if len(tail) > stderrTail {
		tail = tail[len(tail)-stderrTail:]
	}
	tail = strings.TrimSpace(tail)
	msg := fmt.Sprintf("%s exited with code %d", cmd.Binary, res.ExitCode)
	if tail != "" {
		msg += ": " + tail
	}

	lower := strings.ToLower(res.Stderr)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429 too many requests"):
		return engine.NewThrottledError(msg, err)
	case strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "i/o timeout") ||
		strings.Contains(lower, "tls handshake timeout"):
		return engine.NewTransientError(msg, err)
	default:
		return engine.NewPermanentError(msg, err).WithDetail("exit_code", res.ExitCode)
	}
}
