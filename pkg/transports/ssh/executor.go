package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Run executes cmd on the remote host. A command that exits non-zero
// returns its result together with a permanent TransportError.
func (c *Client) Run(ctx context.Context, cmd string) (ExecResult, error) {
	if c.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
	}

	startTime := time.Now()
	log.Debug().Str("command", cmd).Msg("executing command")

	sshClient, err := c.getClient()
	if err != nil {
		return ExecResult{}, err
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return ExecResult{}, &TransportError{
			Op:          "exec",
			Host:        c.config.Address(),
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		execErr = ctx.Err()
	case execErr = <-done:
	}

	result := ExecResult{
		Stdout:   strings.TrimSpace(stdoutBuf.String()),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		Duration: time.Since(startTime),
	}

	log.Debug().
		Str("command", cmd).
		Int("stdout_len", len(result.Stdout)).
		Int("stderr_len", len(result.Stderr)).
		Dur("duration", result.Duration).
		Err(execErr).
		Msg("command completed")

	if execErr == nil {
		return result, nil
	}

	var exitErr *ssh.ExitError
	switch {
	case errors.As(execErr, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
		return result, &TransportError{
			Op:       "exec",
			Host:     c.config.Address(),
			Err:      fmt.Errorf("%q exited with code %d: %s", cmd, result.ExitCode, result.Stderr),
			ExitCode: result.ExitCode,
		}
	case errors.Is(execErr, context.Canceled):
		return result, execErr
	case errors.Is(execErr, context.DeadlineExceeded):
		return result, &TransportError{Op: "exec", Host: c.config.Address(), Err: fmt.Errorf("%q timed out: %w", cmd, execErr), IsTemporary: true}
	default:
		result.ExitCode = -1
		return result, &TransportError{Op: "exec", Host: c.config.Address(), Err: execErr, IsTemporary: true}
	}
}
