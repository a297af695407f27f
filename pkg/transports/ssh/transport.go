// Package ssh runs commands on and uploads files to deployed instances.
package ssh

import (
	"fmt"
	"time"
)

// ExecResult represents the result of a command execution.
type ExecResult struct {
	// Stdout is the standard output from the command, trimmed
	Stdout string

	// Stderr is the standard error output from the command, trimmed
	Stderr string

	// ExitCode is the command's exit code
	ExitCode int

	// Duration is the total execution time
	Duration time.Duration
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec", "upload")
	Op string

	// Host is the remote address.
	Host string

	// Err is the underlying error
	Err error

	// ExitCode is set when a remote command ran and failed.
	ExitCode int

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("ssh %s %s: %v", e.Op, e.Host, e.Err)
	}
	return fmt.Sprintf("ssh %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the operation may succeed.
func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// Help suggests how to fix the failure.
func (e *TransportError) Help() string {
	switch {
	case e.IsAuthError:
		return "The instance rejected the SSH key. Check ssh_private_key_path and that the matching public key was installed by cloud-init."
	case e.ExitCode != 0:
		return "The remote command failed. Inspect its output above, or log in with ssh and rerun it."
	case e.IsTemporary:
		return "The instance is not reachable over SSH yet. Check that it is running and that the SSH port is open, then retry."
	default:
		return "Check the SSH settings of the environment with 'deployer show'."
	}
}
