package stores

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"

	"github.com/openfroyo/deployer/pkg/environment"
)

// EnvironmentRepository persists environments in any lifecycle state.
type EnvironmentRepository interface {
	// Save atomically replaces the stored document for env.
	Save(ctx context.Context, env environment.AnyEnvironment) error

	// Load returns the stored environment; found is false when none exists.
	Load(ctx context.Context, name environment.Name) (env environment.AnyEnvironment, found bool, err error)

	// ListNames lazily yields the names of stored environments. The sequence
	// is finite and may be ranged over more than once.
	ListNames(ctx context.Context) iter.Seq2[environment.Name, error]

	// Delete removes the stored environment. Deleting a missing one is not an error.
	Delete(ctx context.Context, name environment.Name) error
}

// ErrorKind classifies repository failures.
type ErrorKind string

const (
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindPermission ErrorKind = "permission"
	ErrorKindCorrupted  ErrorKind = "corrupted"
	ErrorKindIO         ErrorKind = "io"
)

// RepositoryError describes a failed repository operation.
type RepositoryError struct {
	Environment environment.Name
	Op          string
	Kind        ErrorKind
	Path        string
	Err         error
}

func (e *RepositoryError) Error() string {
	msg := fmt.Sprintf("%s environment", e.Op)
	if e.Environment != "" {
		msg += fmt.Sprintf(" %q", e.Environment)
	}
	msg += fmt.Sprintf(": %s", e.Kind)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// Help returns remediation text for the operator.
func (e *RepositoryError) Help() string {
	switch e.Kind {
	case ErrorKindNotFound:
		return fmt.Sprintf("No environment named %q exists. Run 'deployer list' to see known environments.", e.Environment)
	case ErrorKindPermission:
		return fmt.Sprintf("The current user cannot access %s. Fix the file permissions or run with the owning user.", e.Path)
	case ErrorKindCorrupted:
		return fmt.Sprintf("The file %s is not a valid environment document. Restore it from a backup, or run 'deployer purge %s' to discard it.", e.Path, e.Environment)
	default:
		return fmt.Sprintf("Check that %s is on a writable file system with free space.", e.Path)
	}
}

// kindOf maps a filesystem error to a repository error kind.
func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrorKindNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrorKindPermission
	default:
		return ErrorKindIO
	}
}
