package stores

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/openfroyo/deployer/pkg/environment"
)

// DocumentName is the file holding an environment inside its directory.
const DocumentName = "environment.json"

// FileRepository implements EnvironmentRepository using one directory per
// environment: <base>/<name>/environment.json.
type FileRepository struct {
	BasePath string

	// beforeRename is a test hook run between the durable temp write and the rename.
	beforeRename func(tmp string) error
}

// NewFileRepository creates a repository rooted at basePath.
// If basePath is empty, it defaults to "data".
func NewFileRepository(basePath string) *FileRepository {
	if basePath == "" {
		basePath = "data"
	}
	return &FileRepository{BasePath: basePath}
}

// Dir returns the directory that holds the named environment.
func (r *FileRepository) Dir(name environment.Name) string {
	return filepath.Join(r.BasePath, string(name))
}

// Path returns the document path of the named environment.
func (r *FileRepository) Path(name environment.Name) string {
	return filepath.Join(r.Dir(name), DocumentName)
}

// Save persists env atomically.
func (r *FileRepository) Save(ctx context.Context, env environment.AnyEnvironment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := env.Base().Name
	if err := environment.ValidateName(string(name)); err != nil {
		return err
	}
	path := r.Path(name)

	data, err := environment.Marshal(env)
	if err != nil {
		return &RepositoryError{Environment: name, Op: "save", Kind: ErrorKindCorrupted, Path: path, Err: err}
	}

	if err := os.MkdirAll(r.Dir(name), 0o755); err != nil {
		return &RepositoryError{Environment: name, Op: "save", Kind: kindOf(err), Path: path, Err: err}
	}

	if err := writeFileAtomic(path, data, 0o600, r.beforeRename); err != nil {
		return &RepositoryError{Environment: name, Op: "save", Kind: kindOf(err), Path: path, Err: err}
	}
	return nil
}

// Load reads the named environment.
func (r *FileRepository) Load(ctx context.Context, name environment.Name) (environment.AnyEnvironment, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := environment.ValidateName(string(name)); err != nil {
		return nil, false, err
	}
	path := r.Path(name)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &RepositoryError{Environment: name, Op: "load", Kind: kindOf(err), Path: path, Err: err}
	}

	env, err := environment.Unmarshal(data)
	if err != nil {
		return nil, false, &RepositoryError{Environment: name, Op: "load", Kind: ErrorKindCorrupted, Path: path, Err: err}
	}
	if got := env.Base().Name; got != name {
		return nil, false, &RepositoryError{
			Environment: name,
			Op:          "load",
			Kind:        ErrorKindCorrupted,
			Path:        path,
			Err:         fmt.Errorf("document belongs to environment %q", got),
		}
	}
	return env, true, nil
}

// ListNames yields every directory under BasePath that holds an environment
// document, or whose document cannot be checked. Directories with invalid
// names and in-flight temp files are skipped.
func (r *FileRepository) ListNames(ctx context.Context) iter.Seq2[environment.Name, error] {
	return func(yield func(environment.Name, error) bool) {
		entries, err := os.ReadDir(r.BasePath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return
			}
			yield("", &RepositoryError{Op: "list", Kind: kindOf(err), Path: r.BasePath, Err: err})
			return
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !entry.IsDir() || isTempFile(entry.Name()) {
				continue
			}
			name, err := environment.NewName(entry.Name())
			if err != nil {
				continue
			}
			// Unreadable documents are still yielded so that Load reports why.
			if _, err := os.Stat(r.Path(name)); errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if !yield(name, nil) {
				return
			}
		}
	}
}

// Delete removes the environment directory and everything in it.
func (r *FileRepository) Delete(ctx context.Context, name environment.Name) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := environment.ValidateName(string(name)); err != nil {
		return err
	}
	dir := r.Dir(name)
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &RepositoryError{Environment: name, Op: "delete", Kind: kindOf(err), Path: dir, Err: err}
	}
	return nil
}

var _ EnvironmentRepository = (*FileRepository)(nil)
