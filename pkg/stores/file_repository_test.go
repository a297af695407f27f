package stores

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/openfroyo/deployer/pkg/environment"
)

var testTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newCreated(t *testing.T, name string) *environment.Created {
	t.Helper()
	env, err := environment.New(environment.Common{
		Name: environment.Name(name),
		Credentials: environment.Credentials{
			PrivateKeyPath: "/keys/id",
			PublicKeyPath:  "/keys/id.pub",
			Username:       "deployer",
			Port:           22,
		},
		Provider: environment.NewLXDProvider("default"),
		Services: environment.Services{HTTPAPIPort: 1212},
	}, testTime)
	if err != nil {
		t.Fatalf("environment.New() error = %v", err)
	}
	return env
}

// setupTestRepository creates a repository in a temp directory.
func setupTestRepository(t *testing.T) *FileRepository {
	t.Helper()
	return NewFileRepository(filepath.Join(t.TempDir(), "data"))
}

func collectNames(t *testing.T, repo *FileRepository) []string {
	t.Helper()
	var names []string
	for name, err := range repo.ListNames(context.Background()) {
		if err != nil {
			t.Fatalf("ListNames() error = %v", err)
		}
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

func TestFileRepository_SaveLoad(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	created := newCreated(t, "demo")
	provisioned := created.Provision("10.1.2.3", testTime.Add(time.Minute))

	for _, env := range []environment.AnyEnvironment{created, provisioned} {
		if err := repo.Save(ctx, env); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, found, err := repo.Load(ctx, "demo")
		if err != nil || !found {
			t.Fatalf("Load() = %v, %v, %v", got, found, err)
		}
		if !reflect.DeepEqual(got, env) {
			t.Errorf("Load() = %+v, want %+v", got, env)
		}
	}

	info, err := os.Stat(repo.Path("demo"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileRepository_LoadMissing(t *testing.T) {
	repo := setupTestRepository(t)

	env, found, err := repo.Load(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if found || env != nil {
		t.Errorf("Load() = %v, %v, want nothing", env, found)
	}
}

func TestFileRepository_LoadCorrupted(t *testing.T) {
	repo := setupTestRepository(t)
	if err := os.MkdirAll(repo.Dir("broken"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(repo.Path("broken"), []byte(`{"Created": {`), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := repo.Load(context.Background(), "broken")
	var re *RepositoryError
	if !errors.As(err, &re) {
		t.Fatalf("Load() error = %v, want *RepositoryError", err)
	}
	if re.Kind != ErrorKindCorrupted {
		t.Errorf("Kind = %v, want %v", re.Kind, ErrorKindCorrupted)
	}
	if re.Help() == "" {
		t.Error("Help() is empty")
	}

	// The corrupted file must not be discarded.
	if _, err := os.Stat(repo.Path("broken")); err != nil {
		t.Errorf("corrupted document was removed: %v", err)
	}
}

func TestFileRepository_LoadNameMismatch(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	if err := repo.Save(ctx, newCreated(t, "alpha")); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(repo.Dir("beta"), 0o755); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(repo.Path("alpha"))
	if err := os.WriteFile(repo.Path("beta"), data, 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := repo.Load(ctx, "beta")
	var re *RepositoryError
	if !errors.As(err, &re) || re.Kind != ErrorKindCorrupted {
		t.Errorf("Load() error = %v, want corrupted", err)
	}
}

func TestFileRepository_InterruptedSaveKeepsPreviousDocument(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	created := newCreated(t, "demo")
	if err := repo.Save(ctx, created); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	before, err := os.ReadFile(repo.Path("demo"))
	if err != nil {
		t.Fatal(err)
	}

	crash := errors.New("power loss")
	var tmpPath string
	repo.beforeRename = func(tmp string) error {
		tmpPath = tmp
		return crash
	}

	err = repo.Save(ctx, created.Provision("10.0.0.9", testTime.Add(time.Hour)))
	if !errors.Is(err, crash) {
		t.Fatalf("Save() error = %v, want %v", err, crash)
	}

	after, err := os.ReadFile(repo.Path("demo"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("document changed after interrupted save")
	}
	if _, err := os.Stat(tmpPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file %s left behind: %v", tmpPath, err)
	}

	env, found, err := repo.Load(ctx, "demo")
	if err != nil || !found || env.State() != environment.StateCreated {
		t.Errorf("Load() = %v, %v, %v, want Created", env, found, err)
	}
}

func TestFileRepository_StaleTempFileIsIgnored(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	if err := repo.Save(ctx, newCreated(t, "demo")); err != nil {
		t.Fatal(err)
	}

	// A process killed mid-write leaves a partial temp file next to the document.
	stale := filepath.Join(repo.Dir("demo"), tempPrefix+DocumentName+"-123")
	if err := os.WriteFile(stale, []byte(`{"Provisioned": {"na`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(repo.BasePath, tempPrefix+"other"), 0o755); err != nil {
		t.Fatal(err)
	}

	env, found, err := repo.Load(ctx, "demo")
	if err != nil || !found {
		t.Fatalf("Load() = %v, %v, %v", env, found, err)
	}
	if env.State() != environment.StateCreated {
		t.Errorf("State() = %v, want created", env.State())
	}

	if got := collectNames(t, repo); !reflect.DeepEqual(got, []string{"demo"}) {
		t.Errorf("ListNames() = %v, want [demo]", got)
	}
}

func TestFileRepository_ListNames(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	if got := collectNames(t, repo); len(got) != 0 {
		t.Errorf("ListNames() on missing dir = %v, want empty", got)
	}

	for _, name := range []string{"alpha", "beta", "gamma"} {
		if err := repo.Save(ctx, newCreated(t, name)); err != nil {
			t.Fatal(err)
		}
	}
	// Noise that must be skipped.
	_ = os.MkdirAll(filepath.Join(repo.BasePath, "Not_Valid"), 0o755)
	_ = os.MkdirAll(filepath.Join(repo.BasePath, "empty"), 0o755)
	_ = os.WriteFile(filepath.Join(repo.BasePath, "stray.json"), []byte("{}"), 0o600)

	want := []string{"alpha", "beta", "gamma"}
	if got := collectNames(t, repo); !reflect.DeepEqual(got, want) {
		t.Errorf("ListNames() = %v, want %v", got, want)
	}

	// Restartable: a second pass yields the same names.
	if got := collectNames(t, repo); !reflect.DeepEqual(got, want) {
		t.Errorf("second ListNames() = %v, want %v", got, want)
	}

	// Lazy: breaking early stops iteration.
	count := 0
	for range repo.ListNames(ctx) {
		count++
		break
	}
	if count != 1 {
		t.Errorf("early break yielded %d names", count)
	}
}

func TestFileRepository_ListNamesUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	repo := setupTestRepository(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "bravo"} {
		if err := repo.Save(ctx, newCreated(t, name)); err != nil {
			t.Fatal(err)
		}
	}
	locked := repo.Dir("bravo")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	want := []string{"alpha", "bravo"}
	if got := collectNames(t, repo); !reflect.DeepEqual(got, want) {
		t.Fatalf("ListNames() = %v, want %v", got, want)
	}

	_, _, err := repo.Load(ctx, "bravo")
	var re *RepositoryError
	if !errors.As(err, &re) || re.Kind != ErrorKindPermission {
		t.Errorf("Load() error = %v, want permission RepositoryError", err)
	}
}

func TestFileRepository_Delete(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	if err := repo.Save(ctx, newCreated(t, "demo")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := repo.Delete(ctx, "demo"); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
	}
	if _, err := os.Stat(repo.Dir("demo")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("directory still exists: %v", err)
	}
}

func TestFileRepository_RejectsInvalidNames(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	for _, name := range []environment.Name{"", "..", "../escape", "a/b"} {
		if err := repo.Delete(ctx, name); err == nil {
			t.Errorf("Delete(%q) expected error", name)
		}
		if _, _, err := repo.Load(ctx, name); err == nil {
			t.Errorf("Load(%q) expected error", name)
		}
	}
}

func TestFileRepository_CancelledContext(t *testing.T) {
	repo := setupTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := repo.Save(ctx, newCreated(t, "demo")); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(repo.Dir("demo")); !errors.Is(err, os.ErrNotExist) {
		t.Error("cancelled save touched the filesystem")
	}
}
