package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openfroyo/deployer/pkg/artifacts"
	"github.com/openfroyo/deployer/pkg/config"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
	"github.com/openfroyo/deployer/pkg/policy"
	"github.com/openfroyo/deployer/pkg/stores"
	"github.com/openfroyo/deployer/pkg/transports/ssh"
)

type fakeInfra struct {
	mu       sync.Mutex
	calls    []string
	ip       string
	failures map[string][]error
}

func (f *fakeInfra) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	if errs := f.failures[op]; len(errs) > 0 {
		f.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeInfra) fail(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures == nil {
		f.failures = map[string][]error{}
	}
	f.failures[op] = errs
}

func (f *fakeInfra) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeInfra) Init(context.Context, string, []string) error    { return f.record("init") }
func (f *fakeInfra) Apply(context.Context, string, []string) error   { return f.record("apply") }
func (f *fakeInfra) Destroy(context.Context, string, []string) error { return f.record("destroy") }

func (f *fakeInfra) Output(_ context.Context, _ string, _ []string, name string) (string, error) {
	if err := f.record("output"); err != nil {
		return "", err
	}
	if name != artifacts.InstanceIPOutput {
		return "", fmt.Errorf("unknown output %s", name)
	}
	return f.ip, nil
}

type fakeAnsible struct {
	playbooks []string
	err       error
}

func (f *fakeAnsible) Playbook(_ context.Context, _, _, _, playbook string) error {
	f.playbooks = append(f.playbooks, playbook)
	return f.err
}

// fakeHost is the remote instance seen through fakeShell.
type fakeHost struct {
	mu        sync.Mutex
	files     map[string][]byte
	commands  []string
	dials     int
	dialErrs  []error
	cloudInit string
	runErr    map[string]error
}

func newFakeHost() *fakeHost {
	return &fakeHost{files: map[string][]byte{}, cloudInit: "status: done"}
}

func (h *fakeHost) Dial(_ context.Context, cfg *ssh.Config) (RemoteShell, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dials++
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("no host")
	}
	if len(h.dialErrs) > 0 {
		err := h.dialErrs[0]
		h.dialErrs = h.dialErrs[1:]
		return nil, err
	}
	return &fakeShell{host: h}, nil
}

type fakeShell struct {
	host *fakeHost
}

func (s *fakeShell) Run(_ context.Context, cmd string) (ssh.ExecResult, error) {
	h := s.host
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, cmd)
	for prefix, err := range h.runErr {
		if strings.Contains(cmd, prefix) {
			return ssh.ExecResult{ExitCode: 1}, err
		}
	}
	if strings.HasPrefix(cmd, "cloud-init status") {
		return ssh.ExecResult{Stdout: h.cloudInit}, nil
	}
	return ssh.ExecResult{}, nil
}

func (s *fakeShell) Upload(_ context.Context, data []byte, remotePath string, _ os.FileMode) error {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	s.host.files[remotePath] = append([]byte(nil), data...)
	return nil
}

func (s *fakeShell) Checksum(_ context.Context, remotePath string) (string, error) {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	data, ok := s.host.files[remotePath]
	if !ok {
		return "", fmt.Errorf("%s: no such file", remotePath)
	}
	return artifacts.Digest(data), nil
}

func (s *fakeShell) Close() error { return nil }

func (h *fakeHost) ran(substr string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.commands {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

type fakeProber struct {
	urls []string
	errs []error
}

func (f *fakeProber) Probe(_ context.Context, url string) error {
	f.urls = append(f.urls, url)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

type fakeAudit struct {
	runs []*stores.CommandRecord
}

func (f *fakeAudit) RecentCommands(_ context.Context, env string, limit int) ([]*stores.CommandRecord, error) {
	var out []*stores.CommandRecord
	for _, r := range f.runs {
		if r.Environment == env && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAudit) GetRun(_ context.Context, runID string) (*stores.RunDetail, error) {
	for _, r := range f.runs {
		if r.ID == runID {
			return &stores.RunDetail{Command: r}, nil
		}
	}
	return nil, fmt.Errorf("run %s not found", runID)
}

// recorder keeps the records emitted by the runner.
type recorder struct {
	mu     sync.Mutex
	starts []engine.Record
	ends   []engine.Record
}

func (r *recorder) Start(ctx context.Context, rec engine.Record) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, rec)
	return ctx
}

func (r *recorder) End(_ context.Context, rec engine.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends = append(r.ends, rec)
}

// commands returns the command-level end records, oldest first.
func (r *recorder) commands() []engine.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []engine.Record
	for _, rec := range r.ends {
		if rec.Level == engine.LevelCommand {
			out = append(out, rec)
		}
	}
	return out
}

// last returns the most recent command end record.
func (r *recorder) last(t *testing.T) engine.Record {
	t.Helper()
	cmds := r.commands()
	if len(cmds) == 0 {
		t.Fatal("no command record")
	}
	return cmds[len(cmds)-1]
}

// failingSaves wraps a repository whose Save always fails.
type failingSaves struct {
	stores.EnvironmentRepository
	err error
}

func (f failingSaves) Save(context.Context, environment.AnyEnvironment) error { return f.err }

// harness is a Container over temp directories and fakes.
type harness struct {
	*Container
	dir     string
	repo    *stores.FileRepository
	infra   *fakeInfra
	ansible *fakeAnsible
	host    *fakeHost
	prober  *fakeProber
	records *recorder
	clock   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	loader, err := config.NewLoader()
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	guard, err := policy.NewGuard(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}

	h := &harness{
		dir:     dir,
		repo:    stores.NewFileRepository(filepath.Join(dir, "data")),
		infra:   &fakeInfra{ip: "10.140.190.14"},
		ansible: &fakeAnsible{},
		host:    newFakeHost(),
		prober:  &fakeProber{},
		records: &recorder{},
		clock:   time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	ws := config.DefaultWorkspace()
	h.Container = &Container{
		Repository:      h.repo,
		Loader:          loader,
		Artifacts:       artifacts.NewGenerator(filepath.Join(dir, "build")),
		Layout:          artifacts.Layout{BuildDir: filepath.Join(dir, "build")},
		Infrastructure:  h.infra,
		Configuration:   h.ansible,
		Dialer:          h.host,
		Prober:          h.prober,
		Guard:           guard,
		Observer:        h.records,
		Retry:           ws.Retry,
		Timeouts:        ws.Timeouts,
		ListConcurrency: 4,
		Now: func() time.Time {
			h.clock = h.clock.Add(time.Minute)
			return h.clock
		},
		RunnerOptions: []engine.RunnerOption{
			engine.WithSleep(func(context.Context, time.Duration) error { return nil }),
		},
	}
	return h
}

// writeConfig writes SSH keys and a creation config for name.
func (h *harness) writeConfig(t *testing.T, name, extra string) string {
	t.Helper()
	keys := filepath.Join(h.dir, "keys")
	if err := os.MkdirAll(keys, 0o700); err != nil {
		t.Fatal(err)
	}
	priv := filepath.Join(keys, "id_ed25519")
	for path, data := range map[string]string{priv: "private", priv + ".pub": "ssh-ed25519 AAAA test"} {
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	cfg := fmt.Sprintf(`name: %s
ssh:
  private_key_path: %s
  public_key_path: %s.pub
provider:
  kind: lxd
  lxd:
    profile_name: deployer-%s
%s`, name, priv, priv, name, extra)
	path := filepath.Join(h.dir, name+".yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (h *harness) create(t *testing.T, name, extra string) {
	t.Helper()
	if _, err := h.Create(context.Background(), CreateOptions{ConfigPath: h.writeConfig(t, name, extra)}); err != nil {
		t.Fatalf("Create(%s) error = %v", name, err)
	}
}

func (h *harness) document(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(h.repo.Path(environment.Name(name)))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	return data
}
