package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/deployer/pkg/artifacts"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
	"github.com/openfroyo/deployer/pkg/stores"
)

func loadState(t *testing.T, h *harness, name string) environment.State {
	t.Helper()
	env, found, err := h.repo.Load(context.Background(), environment.Name(name))
	if err != nil || !found {
		t.Fatalf("Load(%s) = found %v, err %v", name, found, err)
	}
	return env.State()
}

func TestLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.create(t, "staging", "services:\n  mysql: true\n  prometheus: true\n  grafana: true\n")
	if got := loadState(t, h, "staging"); got != environment.StateCreated {
		t.Fatalf("after create: %s", got)
	}

	prov, err := h.Provision(ctx, "staging")
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if prov.InstanceIP != "10.140.190.14" || prov.SSHUser != "torrust" || prov.SSHPort != 22 {
		t.Errorf("ProvisionResult = %+v", prov)
	}
	if got := loadState(t, h, "staging"); got != environment.StateProvisioned {
		t.Fatalf("after provision: %s", got)
	}

	if _, err := h.Configure(ctx, "staging"); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if len(h.ansible.playbooks) != len(artifacts.Playbooks) {
		t.Errorf("ran playbooks %v", h.ansible.playbooks)
	}

	rel, err := h.Release(ctx, "staging")
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	compose, ok := h.host.files[releasePath(artifacts.ComposeFile)]
	if !ok || artifacts.Digest(compose) != rel.ComposeDigest {
		t.Errorf("compose file not uploaded with digest %s", rel.ComposeDigest)
	}
	if _, ok := h.host.files[releasePath(artifacts.PrometheusFile)]; !ok {
		t.Error("prometheus.yml not uploaded")
	}
	if !h.host.ran(artifacts.EnvFile) {
		t.Error("secrets file not ensured")
	}

	run, err := h.Run(ctx, "staging")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(run.Endpoints) == 0 || len(h.prober.urls) != 1 || h.prober.urls[0] != "http://10.140.190.14:1212/api/health_check" {
		t.Errorf("run endpoints %v, probes %v", run.Endpoints, h.prober.urls)
	}
	if !h.host.ran("docker compose up") {
		t.Error("compose up not executed")
	}

	tr, err := h.Test(ctx, "staging")
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	for _, c := range tr.Checks {
		if c.Status != CheckPassed {
			t.Errorf("check %s = %s (%s)", c.Name, c.Status, c.Detail)
		}
	}

	show, err := h.Show(ctx, "staging")
	if err != nil {
		t.Fatal(err)
	}
	if show.State != environment.StateRunning || show.ComposeDigest != rel.ComposeDigest || show.StartedAt == nil {
		t.Errorf("ShowResult = %+v", show)
	}

	if _, err := h.Destroy(ctx, "staging", DestroyOptions{}); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}
	if got := loadState(t, h, "staging"); got != environment.StateDestroyed {
		t.Fatalf("after destroy: %s", got)
	}
	if h.infra.count("destroy") != 1 {
		t.Errorf("tofu destroy ran %d times", h.infra.count("destroy"))
	}
	if _, err := os.Stat(h.Layout.Dir("staging")); !os.IsNotExist(err) {
		t.Errorf("build directory left behind: %v", err)
	}
}

func TestDestroyAfterEachLifecycleStage(t *testing.T) {
	type stage struct {
		state environment.State
		run   func(context.Context, *harness) error
	}
	lifecycle := []stage{
		{environment.StateProvisioned, func(ctx context.Context, h *harness) error { _, err := h.Provision(ctx, "dev"); return err }},
		{environment.StateConfigured, func(ctx context.Context, h *harness) error { _, err := h.Configure(ctx, "dev"); return err }},
		{environment.StateReleased, func(ctx context.Context, h *harness) error { _, err := h.Release(ctx, "dev"); return err }},
		{environment.StateRunning, func(ctx context.Context, h *harness) error { _, err := h.Run(ctx, "dev"); return err }},
	}

	for n := 0; n <= len(lifecycle); n++ {
		from := environment.StateCreated
		if n > 0 {
			from = lifecycle[n-1].state
		}
		t.Run(string(from), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.create(t, "dev", "")

			for _, st := range lifecycle[:n] {
				if err := st.run(ctx, h); err != nil {
					t.Fatalf("moving to %s: %v", st.state, err)
				}
				if got := loadState(t, h, "dev"); got != st.state {
					t.Fatalf("persisted state = %s, want %s", got, st.state)
				}
			}

			res, err := h.Destroy(ctx, "dev", DestroyOptions{})
			if err != nil {
				t.Fatalf("Destroy() error = %v", err)
			}
			if res.PreviousState != from {
				t.Errorf("previous state = %s, want %s", res.PreviousState, from)
			}
			if got := loadState(t, h, "dev"); got != environment.StateDestroyed {
				t.Fatalf("persisted state = %s, want destroyed", got)
			}
			wantDestroys := 1
			if n == 0 {
				wantDestroys = 0
			}
			if got := h.infra.count("destroy"); got != wantDestroys {
				t.Errorf("tofu destroy ran %d times, want %d", got, wantDestroys)
			}

			// A Destroyed environment only accepts purge.
			for _, st := range lifecycle {
				if err := st.run(ctx, h); engine.KindOf(err) != engine.KindStateTransition {
					t.Errorf("moving a destroyed environment to %s: %v, want state_transition", st.state, err)
				}
			}
			if _, err := h.Destroy(ctx, "dev", DestroyOptions{}); engine.KindOf(err) != engine.KindStateTransition {
				t.Errorf("second Destroy() = %v, want state_transition", err)
			}
			if got := loadState(t, h, "dev"); got != environment.StateDestroyed {
				t.Fatalf("persisted state after rejected commands = %s", got)
			}

			purged, err := h.Purge(ctx, "dev", PurgeOptions{Force: true})
			if err != nil {
				t.Fatalf("Purge() error = %v", err)
			}
			if purged.PreviousState != environment.StateDestroyed || purged.AlreadyAbsent {
				t.Errorf("PurgeResult = %+v", purged)
			}
			if _, found, err := h.repo.Load(ctx, "dev"); found || err != nil {
				t.Errorf("after purge: found %v, err %v", found, err)
			}
		})
	}
}

func TestRejectedCommandsAreRecorded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, "prod", "labels:\n  protected: \"true\"\n")

	tests := []struct {
		name    string
		command string
		env     string
		run     func() error
		code    string
	}{
		{"missing environment", CommandConfigure, "ghost", func() error { _, err := h.Configure(ctx, "ghost"); return err }, engine.ErrCodeNotFound},
		{"wrong state", CommandRun, "prod", func() error { _, err := h.Run(ctx, "prod"); return err }, engine.ErrCodeInvalidState},
		{"policy denial", CommandDestroy, "prod", func() error { _, err := h.Destroy(ctx, "prod", DestroyOptions{}); return err }, engine.ErrCodePolicyDenied},
		{"unconfirmed purge", CommandPurge, "prod", func() error { _, err := h.Purge(ctx, "prod", PurgeOptions{}); return err }, engine.ErrCodeConfirmationRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(h.records.commands())
			if err := tt.run(); err == nil {
				t.Fatal("expected error")
			}
			cmds := h.records.commands()
			if len(cmds) != before+1 {
				t.Fatalf("command records = %d, want %d", len(cmds), before+1)
			}
			rec := cmds[len(cmds)-1]
			if rec.Command != tt.command || rec.Environment != tt.env || rec.Status != engine.StatusFailed {
				t.Errorf("command record = %s %s %s", rec.Command, rec.Environment, rec.Status)
			}
			if e, ok := engine.AsEngineError(rec.Err); !ok || e.Code != tt.code {
				t.Errorf("recorded error = %v, want code %s", rec.Err, tt.code)
			}
		})
	}

	h.records.mu.Lock()
	starts, ends := len(h.records.starts), len(h.records.ends)
	h.records.mu.Unlock()
	if starts != ends {
		t.Errorf("starts = %d, ends = %d, want equal", starts, ends)
	}
}

func TestSaveFailureFailsCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, "dev", "")

	h.Repository = failingSaves{EnvironmentRepository: h.repo, err: &stores.RepositoryError{
		Environment: "dev", Op: "save", Kind: stores.ErrorKindIO, Err: errors.New("no space left on device"),
	}}
	res, err := h.Provision(ctx, "dev")
	if err == nil {
		t.Fatal("expected error")
	}
	if engine.KindOf(err) != engine.KindRepository {
		t.Errorf("error = %v, want repository", err)
	}
	if res.Execution.Status != engine.StatusFailed {
		t.Errorf("execution status = %s, want failed", res.Execution.Status)
	}
	for _, st := range res.Execution.Steps {
		if st.Status != engine.StatusSucceeded {
			t.Errorf("step %s = %s, want succeeded", st.Name, st.Status)
		}
	}
	rec := h.records.last(t)
	if rec.Command != CommandProvision || rec.Status != engine.StatusFailed || engine.KindOf(rec.Err) != engine.KindRepository {
		t.Errorf("command record = %s %s %v", rec.Command, rec.Status, rec.Err)
	}
	if loadState(t, h, "dev") != environment.StateCreated {
		t.Error("state changed")
	}
}

func TestIllegalTransitionLeavesDocumentUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, "dev", "")
	before := h.document(t, "dev")

	calls := []struct {
		name string
		run  func() error
	}{
		{"configure", func() error { _, err := h.Configure(ctx, "dev"); return err }},
		{"release", func() error { _, err := h.Release(ctx, "dev"); return err }},
		{"run", func() error { _, err := h.Run(ctx, "dev"); return err }},
	}
	for _, c := range calls {
		t.Run(c.name, func(t *testing.T) {
			err := c.run()
			if engine.KindOf(err) != engine.KindStateTransition {
				t.Fatalf("error = %v, want state_transition", err)
			}
			if engine.HelpFor(err) == "" {
				t.Error("missing help")
			}
			if !bytes.Equal(before, h.document(t, "dev")) {
				t.Error("document changed")
			}
			rec := h.records.last(t)
			if rec.Command != c.name || rec.Environment != "dev" || rec.Status != engine.StatusFailed {
				t.Errorf("command record = %s %s %s, want %s dev failed", rec.Command, rec.Environment, rec.Status, c.name)
			}
			if engine.KindOf(rec.Err) != engine.KindStateTransition {
				t.Errorf("recorded error = %v, want state_transition", rec.Err)
			}
		})
	}

	if len(h.infra.calls) != 0 || h.host.dials != 0 {
		t.Errorf("side effects after rejected commands: infra %v, dials %d", h.infra.calls, h.host.dials)
	}
}

func TestProvisionFailureKeepsCreated(t *testing.T) {
	transient := engine.NewTransientError("connection reset by peer", nil)
	tests := []struct {
		name     string
		faults   []error
		attempts int
	}{
		{"permanent fault", []error{engine.NewPermanentError("quota exceeded", nil)}, 1},
		{"transient fault exhausts retries", []error{transient, transient, transient}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.create(t, "env1", "")
			before := h.document(t, "env1")

			h.infra.fail("apply", tt.faults...)
			res, err := h.Provision(ctx, "env1")
			if err == nil {
				t.Fatal("Provision() succeeded, want failure")
			}
			e, _ := engine.AsEngineError(err)
			if e == nil || e.Step != "create-instance" || e.Action != "tofu-apply" {
				t.Fatalf("error = %v, want failure at create-instance/tofu-apply", err)
			}
			if res == nil || res.Execution == nil || res.Execution.FailedStep().Name != "create-instance" {
				t.Fatalf("execution report = %+v", res)
			}
			if got := res.Execution.Steps[1].Actions[1].Attempts; got != tt.attempts {
				t.Errorf("tofu-apply attempts = %d, want %d", got, tt.attempts)
			}
			if got := res.Execution.Steps[2].Status; got != engine.StatusSkipped {
				t.Errorf("step after failure = %s, want skipped", got)
			}
			if !bytes.Equal(before, h.document(t, "env1")) {
				t.Error("document changed after failed provision")
			}
			if got := loadState(t, h, "env1"); got != environment.StateCreated {
				t.Errorf("state after failure = %s", got)
			}

			if _, err := h.Provision(ctx, "env1"); err != nil {
				t.Fatalf("rerun Provision() error = %v", err)
			}
			if got := loadState(t, h, "env1"); got != environment.StateProvisioned {
				t.Errorf("after rerun: %s", got)
			}
		})
	}
}

func TestProvisionRetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, "dev", "")

	h.infra.fail("apply", engine.NewThrottledError("rate limit", nil))
	h.host.dialErrs = []error{
		&sshTemporaryError{},
		&sshTemporaryError{},
	}
	h.host.cloudInit = "status: running"

	done := make(chan struct{})
	h.RunnerOptions = []engine.RunnerOption{
		engine.WithSleep(func(context.Context, time.Duration) error {
			select {
			case <-done:
			default:
				if h.infra.count("apply") >= 2 && h.host.dials >= 3 {
					h.host.mu.Lock()
					h.host.cloudInit = "status: done"
					h.host.mu.Unlock()
					close(done)
				}
			}
			return nil
		}),
	}

	res, err := h.Provision(ctx, "dev")
	if err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if h.infra.count("apply") != 2 {
		t.Errorf("apply ran %d times, want 2", h.infra.count("apply"))
	}
	wait := res.Execution.Steps[2].Actions[0]
	if wait.Attempts != 3 {
		t.Errorf("ssh-connect attempts = %d, want 3", wait.Attempts)
	}
}

func TestProvisionCloudInitErrorIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.create(t, "dev", "")
	h.host.cloudInit = "status: error"

	res, err := h.Provision(context.Background(), "dev")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := res.Execution.Steps[3].Actions[0].Attempts; got != 1 {
		t.Errorf("cloud-init attempts = %d, want 1", got)
	}
	if got := loadState(t, h, "dev"); got != environment.StateCreated {
		t.Errorf("state = %s", got)
	}
}

func TestCreateDuplicate(t *testing.T) {
	h := newHarness(t)
	h.create(t, "dev", "")

	_, err := h.Create(context.Background(), CreateOptions{ConfigPath: h.writeConfig(t, "dev", "")})
	e, ok := engine.AsEngineError(err)
	if !ok || e.Code != engine.ErrCodeAlreadyExists {
		t.Fatalf("error = %v, want already exists", err)
	}
}

func TestCreateInvalidConfig(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("name: Bad_Name\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := h.Create(context.Background(), CreateOptions{ConfigPath: path})
	if engine.KindOf(err) != engine.KindValidation {
		t.Errorf("error = %v, want validation", err)
	}
}

func TestCommandOnMissingEnvironment(t *testing.T) {
	h := newHarness(t)
	_, err := h.Provision(context.Background(), "ghost")
	e, ok := engine.AsEngineError(err)
	if !ok || e.Code != engine.ErrCodeNotFound || e.Kind != engine.KindStateTransition {
		t.Errorf("error = %v, want not found state_transition error", err)
	}
	if rec := h.records.last(t); rec.Environment != "ghost" || rec.Status != engine.StatusFailed {
		t.Errorf("command record = %+v", rec)
	}
}

func TestListWithCorruptedDocument(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"alpha", "bravo", "charlie"} {
		h.create(t, name, "")
	}
	if err := os.WriteFile(h.repo.Path("bravo"), []byte(`{"Created":`), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := h.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Environments) != 2 || res.Environments[0].Name != "alpha" || res.Environments[1].Name != "charlie" {
		t.Errorf("environments = %+v", res.Environments)
	}
	if len(res.Failures) != 1 || res.Failures[0].Name != "bravo" || res.Failures[0].Help == "" {
		t.Errorf("failures = %+v", res.Failures)
	}
}

func TestListUnreadableEnvironment(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	h := newHarness(t)
	for _, name := range []string{"alpha", "bravo"} {
		h.create(t, name, "")
	}
	locked := h.repo.Dir("bravo")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	res, err := h.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Environments) != 1 || res.Environments[0].Name != "alpha" {
		t.Errorf("environments = %+v", res.Environments)
	}
	if len(res.Failures) != 1 || res.Failures[0].Name != "bravo" || res.Failures[0].Help == "" {
		t.Errorf("failures = %+v", res.Failures)
	}
}

func TestListEmpty(t *testing.T) {
	h := newHarness(t)
	res, err := h.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Environments) != 0 || len(res.Failures) != 0 {
		t.Errorf("List() = %+v", res)
	}
}

func TestPurgeTwice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, "dev", "")
	if _, err := h.Provision(ctx, "dev"); err != nil {
		t.Fatal(err)
	}

	first, err := h.Purge(ctx, "dev", PurgeOptions{Force: true})
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if first.AlreadyAbsent || first.PreviousState != environment.StateProvisioned {
		t.Errorf("first purge = %+v", first)
	}
	if len(first.Warnings) != 1 {
		t.Errorf("warnings = %v, want the live infrastructure warning", first.Warnings)
	}

	second, err := h.Purge(ctx, "dev", PurgeOptions{Force: true})
	if err != nil {
		t.Fatalf("second Purge() error = %v", err)
	}
	if !second.AlreadyAbsent {
		t.Error("second purge did not report already_absent")
	}

	for _, dir := range []string{h.repo.Dir("dev"), h.Layout.Dir("dev")} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("%s still exists", dir)
		}
	}
}

func TestPurgeCorruptedDocument(t *testing.T) {
	h := newHarness(t)
	h.create(t, "dev", "")
	if err := os.WriteFile(h.repo.Path("dev"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := h.Purge(context.Background(), "dev", PurgeOptions{Confirmed: true})
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if res.AlreadyAbsent {
		t.Error("corrupted document reported as absent")
	}
	if _, err := os.Stat(h.repo.Dir("dev")); !os.IsNotExist(err) {
		t.Error("data directory still exists")
	}
}

func TestPurgeRequiresConfirmation(t *testing.T) {
	h := newHarness(t)
	h.create(t, "dev", "")
	_, err := h.Purge(context.Background(), "dev", PurgeOptions{})
	e, ok := engine.AsEngineError(err)
	if !ok || e.Code != engine.ErrCodeConfirmationRequired {
		t.Fatalf("error = %v, want confirmation required", err)
	}
	if loadState(t, h, "dev") != environment.StateCreated {
		t.Error("environment changed")
	}
}

func TestDestroyProtected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, "prod", "labels:\n  protected: \"true\"\n")
	before := h.document(t, "prod")

	_, err := h.Destroy(ctx, "prod", DestroyOptions{})
	e, ok := engine.AsEngineError(err)
	if !ok || e.Code != engine.ErrCodePolicyDenied {
		t.Fatalf("error = %v, want policy denied", err)
	}
	if !bytes.Equal(before, h.document(t, "prod")) {
		t.Error("document changed")
	}

	res, err := h.Destroy(ctx, "prod", DestroyOptions{Force: true})
	if err != nil {
		t.Fatalf("forced Destroy() error = %v", err)
	}
	if res.PreviousState != environment.StateCreated {
		t.Errorf("previous state = %s", res.PreviousState)
	}
	// Never provisioned, so there is nothing to tear down.
	if h.infra.count("destroy") != 0 {
		t.Error("tofu destroy ran for an environment without infrastructure")
	}
}

func TestDestroyIsNotRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, "dev", "")
	if _, err := h.Provision(ctx, "dev"); err != nil {
		t.Fatal(err)
	}

	h.infra.fail("destroy", engine.NewTransientError("connection reset", nil))
	if _, err := h.Destroy(ctx, "dev", DestroyOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if h.infra.count("destroy") != 1 {
		t.Errorf("destroy ran %d times, want 1", h.infra.count("destroy"))
	}
	if loadState(t, h, "dev") != environment.StateProvisioned {
		t.Error("state changed after failed destroy")
	}

	if _, err := h.Destroy(ctx, "dev", DestroyOptions{}); err != nil {
		t.Fatalf("rerun Destroy() error = %v", err)
	}
	_, err := h.Destroy(ctx, "dev", DestroyOptions{})
	if engine.KindOf(err) != engine.KindStateTransition {
		t.Errorf("destroying twice: %v, want state_transition", err)
	}
}

func TestTestReportsFailedChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, "dev", "")
	if _, err := h.Provision(ctx, "dev"); err != nil {
		t.Fatal(err)
	}

	h.host.runErr = map[string]error{"cloud-init": errors.New("boom")}
	res, err := h.Test(ctx, "dev")
	if err == nil {
		t.Fatal("expected error")
	}
	want := map[string]CheckStatus{
		"ssh-connectivity": CheckPassed,
		"cloud-init":       CheckFailed,
		"docker":           CheckSkipped,
		"compose-digest":   CheckSkipped,
		"http-health":      CheckSkipped,
	}
	for _, c := range res.Checks {
		if want[c.Name] != c.Status {
			t.Errorf("check %s = %s, want %s", c.Name, c.Status, want[c.Name])
		}
	}

	exec := res.Execution
	if exec.Status != engine.StatusFailed || len(exec.Steps) != 2 {
		t.Fatalf("execution = %s with %d steps, want failed with 2", exec.Status, len(exec.Steps))
	}
	if exec.Steps[0].Status != engine.StatusSucceeded || exec.Steps[1].Status != engine.StatusFailed {
		t.Errorf("step statuses = %s, %s", exec.Steps[0].Status, exec.Steps[1].Status)
	}
	rec := h.records.last(t)
	if rec.Command != CommandTest || rec.Status != engine.StatusFailed || rec.Err == nil {
		t.Errorf("command record = %s %s %v, want test failed", rec.Command, rec.Status, rec.Err)
	}
}

func TestCancelledCommandPersistsNothing(t *testing.T) {
	h := newHarness(t)
	h.create(t, "dev", "")
	before := h.document(t, "dev")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Provision(ctx, "dev")
	if engine.KindOf(err) != engine.KindCancelled {
		t.Fatalf("error = %v, want cancelled", err)
	}
	if !bytes.Equal(before, h.document(t, "dev")) {
		t.Error("document changed")
	}
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.History(ctx, "dev", 0); engine.KindOf(err) != engine.KindValidation {
		t.Errorf("History() without audit log: %v", err)
	}

	h.Audit = &fakeAudit{runs: []*stores.CommandRecord{
		{ID: "r2", Environment: "dev", Command: "provision", Status: engine.StatusFailed, FailedStep: "create-instance"},
		{ID: "r1", Environment: "dev", Command: "create", Status: engine.StatusSucceeded},
		{ID: "r0", Environment: "other", Command: "create", Status: engine.StatusSucceeded},
	}}
	res, err := h.History(ctx, "dev", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Runs) != 2 || res.Runs[0].FailedStep != "create-instance" {
		t.Errorf("runs = %+v", res.Runs)
	}

	detail, err := h.RunDetail(ctx, "r1")
	if err != nil || detail.Command.Command != "create" {
		t.Errorf("RunDetail() = %+v, %v", detail, err)
	}
}

func TestShowCreated(t *testing.T) {
	h := newHarness(t)
	h.create(t, "dev", "")
	res, err := h.Show(context.Background(), "dev")
	if err != nil {
		t.Fatal(err)
	}
	if res.State != environment.StateCreated || res.InstanceIP != "" || res.NextCommand != CommandProvision {
		t.Errorf("ShowResult = %+v", res)
	}
	if res.InstanceName != "deployer-dev" {
		t.Errorf("instance name = %s", res.InstanceName)
	}
}

// sshTemporaryError mimics a refused connection from the ssh transport.
type sshTemporaryError struct{}

func (*sshTemporaryError) Error() string   { return "connection refused" }
func (*sshTemporaryError) Temporary() bool { return true }
