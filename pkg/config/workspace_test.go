package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWorkspace_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	ws, err := LoadWorkspace("")
	if err != nil {
		t.Fatalf("LoadWorkspace() error = %v", err)
	}
	if ws.DataDir != "data" || ws.BuildDir != "build" || ws.ListConcurrency != 8 {
		t.Errorf("unexpected defaults: %+v", ws)
	}
	if ws.Retry.SSHConnectivity.MaxAttempts != 30 {
		t.Errorf("ssh retry = %+v", ws.Retry.SSHConnectivity)
	}
}

func TestLoadWorkspace_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployer.yaml")
	content := `
data_dir: /var/lib/deployer
retry:
  ssh_connectivity:
    max_attempts: 5
    initial_delay: 1s
    max_delay: 4s
telemetry:
  logging:
    format: json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	ws, err := LoadWorkspace(path)
	if err != nil {
		t.Fatalf("LoadWorkspace() error = %v", err)
	}
	if ws.DataDir != "/var/lib/deployer" {
		t.Errorf("DataDir = %q", ws.DataDir)
	}
	if ws.BuildDir != "build" {
		t.Errorf("BuildDir default lost: %q", ws.BuildDir)
	}
	p := ws.Retry.SSHConnectivity
	if p.MaxAttempts != 5 || p.InitialDelay != time.Second || p.MaxDelay != 4*time.Second {
		t.Errorf("ssh retry = %+v", p)
	}
	if ws.Telemetry.Logging.Format != "json" || ws.Telemetry.Logging.Level != "info" {
		t.Errorf("logging = %+v", ws.Telemetry.Logging)
	}
}

func TestLoadWorkspace_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	tests := []struct {
		name string
		path string
	}{
		{"explicit missing file", filepath.Join(dir, "nope.yaml")},
		{"unknown key", write("unknown.yaml", "datadir: x\n")},
		{"bad retry", write("retry.yaml", "retry:\n  cloud_init:\n    max_attempts: 0\n")},
		{"bad concurrency", write("conc.yaml", "list_concurrency: 0\n")},
		{"bad log level", write("log.yaml", "telemetry:\n  logging:\n    level: loud\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadWorkspace(tt.path); err == nil {
				t.Error("LoadWorkspace() expected error")
			}
		})
	}
}

func TestWorkspace_ApplyEnv(t *testing.T) {
	env := map[string]string{
		"DEPLOYER_DATA_DIR":         "/tmp/data",
		"DEPLOYER_LOG_LEVEL":        "debug",
		"DEPLOYER_LIST_CONCURRENCY": "2",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	ws := DefaultWorkspace()
	if err := ws.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}
	if ws.DataDir != "/tmp/data" || ws.Telemetry.Logging.Level != "debug" || ws.ListConcurrency != 2 {
		t.Errorf("overrides not applied: %+v", ws)
	}

	env["DEPLOYER_LIST_CONCURRENCY"] = "many"
	if err := ws.applyEnv(lookup); err == nil {
		t.Error("applyEnv() expected error for non-numeric concurrency")
	}
}
