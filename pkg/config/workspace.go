package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/telemetry"
)

// DefaultWorkspaceFile is looked up in the working directory when no
// --config-file flag is given.
const DefaultWorkspaceFile = "deployer.yaml"

// Workspace holds the per-checkout settings shared by all environments.
type Workspace struct {
	// DataDir holds one directory per environment with its state document.
	DataDir string `yaml:"data_dir"`

	// BuildDir holds generated artifacts, one directory per environment.
	BuildDir string `yaml:"build_dir"`

	// AuditDB is the SQLite file recording command executions. Empty
	// disables the audit log.
	AuditDB string `yaml:"audit_db"`

	// PolicyDir holds additional .rego files evaluated by the command guard.
	PolicyDir string `yaml:"policy_dir"`

	// ListConcurrency bounds the parallel document loads of "list".
	ListConcurrency int `yaml:"list_concurrency"`

	Tools     ToolsConfig       `yaml:"tools"`
	Retry     RetryConfig       `yaml:"retry"`
	Timeouts  TimeoutConfig     `yaml:"timeouts"`
	Telemetry *telemetry.Config `yaml:"telemetry"`
}

// ToolsConfig names the external binaries.
type ToolsConfig struct {
	Tofu            string `yaml:"tofu"`
	AnsiblePlaybook string `yaml:"ansible_playbook"`
}

// RetryConfig lists the explicit retry policies of the actions that wait
// for remote resources. Actions not listed here run exactly once.
type RetryConfig struct {
	SSHConnectivity engine.RetryPolicy `yaml:"ssh_connectivity"`
	CloudInit       engine.RetryPolicy `yaml:"cloud_init"`
	HealthCheck     engine.RetryPolicy `yaml:"health_check"`
	ProviderAPI     engine.RetryPolicy `yaml:"provider_api"`
}

// TimeoutConfig bounds individual action attempts.
type TimeoutConfig struct {
	SSHConnect    time.Duration `yaml:"ssh_connect"`
	RemoteCommand time.Duration `yaml:"remote_command"`
	Tool          time.Duration `yaml:"tool"`
	HTTPProbe     time.Duration `yaml:"http_probe"`
}

// DefaultWorkspace returns the settings used without a workspace file.
func DefaultWorkspace() *Workspace {
	return &Workspace{
		DataDir:         "data",
		BuildDir:        "build",
		AuditDB:         filepath.Join("data", "audit.db"),
		PolicyDir:       "",
		ListConcurrency: 8,
		Tools: ToolsConfig{
			Tofu:            "tofu",
			AnsiblePlaybook: "ansible-playbook",
		},
		Retry: RetryConfig{
			SSHConnectivity: engine.RetryPolicy{MaxAttempts: 30, InitialDelay: 2 * time.Second, MaxDelay: 10 * time.Second, Multiplier: 1.5},
			CloudInit:       engine.RetryPolicy{MaxAttempts: 60, InitialDelay: 5 * time.Second, MaxDelay: 5 * time.Second, Multiplier: 1},
			HealthCheck:     engine.RetryPolicy{MaxAttempts: 10, InitialDelay: 3 * time.Second, MaxDelay: 15 * time.Second, Multiplier: 2},
			ProviderAPI:     engine.RetryPolicy{MaxAttempts: 3, InitialDelay: 10 * time.Second, MaxDelay: time.Minute, Multiplier: 2},
		},
		Timeouts: TimeoutConfig{
			SSHConnect:    10 * time.Second,
			RemoteCommand: 5 * time.Minute,
			Tool:          30 * time.Minute,
			HTTPProbe:     5 * time.Second,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// LoadWorkspace reads the workspace file at path over the defaults and then
// applies DEPLOYER_* environment overrides. An empty path falls back to
// DefaultWorkspaceFile, which may be absent.
func LoadWorkspace(path string) (*Workspace, error) {
	ws := DefaultWorkspace()

	explicit := path != ""
	if !explicit {
		path = DefaultWorkspaceFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := ws.decode(data); err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("invalid workspace file %s: %v", path, err), err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, engine.NewValidationError(fmt.Sprintf("cannot read workspace file %s", path), err)
	}

	if err := ws.applyEnv(os.LookupEnv); err != nil {
		return nil, engine.NewValidationError(err.Error(), err)
	}
	if err := ws.Validate(); err != nil {
		return nil, engine.NewValidationError(fmt.Sprintf("invalid workspace configuration: %v", err), err)
	}
	return ws, nil
}

func (ws *Workspace) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(ws); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if ws.Telemetry == nil {
		ws.Telemetry = telemetry.DefaultConfig()
	}
	return nil
}

// applyEnv overrides settings from the environment. lookup is os.LookupEnv
// outside tests.
func (ws *Workspace) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DEPLOYER_DATA_DIR":   &ws.DataDir,
		"DEPLOYER_BUILD_DIR":  &ws.BuildDir,
		"DEPLOYER_AUDIT_DB":   &ws.AuditDB,
		"DEPLOYER_POLICY_DIR": &ws.PolicyDir,
		"DEPLOYER_LOG_LEVEL":  &ws.Telemetry.Logging.Level,
		"DEPLOYER_LOG_FORMAT": &ws.Telemetry.Logging.Format,
		"DEPLOYER_TOFU":       &ws.Tools.Tofu,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("DEPLOYER_LIST_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEPLOYER_LIST_CONCURRENCY: %w", err)
		}
		ws.ListConcurrency = n
	}
	return nil
}

// Validate checks the settings.
func (ws *Workspace) Validate() error {
	if ws.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if ws.BuildDir == "" {
		return errors.New("build_dir is required")
	}
	if ws.ListConcurrency < 1 {
		return fmt.Errorf("list_concurrency must be positive, got %d", ws.ListConcurrency)
	}

	policies := map[string]engine.RetryPolicy{
		"retry.ssh_connectivity": ws.Retry.SSHConnectivity,
		"retry.cloud_init":       ws.Retry.CloudInit,
		"retry.health_check":     ws.Retry.HealthCheck,
		"retry.provider_api":     ws.Retry.ProviderAPI,
	}
	for name, p := range policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return ws.Telemetry.Validate()
}
