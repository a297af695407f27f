package commands

import (
	"time"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
	"github.com/openfroyo/deployer/pkg/stores"
)

// CreateResult is returned by Create.
type CreateResult struct {
	Name         environment.Name         `json:"name"`
	State        environment.State        `json:"state"`
	InstanceName string                   `json:"instance_name"`
	Provider     environment.ProviderKind `json:"provider"`
	Warnings     []string                 `json:"warnings,omitempty"`
	Execution    *engine.CommandResult    `json:"execution"`
}

// ProvisionResult is returned by Provision.
type ProvisionResult struct {
	Name          environment.Name         `json:"name"`
	InstanceIP    string                   `json:"instance_ip"`
	SSHUser       string                   `json:"ssh_user"`
	SSHPort       int                      `json:"ssh_port"`
	SSHKeyPath    string                   `json:"ssh_key_path"`
	Provider      environment.ProviderKind `json:"provider"`
	ProvisionedAt time.Time                `json:"provisioned_at"`
	Domains       []string                 `json:"domains,omitempty"`
	Warnings      []string                 `json:"warnings,omitempty"`
	Execution     *engine.CommandResult    `json:"execution"`
}

// ConfigureResult is returned by Configure.
type ConfigureResult struct {
	Name         environment.Name      `json:"name"`
	InstanceIP   string                `json:"instance_ip"`
	ConfiguredAt time.Time             `json:"configured_at"`
	Warnings     []string              `json:"warnings,omitempty"`
	Execution    *engine.CommandResult `json:"execution"`
}

// ReleaseResult is returned by Release.
type ReleaseResult struct {
	Name          environment.Name      `json:"name"`
	InstanceIP    string                `json:"instance_ip"`
	ComposeDigest string                `json:"compose_digest"`
	Files         []string              `json:"files"`
	ReleasedAt    time.Time             `json:"released_at"`
	Warnings      []string              `json:"warnings,omitempty"`
	Execution     *engine.CommandResult `json:"execution"`
}

// RunResult is returned by Run.
type RunResult struct {
	Name       environment.Name      `json:"name"`
	InstanceIP string                `json:"instance_ip"`
	Endpoints  []string              `json:"endpoints"`
	StartedAt  time.Time             `json:"started_at"`
	Warnings   []string              `json:"warnings,omitempty"`
	Execution  *engine.CommandResult `json:"execution"`
}

// DestroyResult is returned by Destroy.
type DestroyResult struct {
	Name          environment.Name      `json:"name"`
	PreviousState environment.State     `json:"previous_state"`
	DestroyedAt   time.Time             `json:"destroyed_at"`
	Warnings      []string              `json:"warnings,omitempty"`
	Execution     *engine.CommandResult `json:"execution"`
}

// CheckStatus is the outcome of one test check.
type CheckStatus string

const (
	CheckPassed  CheckStatus = "passed"
	CheckFailed  CheckStatus = "failed"
	CheckSkipped CheckStatus = "skipped"
)

// Check is one test check.
type Check struct {
	Name   string      `json:"name"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// TestResult is returned by Test.
type TestResult struct {
	Name      environment.Name      `json:"name"`
	State     environment.State     `json:"state"`
	Checks    []Check               `json:"checks"`
	Execution *engine.CommandResult `json:"execution"`
}

// Passed reports whether no check failed.
func (r *TestResult) Passed() bool {
	for _, c := range r.Checks {
		if c.Status == CheckFailed {
			return false
		}
	}
	return true
}

// Summary is one row of List.
type Summary struct {
	Name       environment.Name         `json:"name"`
	State      environment.State        `json:"state"`
	Provider   environment.ProviderKind `json:"provider"`
	InstanceIP string                   `json:"instance_ip,omitempty"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// ListFailure is an environment that could not be loaded.
type ListFailure struct {
	Name  environment.Name `json:"name"`
	Error string           `json:"error"`
	Help  string           `json:"help,omitempty"`
}

// ListResult is returned by List. Failures are warnings; the command
// still succeeds.
type ListResult struct {
	Environments []Summary     `json:"environments"`
	Failures     []ListFailure `json:"failures,omitempty"`
}

// PurgeResult is returned by Purge.
type PurgeResult struct {
	Name          environment.Name  `json:"name"`
	AlreadyAbsent bool              `json:"already_absent"`
	PreviousState environment.State `json:"previous_state,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// ShowResult is returned by Show. Fields after State are set only when the
// state carries them.
type ShowResult struct {
	Name         environment.Name     `json:"name"`
	State        environment.State    `json:"state"`
	InstanceName string               `json:"instance_name"`
	Provider     environment.Provider `json:"provider"`
	SSHUser      string               `json:"ssh_user"`
	SSHPort      int                  `json:"ssh_port"`
	SSHKeyPath   string               `json:"ssh_key_path"`
	Services     environment.Services `json:"services"`
	Labels       map[string]string    `json:"labels,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`

	InstanceIP    string     `json:"instance_ip,omitempty"`
	ProvisionedAt *time.Time `json:"provisioned_at,omitempty"`
	ConfiguredAt  *time.Time `json:"configured_at,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	ComposeDigest string     `json:"compose_digest,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	DestroyedAt   *time.Time `json:"destroyed_at,omitempty"`

	Endpoints []string `json:"endpoints,omitempty"`

	// NextCommand is the command that moves the environment forward.
	NextCommand string `json:"next_command,omitempty"`
}

// HistoryResult is returned by History.
type HistoryResult struct {
	Name environment.Name        `json:"name"`
	Runs []*stores.CommandRecord `json:"runs"`
}
