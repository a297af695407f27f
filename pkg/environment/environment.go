// Package environment models a deployment target and its lifecycle.
//
// Every lifecycle state is its own Go type carrying only the data that
// exists at that point: a *Created environment has no IP address, a
// *Provisioned one does. Transitions are methods that return a new value of
// the next state's type, so an out-of-order operation does not compile.
// Values loaded from disk arrive as AnyEnvironment and are narrowed with
// Require before any work starts.
package environment

import (
	"fmt"
	"maps"
	"time"
)

// Common holds the fields shared by every state.
type Common struct {
	Name Name `json:"name"`

	// InstanceName is the VM name used by the infrastructure provider.
	InstanceName string `json:"instance_name"`

	Credentials Credentials `json:"credentials"`
	Provider    Provider    `json:"provider"`
	Services    Services    `json:"services"`

	// Labels are free-form key/value pairs, evaluated by the policy guard.
	Labels map[string]string `json:"labels,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Credentials describes how to reach the VM over SSH.
type Credentials struct {
	PrivateKeyPath string `json:"ssh_private_key_path"`
	PublicKeyPath  string `json:"ssh_public_key_path"`
	Username       string `json:"ssh_username"`
	Port           int    `json:"ssh_port"`
}

// Services is the set of features deployed on the VM. It is fixed at creation.
type Services struct {
	MySQL      bool `json:"mysql"`
	Prometheus bool `json:"prometheus"`
	Grafana    bool `json:"grafana"`

	// HTTPAPIPort is the tracker HTTP API port probed by health checks.
	HTTPAPIPort int `json:"http_api_port"`

	// TrackerDomain enables TLS for the tracker when set.
	TrackerDomain string `json:"tracker_domain,omitempty"`

	// GrafanaDomain enables TLS for Grafana when set.
	GrafanaDomain string `json:"grafana_domain,omitempty"`

	// AdminEmail is used for certificate registration.
	AdminEmail string `json:"admin_email,omitempty"`
}

// TLSEnabled reports whether any service is published behind the TLS proxy.
func (s Services) TLSEnabled() bool {
	return s.TrackerDomain != "" || (s.Grafana && s.GrafanaDomain != "")
}

// Domains returns the configured public domains.
func (s Services) Domains() []string {
	var out []string
	if s.TrackerDomain != "" {
		out = append(out, s.TrackerDomain)
	}
	if s.Grafana && s.GrafanaDomain != "" {
		out = append(out, s.GrafanaDomain)
	}
	return out
}

// Instance is the VM data known from provisioning onwards.
type Instance struct {
	IP            string    `json:"instance_ip"`
	ProvisionedAt time.Time `json:"provisioned_at"`
}

// Release is the data recorded when the application files were uploaded.
type Release struct {
	ReleasedAt    time.Time `json:"released_at"`
	ComposeDigest string    `json:"compose_digest"`
}

// AnyEnvironment is an environment in one of its lifecycle states.
// The set of implementations is closed to this package.
type AnyEnvironment interface {
	// State returns the lifecycle state.
	State() State

	// Base returns a copy of the fields shared by every state.
	Base() Common

	isEnvironment()
}

// Created is a registered environment without infrastructure.
type Created struct {
	Common
}

// Provisioned is an environment whose VM exists and accepts SSH connections.
type Provisioned struct {
	Common
	Instance
}

// Configured is a provisioned environment with the container runtime installed.
type Configured struct {
	Common
	Instance
	ConfiguredAt time.Time `json:"configured_at"`
}

// Released is a configured environment with the application files uploaded.
type Released struct {
	Common
	Instance
	ConfiguredAt time.Time `json:"configured_at"`
	Release
}

// Running is a released environment whose services are started.
type Running struct {
	Common
	Instance
	ConfiguredAt time.Time `json:"configured_at"`
	Release
	StartedAt time.Time `json:"started_at"`
}

// Destroyed is an environment whose infrastructure was torn down.
type Destroyed struct {
	Common
	DestroyedAt time.Time `json:"destroyed_at"`
}

func (*Created) State() State     { return StateCreated }
func (*Provisioned) State() State { return StateProvisioned }
func (*Configured) State() State  { return StateConfigured }
func (*Released) State() State    { return StateReleased }
func (*Running) State() State     { return StateRunning }
func (*Destroyed) State() State   { return StateDestroyed }

func (e *Created) Base() Common     { return e.Common.clone() }
func (e *Provisioned) Base() Common { return e.Common.clone() }
func (e *Configured) Base() Common  { return e.Common.clone() }
func (e *Released) Base() Common    { return e.Common.clone() }
func (e *Running) Base() Common     { return e.Common.clone() }
func (e *Destroyed) Base() Common   { return e.Common.clone() }

func (*Created) isEnvironment()     {}
func (*Provisioned) isEnvironment() {}
func (*Configured) isEnvironment()  {}
func (*Released) isEnvironment()    {}
func (*Running) isEnvironment()     {}
func (*Destroyed) isEnvironment()   {}

func (c Common) clone() Common {
	c.Labels = maps.Clone(c.Labels)
	return c
}

func (c Common) touched(at time.Time) Common {
	c = c.clone()
	c.UpdatedAt = at
	return c
}

// DefaultInstanceName derives the VM name for an environment.
func DefaultInstanceName(name Name) string {
	return "deployer-" + string(name)
}

// New creates an environment in the Created state.
func New(common Common, at time.Time) (*Created, error) {
	if err := ValidateName(string(common.Name)); err != nil {
		return nil, err
	}
	if err := common.Provider.Validate(); err != nil {
		return nil, err
	}
	if err := common.Credentials.Validate(); err != nil {
		return nil, err
	}
	if common.InstanceName == "" {
		common.InstanceName = DefaultInstanceName(common.Name)
	}
	common = common.clone()
	common.CreatedAt = at
	common.UpdatedAt = at
	return &Created{Common: common}, nil
}

// Validate checks the SSH credential fields.
func (c Credentials) Validate() error {
	if c.PrivateKeyPath == "" {
		return fmt.Errorf("ssh private key path is required")
	}
	if c.PublicKeyPath == "" {
		return fmt.Errorf("ssh public key path is required")
	}
	if c.Username == "" {
		return fmt.Errorf("ssh username is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("ssh port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Provision records the VM address. The receiver is not modified.
func (e *Created) Provision(ip string, at time.Time) *Provisioned {
	return &Provisioned{
		Common:   e.Common.touched(at),
		Instance: Instance{IP: ip, ProvisionedAt: at},
	}
}

// Configure marks the VM as configured. The receiver is not modified.
func (e *Provisioned) Configure(at time.Time) *Configured {
	return &Configured{
		Common:       e.Common.touched(at),
		Instance:     e.Instance,
		ConfiguredAt: at,
	}
}

// Release records the uploaded compose file digest. The receiver is not modified.
func (e *Configured) Release(composeDigest string, at time.Time) *Released {
	return &Released{
		Common:       e.Common.touched(at),
		Instance:     e.Instance,
		ConfiguredAt: e.ConfiguredAt,
		Release:      Release{ReleasedAt: at, ComposeDigest: composeDigest},
	}
}

// Start marks the services as running. The receiver is not modified.
func (e *Released) Start(at time.Time) *Running {
	return &Running{
		Common:       e.Common.touched(at),
		Instance:     e.Instance,
		ConfiguredAt: e.ConfiguredAt,
		Release:      e.Release,
		StartedAt:    at,
	}
}

// Destroy moves any non-terminal environment to Destroyed, dropping
// infrastructure data.
func Destroy(env AnyEnvironment, at time.Time) (*Destroyed, error) {
	base := env.Base()
	if err := Transition(base.Name, env.State(), StateDestroyed); err != nil {
		return nil, err
	}
	base.UpdatedAt = at
	return &Destroyed{Common: base, DestroyedAt: at}, nil
}

// InstanceOf returns the VM data of env, if its state has any.
func InstanceOf(env AnyEnvironment) (Instance, bool) {
	switch e := env.(type) {
	case *Provisioned:
		return e.Instance, true
	case *Configured:
		return e.Instance, true
	case *Released:
		return e.Instance, true
	case *Running:
		return e.Instance, true
	default:
		return Instance{}, false
	}
}

// ReleaseOf returns the release data of env, if its state has any.
func ReleaseOf(env AnyEnvironment) (Release, bool) {
	switch e := env.(type) {
	case *Released:
		return e.Release, true
	case *Running:
		return e.Release, true
	default:
		return Release{}, false
	}
}
