package config

import (
	"fmt"
	"maps"

	"github.com/openfroyo/deployer/pkg/environment"
)

// EnvironmentConfig is the user-supplied description of a new environment.
// It can be written as YAML, JSON or CUE.
type EnvironmentConfig struct {
	// Name is the environment name, used as the persistence key.
	Name string `json:"name" yaml:"name" validate:"required,envname"`

	// InstanceName overrides the derived VM name.
	InstanceName string `json:"instance_name,omitempty" yaml:"instance_name,omitempty" validate:"omitempty,hostname_rfc1123,max=63"`

	SSH      SSHConfig      `json:"ssh" yaml:"ssh" validate:"required"`
	Provider ProviderConfig `json:"provider" yaml:"provider" validate:"required"`
	Services ServicesConfig `json:"services,omitempty" yaml:"services,omitempty"`

	// Labels are free-form metadata evaluated by policies.
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty" validate:"omitempty,dive,keys,required,max=63,endkeys,max=256"`
}

// SSHConfig describes the SSH credentials for the VM.
type SSHConfig struct {
	PrivateKeyPath string `json:"private_key_path" yaml:"private_key_path" validate:"required"`
	PublicKeyPath  string `json:"public_key_path" yaml:"public_key_path" validate:"required"`
	Username       string `json:"username,omitempty" yaml:"username,omitempty" validate:"required"`
	Port           int    `json:"port,omitempty" yaml:"port,omitempty" validate:"min=1,max=65535"`
}

// ProviderConfig selects and configures the infrastructure provider.
type ProviderConfig struct {
	Kind    string         `json:"kind" yaml:"kind" validate:"required,oneof=lxd hetzner"`
	LXD     *LXDConfig     `json:"lxd,omitempty" yaml:"lxd,omitempty" validate:"required_if=Kind lxd,excluded_unless=Kind lxd"`
	Hetzner *HetznerConfig `json:"hetzner,omitempty" yaml:"hetzner,omitempty" validate:"required_if=Kind hetzner,excluded_unless=Kind hetzner"`
}

// LXDConfig configures a local LXD virtual machine.
type LXDConfig struct {
	ProfileName string `json:"profile_name" yaml:"profile_name" validate:"required"`
}

// HetznerConfig configures a Hetzner Cloud server.
type HetznerConfig struct {
	APIToken   string `json:"api_token" yaml:"api_token" validate:"required"`
	ServerType string `json:"server_type,omitempty" yaml:"server_type,omitempty" validate:"required"`
	Location   string `json:"location,omitempty" yaml:"location,omitempty" validate:"required"`
	Image      string `json:"image,omitempty" yaml:"image,omitempty" validate:"required"`
}

// ServicesConfig enables optional services of the deployed stack.
type ServicesConfig struct {
	MySQL         bool   `json:"mysql,omitempty" yaml:"mysql,omitempty"`
	Prometheus    bool   `json:"prometheus,omitempty" yaml:"prometheus,omitempty"`
	Grafana       bool   `json:"grafana,omitempty" yaml:"grafana,omitempty"`
	HTTPAPIPort   int    `json:"http_api_port,omitempty" yaml:"http_api_port,omitempty" validate:"min=1,max=65535"`
	TrackerDomain string `json:"tracker_domain,omitempty" yaml:"tracker_domain,omitempty" validate:"omitempty,fqdn"`
	GrafanaDomain string `json:"grafana_domain,omitempty" yaml:"grafana_domain,omitempty" validate:"omitempty,fqdn"`
	AdminEmail    string `json:"admin_email,omitempty" yaml:"admin_email,omitempty" validate:"omitempty,email"`
}

// Defaults used when the creation config omits a value.
const (
	DefaultSSHUsername       = "torrust"
	DefaultSSHPort           = 22
	DefaultHTTPAPIPort       = 1212
	DefaultHetznerServerType = "cx22"
	DefaultHetznerLocation   = "nbg1"
	DefaultHetznerImage      = "ubuntu-24.04"
)

// ApplyDefaults fills in optional values.
func (c *EnvironmentConfig) ApplyDefaults() {
	if c.SSH.Username == "" {
		c.SSH.Username = DefaultSSHUsername
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = DefaultSSHPort
	}
	if c.Services.HTTPAPIPort == 0 {
		c.Services.HTTPAPIPort = DefaultHTTPAPIPort
	}
	if h := c.Provider.Hetzner; h != nil {
		if h.ServerType == "" {
			h.ServerType = DefaultHetznerServerType
		}
		if h.Location == "" {
			h.Location = DefaultHetznerLocation
		}
		if h.Image == "" {
			h.Image = DefaultHetznerImage
		}
	}
}

// ToCommon converts a validated config into the shared environment fields.
func (c *EnvironmentConfig) ToCommon() (environment.Common, error) {
	name, err := environment.NewName(c.Name)
	if err != nil {
		return environment.Common{}, err
	}

	var provider environment.Provider
	switch environment.ProviderKind(c.Provider.Kind) {
	case environment.ProviderLXD:
		if c.Provider.LXD == nil {
			return environment.Common{}, fmt.Errorf("provider lxd requires the lxd section")
		}
		provider = environment.NewLXDProvider(c.Provider.LXD.ProfileName)
	case environment.ProviderHetzner:
		if c.Provider.Hetzner == nil {
			return environment.Common{}, fmt.Errorf("provider hetzner requires the hetzner section")
		}
		h := c.Provider.Hetzner
		provider = environment.NewHetznerProvider(environment.HetznerProvider{
			APIToken:   h.APIToken,
			ServerType: h.ServerType,
			Location:   h.Location,
			Image:      h.Image,
		})
	default:
		return environment.Common{}, fmt.Errorf("unknown provider %q", c.Provider.Kind)
	}

	return environment.Common{
		Name:         name,
		InstanceName: c.InstanceName,
		Credentials: environment.Credentials{
			PrivateKeyPath: c.SSH.PrivateKeyPath,
			PublicKeyPath:  c.SSH.PublicKeyPath,
			Username:       c.SSH.Username,
			Port:           c.SSH.Port,
		},
		Provider: provider,
		Services: environment.Services{
			MySQL:         c.Services.MySQL,
			Prometheus:    c.Services.Prometheus,
			Grafana:       c.Services.Grafana,
			HTTPAPIPort:   c.Services.HTTPAPIPort,
			TrackerDomain: c.Services.TrackerDomain,
			GrafanaDomain: c.Services.GrafanaDomain,
			AdminEmail:    c.Services.AdminEmail,
		},
		Labels: maps.Clone(c.Labels),
	}, nil
}
