package environment

import (
	"fmt"
)

// ProviderKind names an infrastructure provider.
type ProviderKind string

const (
	// ProviderLXD provisions a local LXD virtual machine.
	ProviderLXD ProviderKind = "lxd"

	// ProviderHetzner provisions a Hetzner Cloud server.
	ProviderHetzner ProviderKind = "hetzner"
)

// Provider is a closed set of provider variants. Exactly the variant named
// by Kind is set.
type Provider struct {
	Kind    ProviderKind     `json:"kind"`
	LXD     *LXDProvider     `json:"lxd,omitempty"`
	Hetzner *HetznerProvider `json:"hetzner,omitempty"`
}

// LXDProvider configures a local LXD virtual machine.
type LXDProvider struct {
	ProfileName string `json:"profile_name"`
}

// HetznerProvider configures a Hetzner Cloud server.
type HetznerProvider struct {
	APIToken   string `json:"api_token"`
	ServerType string `json:"server_type"`
	Location   string `json:"location"`
	Image      string `json:"image"`
}

// NewLXDProvider returns an LXD provider variant.
func NewLXDProvider(profile string) Provider {
	return Provider{Kind: ProviderLXD, LXD: &LXDProvider{ProfileName: profile}}
}

// NewHetznerProvider returns a Hetzner provider variant.
func NewHetznerProvider(p HetznerProvider) Provider {
	return Provider{Kind: ProviderHetzner, Hetzner: &p}
}

// Validate checks that exactly the variant named by Kind is present and complete.
func (p Provider) Validate() error {
	switch p.Kind {
	case ProviderLXD:
		if p.LXD == nil || p.Hetzner != nil {
			return fmt.Errorf("provider %q requires exactly the lxd section", p.Kind)
		}
		if p.LXD.ProfileName == "" {
			return fmt.Errorf("lxd profile name is required")
		}
	case ProviderHetzner:
		if p.Hetzner == nil || p.LXD != nil {
			return fmt.Errorf("provider %q requires exactly the hetzner section", p.Kind)
		}
		h := p.Hetzner
		switch {
		case h.APIToken == "":
			return fmt.Errorf("hetzner api token is required")
		case h.ServerType == "":
			return fmt.Errorf("hetzner server type is required")
		case h.Location == "":
			return fmt.Errorf("hetzner location is required")
		case h.Image == "":
			return fmt.Errorf("hetzner image is required")
		}
	default:
		return fmt.Errorf("unknown provider %q (supported: %s, %s)", p.Kind, ProviderLXD, ProviderHetzner)
	}
	return nil
}

// Redacted returns a copy safe for display.
func (p Provider) Redacted() Provider {
	if p.Hetzner != nil {
		h := *p.Hetzner
		if h.APIToken != "" {
			h.APIToken = "********"
		}
		p.Hetzner = &h
	}
	return p
}
