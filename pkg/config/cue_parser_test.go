package config

import (
	"strings"
	"testing"
)

func TestCUEParser_Parse(t *testing.T) {
	parser, err := NewCUEParser()
	if err != nil {
		t.Fatalf("NewCUEParser() error = %v", err)
	}

	tests := []struct {
		name      string
		content   string
		wantErr   string
		checkFunc func(*testing.T, *EnvironmentConfig)
	}{
		{
			name: "lxd with schema defaults",
			content: `
name: "staging"
ssh: {
	private_key_path: "keys/id_ed25519"
	public_key_path:  "keys/id_ed25519.pub"
}
provider: {
	kind: "lxd"
	lxd: profile_name: "deployer-staging"
}
`,
			checkFunc: func(t *testing.T, cfg *EnvironmentConfig) {
				if cfg.SSH.Port != 22 || cfg.SSH.Username != DefaultSSHUsername {
					t.Errorf("ssh defaults not applied: %+v", cfg.SSH)
				}
				if cfg.Provider.LXD == nil || cfg.Provider.LXD.ProfileName != "deployer-staging" {
					t.Errorf("lxd provider = %+v", cfg.Provider)
				}
			},
		},
		{
			name: "hetzner with overrides and services",
			content: `
name: "prod-1"
ssh: {
	private_key_path: "k"
	public_key_path:  "k.pub"
	port:             2222
}
provider: {
	kind: "hetzner"
	hetzner: {
		api_token: "secret"
		location:  "fsn1"
	}
}
services: {
	mysql:      true
	prometheus: true
}
labels: protected: "true"
`,
			checkFunc: func(t *testing.T, cfg *EnvironmentConfig) {
				h := cfg.Provider.Hetzner
				if h == nil || h.Location != "fsn1" || h.ServerType != DefaultHetznerServerType || h.Image != DefaultHetznerImage {
					t.Errorf("hetzner provider = %+v", h)
				}
				if cfg.SSH.Port != 2222 {
					t.Errorf("port = %d, want 2222", cfg.SSH.Port)
				}
				if !cfg.Services.MySQL || !cfg.Services.Prometheus || cfg.Services.Grafana {
					t.Errorf("services = %+v", cfg.Services)
				}
				if cfg.Labels["protected"] != "true" {
					t.Errorf("labels = %v", cfg.Labels)
				}
			},
		},
		{
			name:    "invalid CUE syntax",
			content: `name: "demo" ssh: {`,
			wantErr: "cue parse",
		},
		{
			name: "invalid name",
			content: `
name: "Demo"
ssh: {private_key_path: "k", public_key_path: "k.pub"}
provider: {kind: "lxd", lxd: profile_name: "p"}
`,
			wantErr: "cue validate",
		},
		{
			name: "unknown field",
			content: `
name: "demo"
colour: "blue"
ssh: {private_key_path: "k", public_key_path: "k.pub"}
provider: {kind: "lxd", lxd: profile_name: "p"}
`,
			wantErr: "cue",
		},
		{
			name: "unknown provider",
			content: `
name: "demo"
ssh: {private_key_path: "k", public_key_path: "k.pub"}
provider: {kind: "aws"}
`,
			wantErr: "cue",
		},
		{
			name: "missing ssh keys",
			content: `
name: "demo"
provider: {kind: "lxd", lxd: profile_name: "p"}
`,
			wantErr: "cue validate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parser.Parse("env.cue", []byte(tt.content))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Parse() expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Parse() error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			tt.checkFunc(t, cfg)
		})
	}
}
