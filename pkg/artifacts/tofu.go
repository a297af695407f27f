package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/deployer/pkg/environment"
)

// Tofu file names.
const (
	TofuMainFile      = "main.tf.json"
	CloudInitFile     = "cloud-init.yml"
	InstanceIPOutput  = "instance_ip"
	hcloudTokenVar    = "hcloud_token"
	lxdDefaultImage   = "ubuntu:24.04"
	lxdProviderSource = "terraform-lxd/lxd"
)

// Infrastructure is the rendered OpenTofu configuration.
type Infrastructure struct {
	Dir   string
	Files []File

	// Env carries secrets for the tofu process, e.g. TF_VAR_hcloud_token.
	// They are never written to disk.
	Env []string
}

// cloudConfig is the cloud-init user data creating the SSH user.
type cloudConfig struct {
	Users         []cloudUser `yaml:"users"`
	PackageUpdate bool        `yaml:"package_update"`
	Packages      []string    `yaml:"packages,omitempty"`
}

type cloudUser struct {
	Name              string   `yaml:"name"`
	Sudo              string   `yaml:"sudo"`
	Shell             string   `yaml:"shell"`
	Groups            string   `yaml:"groups,omitempty"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys"`
}

func renderCloudInit(c environment.Common) ([]byte, error) {
	key, err := os.ReadFile(c.Credentials.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh public key: %w", err)
	}

	cfg := cloudConfig{
		Users: []cloudUser{{
			Name:              c.Credentials.Username,
			Sudo:              "ALL=(ALL) NOPASSWD:ALL",
			Shell:             "/bin/bash",
			SSHAuthorizedKeys: []string{strings.TrimSpace(string(key))},
		}},
		PackageUpdate: true,
		Packages:      []string{"python3"},
	}

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return append([]byte("#cloud-config\n"), body...), nil
}

// renderTofu builds main.tf.json for the environment's provider. JSON
// configuration syntax keeps the file machine-generated without templates.
func renderTofu(c environment.Common) ([]byte, []string, error) {
	userData := fmt.Sprintf("${file(%q)}", CloudInitFile)

	var doc map[string]any
	var env []string
	switch c.Provider.Kind {
	case environment.ProviderLXD:
		doc = map[string]any{
			"terraform": map[string]any{
				"required_providers": map[string]any{
					"lxd": map[string]any{"source": lxdProviderSource, "version": "~> 2.0"},
				},
			},
			"resource": map[string]any{
				"lxd_instance": map[string]any{
					"vm": map[string]any{
						"name":             c.InstanceName,
						"image":            lxdDefaultImage,
						"type":             "virtual-machine",
						"profiles":         []string{"default", c.Provider.LXD.ProfileName},
						"wait_for_network": true,
						"config": map[string]any{
							"cloud-init.user-data": userData,
						},
					},
				},
			},
			"output": map[string]any{
				InstanceIPOutput: map[string]any{"value": "${lxd_instance.vm.ipv4_address}"},
			},
		}
	case environment.ProviderHetzner:
		h := c.Provider.Hetzner
		doc = map[string]any{
			"terraform": map[string]any{
				"required_providers": map[string]any{
					"hcloud": map[string]any{"source": "hetznercloud/hcloud", "version": "~> 1.45"},
				},
			},
			"variable": map[string]any{
				hcloudTokenVar: map[string]any{"type": "string", "sensitive": true},
			},
			"provider": map[string]any{
				"hcloud": map[string]any{"token": "${var." + hcloudTokenVar + "}"},
			},
			"resource": map[string]any{
				"hcloud_server": map[string]any{
					"vm": map[string]any{
						"name":        c.InstanceName,
						"server_type": h.ServerType,
						"location":    h.Location,
						"image":       h.Image,
						"user_data":   userData,
						"labels":      map[string]string{"managed-by": "deployer", "environment": string(c.Name)},
					},
				},
			},
			"output": map[string]any{
				InstanceIPOutput: map[string]any{"value": "${hcloud_server.vm.ipv4_address}"},
			},
		}
		env = []string{"TF_VAR_" + hcloudTokenVar + "=" + h.APIToken}
	default:
		return nil, nil, fmt.Errorf("unsupported provider %q", c.Provider.Kind)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return append(data, '\n'), env, nil
}
