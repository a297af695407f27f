package artifacts

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/deployer/pkg/environment"
)

//go:embed playbooks/*.yml
var playbookFS embed.FS

// Ansible file names.
const (
	InventoryFile = "inventory.yml"
	VariablesFile = "variables.yml"

	// ReleaseDir is the directory, relative to the SSH user's home, holding
	// the uploaded release files.
	ReleaseDir = "deployer"
)

// Playbooks in execution order.
var Playbooks = []string{
	"install-docker.yml",
	"install-compose.yml",
	"configure-firewall.yml",
}

// Configuration is the rendered Ansible input.
type Configuration struct {
	Dir       string
	Inventory string
	Variables string
	Playbooks []string
	Files     []File
}

type inventory struct {
	All inventoryGroup `yaml:"all"`
}

type inventoryGroup struct {
	Hosts map[string]inventoryHost `yaml:"hosts"`
}

type inventoryHost struct {
	AnsibleHost              string `yaml:"ansible_host"`
	AnsibleUser              string `yaml:"ansible_user"`
	AnsiblePort              int    `yaml:"ansible_port"`
	AnsibleKeyFile           string `yaml:"ansible_ssh_private_key_file"`
	AnsibleCommonArgs        string `yaml:"ansible_ssh_common_args"`
	AnsiblePythonInterpreter string `yaml:"ansible_python_interpreter"`
}

type openPort struct {
	Port  string `yaml:"port"`
	Proto string `yaml:"proto"`
}

type variables struct {
	ReleaseDir string     `yaml:"release_dir"`
	SSHPort    int        `yaml:"ssh_port"`
	OpenPorts  []openPort `yaml:"open_ports"`
}

func renderInventory(c environment.Common, ip string) ([]byte, error) {
	inv := inventory{All: inventoryGroup{Hosts: map[string]inventoryHost{
		c.InstanceName: {
			AnsibleHost:              ip,
			AnsibleUser:              c.Credentials.Username,
			AnsiblePort:              c.Credentials.Port,
			AnsibleKeyFile:           c.Credentials.PrivateKeyPath,
			AnsibleCommonArgs:        "-o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null",
			AnsiblePythonInterpreter: "/usr/bin/python3",
		},
	}}}
	return yaml.Marshal(inv)
}

func renderVariables(c environment.Common) ([]byte, error) {
	v := variables{
		ReleaseDir: ReleaseDir,
		SSHPort:    c.Credentials.Port,
		OpenPorts:  openPorts(c.Services),
	}
	return yaml.Marshal(v)
}

// openPorts lists the ports published on the host.
func openPorts(s environment.Services) []openPort {
	ports := []openPort{
		{Port: strconv.Itoa(TrackerUDPPort), Proto: "udp"},
		{Port: strconv.Itoa(s.HTTPAPIPort), Proto: "tcp"},
		{Port: strconv.Itoa(TrackerHTTPPort), Proto: "tcp"},
	}
	if s.TLSEnabled() {
		ports = append(ports, openPort{Port: "80", Proto: "tcp"}, openPort{Port: "443", Proto: "tcp"})
	}
	if s.Grafana && s.GrafanaDomain == "" {
		ports = append(ports, openPort{Port: strconv.Itoa(GrafanaPort), Proto: "tcp"})
	}
	return ports
}

func playbookFiles() ([]File, error) {
	files := make([]File, 0, len(Playbooks))
	for _, name := range Playbooks {
		data, err := fs.ReadFile(playbookFS, path.Join("playbooks", name))
		if err != nil {
			return nil, fmt.Errorf("read embedded playbook %s: %w", name, err)
		}
		files = append(files, File{Name: name, Data: data, Mode: 0o644})
	}
	return files, nil
}
