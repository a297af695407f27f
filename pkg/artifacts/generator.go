package artifacts

import (
	"fmt"
	"path/filepath"

	"github.com/openfroyo/deployer/pkg/environment"
)

// Generator renders and writes the artifacts of one environment.
type Generator struct {
	Layout Layout
}

// NewGenerator returns a generator writing below buildDir.
func NewGenerator(buildDir string) *Generator {
	return &Generator{Layout: Layout{BuildDir: buildDir}}
}

// Infrastructure writes main.tf.json and cloud-init.yml.
func (g *Generator) Infrastructure(c environment.Common) (Infrastructure, error) {
	userData, err := renderCloudInit(c)
	if err != nil {
		return Infrastructure{}, err
	}
	main, env, err := renderTofu(c)
	if err != nil {
		return Infrastructure{}, fmt.Errorf("render tofu configuration: %w", err)
	}

	infra := Infrastructure{
		Dir: g.Layout.TofuDir(c.Name),
		Files: []File{
			{Name: TofuMainFile, Data: main, Mode: 0o644},
			{Name: CloudInitFile, Data: userData, Mode: 0o644},
		},
		Env: env,
	}
	if err := writeFiles(infra.Dir, infra.Files); err != nil {
		return Infrastructure{}, err
	}
	return infra, nil
}

// Configuration writes the inventory for the instance at ip, the variables
// file and the playbooks.
func (g *Generator) Configuration(c environment.Common, ip string) (Configuration, error) {
	if ip == "" {
		return Configuration{}, fmt.Errorf("render inventory: instance ip is empty")
	}
	inv, err := renderInventory(c, ip)
	if err != nil {
		return Configuration{}, fmt.Errorf("render inventory: %w", err)
	}
	vars, err := renderVariables(c)
	if err != nil {
		return Configuration{}, fmt.Errorf("render variables: %w", err)
	}
	books, err := playbookFiles()
	if err != nil {
		return Configuration{}, err
	}

	dir := g.Layout.AnsibleDir(c.Name)
	cfg := Configuration{
		Dir:       dir,
		Inventory: filepath.Join(dir, InventoryFile),
		Variables: filepath.Join(dir, VariablesFile),
		Files: append([]File{
			{Name: InventoryFile, Data: inv, Mode: 0o644},
			{Name: VariablesFile, Data: vars, Mode: 0o644},
		}, books...),
	}
	for _, b := range books {
		cfg.Playbooks = append(cfg.Playbooks, filepath.Join(dir, b.Name))
	}
	if err := writeFiles(dir, cfg.Files); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Release writes docker-compose.yml and the files it mounts.
func (g *Generator) Release(c environment.Common) (Release, error) {
	compose, err := renderCompose(c)
	if err != nil {
		return Release{}, fmt.Errorf("render compose file: %w", err)
	}

	rel := Release{
		Dir:           g.Layout.ComposeDir(c.Name),
		Files:         []File{{Name: ComposeFile, Data: compose, Mode: 0o644}},
		ComposeDigest: Digest(compose),
	}
	if c.Services.Prometheus {
		prom, err := renderPrometheus(c.Services)
		if err != nil {
			return Release{}, fmt.Errorf("render prometheus config: %w", err)
		}
		rel.Files = append(rel.Files, File{Name: PrometheusFile, Data: prom, Mode: 0o644})
	}
	if c.Services.TLSEnabled() {
		rel.Files = append(rel.Files, File{Name: CaddyFile, Data: renderCaddyfile(c.Services), Mode: 0o644})
	}

	if err := writeFiles(rel.Dir, rel.Files); err != nil {
		return Release{}, err
	}
	return rel, nil
}
