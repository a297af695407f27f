// Package artifacts renders the files handed to external tools: OpenTofu
// configuration, the Ansible inventory and playbooks, and the docker compose
// release.
package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openfroyo/deployer/pkg/environment"
)

// Layout places generated files under <BuildDir>/<name>/{tofu,ansible,compose}.
type Layout struct {
	BuildDir string
}

// Dir returns the build directory of one environment.
func (l Layout) Dir(name environment.Name) string {
	return filepath.Join(l.BuildDir, string(name))
}

// TofuDir holds main.tf.json, cloud-init.yml and the tofu state.
func (l Layout) TofuDir(name environment.Name) string {
	return filepath.Join(l.Dir(name), "tofu")
}

// AnsibleDir holds the inventory and playbooks.
func (l Layout) AnsibleDir(name environment.Name) string {
	return filepath.Join(l.Dir(name), "ansible")
}

// ComposeDir holds the release files uploaded to the instance.
func (l Layout) ComposeDir(name environment.Name) string {
	return filepath.Join(l.Dir(name), "compose")
}

// HasInfrastructure reports whether tofu files exist for name, which means
// infrastructure may have been created even if provisioning never finished.
func (l Layout) HasInfrastructure(name environment.Name) bool {
	_, err := os.Stat(filepath.Join(l.TofuDir(name), TofuMainFile))
	return err == nil
}

// Clean removes the build directory of name. A missing directory is not an error.
func (l Layout) Clean(name environment.Name) error {
	if err := environment.ValidateName(string(name)); err != nil {
		return err
	}
	err := os.RemoveAll(l.Dir(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove build directory: %w", err)
	}
	return nil
}

// writeFiles writes every file into dir, creating it first.
func writeFiles(dir string, files []File) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, f.Data, f.Mode); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// File is one generated file, relative to its artifact directory.
type File struct {
	Name string
	Data []byte
	Mode fs.FileMode
}
