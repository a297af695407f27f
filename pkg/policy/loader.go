package policy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openfroyo/deployer/pkg/telemetry"
)

// Loader reads user policies from a directory.
type Loader struct {
	logger *telemetry.Logger
}

// NewLoader creates a policy loader.
func NewLoader(logger *telemetry.Logger) *Loader {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Loader{logger: logger.NewComponentLogger("policy-loader")}
}

// LoadDir returns every .rego file below dir, sorted by path. A missing
// directory yields no policies; an empty dir argument as well.
func (l *Loader) LoadDir(dir string) ([]Policy, error) {
	if dir == "" {
		return nil, nil
	}

	var policies []Policy
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, "_test.rego") {
			return nil
		}

		p, err := l.loadFile(path)
		if err != nil {
			return err
		}
		policies = append(policies, *p)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.WithField("dir", dir).Debug("policy directory does not exist")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load policies from %s: %w", dir, err)
	}

	sort.Slice(policies, func(i, j int) bool { return policies[i].Source < policies[j].Source })
	l.logger.WithFields(map[string]any{"dir": dir, "count": len(policies)}).Debug("policies loaded")
	return policies, nil
}

func (l *Loader) loadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: extractDescription(string(data)),
		Rego:        string(data),
		Severity:    SeverityError,
		Source:      path,
	}, nil
}

// extractDescription returns the leading comment block of a Rego file.
func extractDescription(content string) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		lines = append(lines, strings.TrimSpace(strings.TrimPrefix(trimmed, "#")))
	}
	return strings.Join(lines, " ")
}
