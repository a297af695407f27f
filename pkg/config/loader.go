package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/deployer/pkg/engine"
)

// Format is the syntax of a creation config file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported config extension %q (use .yaml, .yml, .json or .cue)", filepath.Ext(path))
	}
}

// Loader reads and validates environment creation configs.
type Loader struct {
	cue      *CUEParser
	validate *validator.Validate
}

// NewLoader creates a loader with the embedded CUE schema and validation rules.
func NewLoader() (*Loader, error) {
	parser, err := NewCUEParser()
	if err != nil {
		return nil, engine.NewInternalError("failed to initialize config loader", err)
	}
	return &Loader{cue: parser, validate: newValidator()}, nil
}

// LoadFile reads path and returns a validated config with defaults applied.
func (l *Loader) LoadFile(path string) (*EnvironmentConfig, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, engine.NewValidationError(err.Error(), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		verr := engine.NewValidationError(fmt.Sprintf("cannot read config file %s", path), err)
		if errors.Is(err, fs.ErrNotExist) {
			verr = verr.WithCode(engine.ErrCodeNotFound).
				WithHelp("Check the --config path. Relative paths are resolved from the current directory.")
		}
		return nil, verr
	}

	return l.Parse(path, format, data)
}

// Parse decodes data in the given format, applies defaults and validates
// the result. name is used in error messages only.
func (l *Loader) Parse(name string, format Format, data []byte) (*EnvironmentConfig, error) {
	var (
		cfg *EnvironmentConfig
		err error
	)
	switch format {
	case FormatYAML:
		cfg, err = decodeYAML(data)
	case FormatJSON:
		cfg, err = decodeJSON(data)
	case FormatCUE:
		cfg, err = l.cue.Parse(name, data)
	default:
		err = fmt.Errorf("unsupported config format %q", format)
	}
	if err != nil {
		return nil, engine.NewValidationError(fmt.Sprintf("invalid environment config %s: %v", name, err), err).
			WithHelp("Fix the syntax error in the configuration file. Unknown fields are rejected.")
	}

	cfg.ApplyDefaults()
	if err := l.Validate(name, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs the struct rules on an already decoded config.
func (l *Loader) Validate(name string, cfg *EnvironmentConfig) error {
	if err := l.validate.Struct(cfg); err != nil {
		return validationError(name, err)
	}
	return nil
}

func decodeYAML(data []byte) (*EnvironmentConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg EnvironmentConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("file is empty")
		}
		return nil, err
	}
	return &cfg, nil
}

func decodeJSON(data []byte) (*EnvironmentConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg EnvironmentConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("file is empty")
		}
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after the top-level object")
	}
	return &cfg, nil
}
