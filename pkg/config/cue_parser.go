package config

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// CUEParser evaluates CUE creation configs against the #Environment schema.
type CUEParser struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewCUEParser compiles the embedded schema.
func NewCUEParser() (*CUEParser, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(environmentSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile environment schema: %w", err)
	}

	return &CUEParser{
		ctx:    ctx,
		schema: schema.LookupPath(cue.ParsePath("#Environment")),
	}, nil
}

// Parse unifies data with the schema and decodes the concrete result.
// The file name is only used in error positions.
func (cp *CUEParser) Parse(filename string, data []byte) (*EnvironmentConfig, error) {
	value := cp.ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, cueError("parse", err)
	}

	unified := cp.schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError("validate", err)
	}

	var cfg EnvironmentConfig
	if err := unified.Decode(&cfg); err != nil {
		return nil, cueError("decode", err)
	}

	return &cfg, nil
}

// cueError flattens CUE's multi-error into one message with positions.
func cueError(op string, err error) error {
	details := strings.TrimSpace(errors.Details(err, nil))
	return fmt.Errorf("cue %s: %s", op, details)
}
