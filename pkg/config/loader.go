package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/geolog/geolog/pkg/engine"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf picks the format from a file extension; anything that is not
// .cue is read as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return FormatCUE
	}
	return FormatYAML
}

// Loader reads configuration files. CUE sources are unified with the
// built-in #Config schema before decoding.
type Loader struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewLoader compiles the built-in schema.
func NewLoader() (*Loader, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", err)
	}
	return &Loader{
		ctx:    ctx,
		schema: schema.LookupPath(cue.ParsePath("#Config")),
	}, nil
}

// Load reads, decodes and validates the file at path. Missing keys keep
// their Default values.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewConfigError("failed to read config file", err).WithDetail("path", path)
	}
	cfg, err := l.Parse(data, FormatOf(path), path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data in the given format. name is used in error positions.
func (l *Loader) Parse(data []byte, format Format, name string) (*Config, error) {
	if format == FormatCUE {
		var err error
		if data, err = l.cueToJSON(data, name); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, engine.NewConfigError("failed to decode config", err).WithDetail("path", name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// cueToJSON evaluates a CUE source against the schema and exports it as
// JSON, which the YAML decoder accepts.
func (l *Loader) cueToJSON(data []byte, name string) ([]byte, error) {
	val := l.ctx.CompileBytes(data, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, cueError("failed to compile config", name, err)
	}
	unified := l.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError("config does not match schema", name, err)
	}
	out, err := unified.MarshalJSON()
	if err != nil {
		return nil, cueError("failed to export config", name, err)
	}
	return out, nil
}

func cueError(msg, name string, err error) error {
	var lines []string
	for _, e := range cueerrors.Errors(err) {
		line := cueerrors.Details(e, nil)
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			line = fmt.Sprintf("%s:%d:%d: %s", pos[0].Filename(), pos[0].Line(), pos[0].Column(), strings.TrimSpace(line))
		}
		lines = append(lines, line)
	}
	return engine.NewConfigError(msg, err).
		WithDetail("path", name).
		WithDetail("errors", lines)
}

// FromEnv loads the file named by GEOLOG_CONFIG, or returns Default when the
// variable is unset.
func (l *Loader) FromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return Default(), nil
	}
	return l.Load(path)
}

// Resolve loads path when given, falls back to GEOLOG_CONFIG, then to
// Default.
func Resolve(path string) (*Config, error) {
	l, err := NewLoader()
	if err != nil {
		return nil, err
	}
	if path != "" {
		return l.Load(path)
	}
	return l.FromEnv()
}
