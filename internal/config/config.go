// Package config loads treecontract CLI settings from a YAML file.
//
// Files are decoded strictly, so unknown keys are errors, and then checked
// against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSrc string

// Config holds settings that may also be given as flags.
type Config struct {
	// Prec is the precision of calculations in bits.
	Prec uint `yaml:"prec,omitempty" json:"prec,omitempty"`
	// Parallel runs phase A rakes concurrently.
	Parallel bool `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	// Format is the output format: text, json, or yaml.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	// Database is the path of a trace log to record runs in.
	Database string `yaml:"db,omitempty" json:"db,omitempty"`
	// LogLevel is the minimum level of diagnostic logs.
	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	// Vars maps single-letter variable names to expressions giving their
	// values.
	Vars map[string]string `yaml:"vars,omitempty" json:"vars,omitempty"`
}

// LoadError describes a configuration file that could not be used.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse decodes and validates configuration YAML. Empty input gives an empty
// configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against the schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	v := ctx.Encode(c)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
