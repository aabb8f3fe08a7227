// Package config loads the engine's process-global configuration: the
// max history-file line length, whether binary-body creation is allowed,
// and the diagnostic program name (spec.md §5, §9). These are read once at
// startup and never re-read per call, adapted from the teacher's
// Unmarshal/LoadConfigFile/validate shape.
package config

import (
	"fmt"
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v2"
)

const (
	DefaultMaxLineLen   = 0 // 0 means "no limit", matching the classical default
	DefaultBinaryCreate = true
	DefaultProgramName  = "sccsgo"

	envMaxLineLen        = "SCCSGO_MAX_LINE_LEN"
	envBinaryCreateAllow = "SCCSGO_BINARY_CREATE"
	envProgramName       = "SCCSGO_PROGNAME"
)

// Config is the process-global engine configuration.
type Config struct {
	MaxSFileLineLen       int    `yaml:"max_sfile_line_len"`
	BinaryFileCreateAllow bool   `yaml:"binary_file_creation_allowed"`
	ProgramName           string `yaml:"program_name"`
}

// Default returns the classical defaults.
func Default() *Config {
	return &Config{
		MaxSFileLineLen:       DefaultMaxLineLen,
		BinaryFileCreateAllow: DefaultBinaryCreate,
		ProgramName:           DefaultProgramName,
	}
}

// Unmarshal parses YAML configuration, filling in defaults for absent
// fields, then applies environment overrides and validates.
func Unmarshal(config []byte) (*Config, error) {
	cfg := Default()
	if len(config) > 0 {
		if err := yaml.Unmarshal(config, cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %v", err.Error())
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads configuration from a YAML file. A missing file is
// not an error; defaults (plus env overrides) are used instead.
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Unmarshal(nil)
		}
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString loads configuration from an in-memory YAML blob.
func LoadConfigString(content []byte) (*Config, error) {
	return Unmarshal(content)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envMaxLineLen); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxSFileLineLen = n
		}
	}
	if v := os.Getenv(envBinaryCreateAllow); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.BinaryFileCreateAllow = b
		}
	}
	if v := os.Getenv(envProgramName); v != "" {
		c.ProgramName = v
	}
}

func (c *Config) validate() error {
	if c.MaxSFileLineLen < 0 {
		return fmt.Errorf("max_sfile_line_len must be >= 0")
	}
	if c.ProgramName == "" {
		return fmt.Errorf("program_name must not be empty")
	}
	return nil
}
