package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg, err := Unmarshal(nil)
	assert.NoError(t, err)
	assert.Equal(t, DefaultMaxLineLen, cfg.MaxSFileLineLen)
	assert.Equal(t, DefaultBinaryCreate, cfg.BinaryFileCreateAllow)
	assert.Equal(t, DefaultProgramName, cfg.ProgramName)
}

func TestUnmarshalYAML(t *testing.T) {
	cfg, err := Unmarshal([]byte("max_sfile_line_len: 1024\nbinary_file_creation_allowed: false\nprogram_name: myprog\n"))
	assert.NoError(t, err)
	assert.Equal(t, 1024, cfg.MaxSFileLineLen)
	assert.False(t, cfg.BinaryFileCreateAllow)
	assert.Equal(t, "myprog", cfg.ProgramName)
}

func TestEnvOverride(t *testing.T) {
	os.Setenv(envMaxLineLen, "42")
	defer os.Unsetenv(envMaxLineLen)
	cfg, err := Unmarshal(nil)
	assert.NoError(t, err)
	assert.Equal(t, 42, cfg.MaxSFileLineLen)
}

func TestInvalidConfig(t *testing.T) {
	_, err := Unmarshal([]byte("max_sfile_line_len: -1\n"))
	assert.Error(t, err)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFile("/nonexistent/path/to/config.yaml")
	assert.NoError(t, err)
	assert.Equal(t, DefaultProgramName, cfg.ProgramName)
}
