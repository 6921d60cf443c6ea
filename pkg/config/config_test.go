package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCfg struct {
	Name   string        `mapstructure:"name"`
	Rounds int           `mapstructure:"rounds"`
	Delay  time.Duration `mapstructure:"round_delay"`
	Sinks  struct {
		CSV struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"csv"`
	} `mapstructure:"sinks"`
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "tick-simulator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
name: tick-simulator
rounds: 7
round_delay: 250ms
sinks:
  csv:
    path: out.csv
`)
	var cfg testCfg
	_, err := Load("tick-simulator", path, &cfg)
	require.NoError(t, err)

	assert.Equal(t, "tick-simulator", cfg.Name)
	assert.Equal(t, 7, cfg.Rounds)
	assert.Equal(t, 250*time.Millisecond, cfg.Delay)
	assert.Equal(t, "out.csv", cfg.Sinks.CSV.Path)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rounds: 7\nsinks:\n  csv:\n    path: out.csv\n")
	t.Setenv("TICKFLOW_ROUNDS", "12")
	t.Setenv("TICKFLOW_SINKS_CSV_PATH", "env.csv")

	var cfg testCfg
	_, err := Load("tick-simulator", path, &cfg)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Rounds)
	assert.Equal(t, "env.csv", cfg.Sinks.CSV.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg testCfg
	_, err := Load("tick-simulator", filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	assert.Error(t, err)
}
