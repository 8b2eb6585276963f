// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LEADPILOT_DATA_DIR", "")
	t.Setenv("LEADPILOT_LISTEN", "")
	t.Setenv("LEADPILOT_LOG_LEVEL", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8088", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, filepath.Join(cfg.DataDir, "leadpilot.sqlite"), cfg.DBPath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "client_errors.log"), cfg.ClientErrorLogPath())
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv("LEADPILOT_DATA_DIR", "")
	t.Setenv("LEADPILOT_LISTEN", "")
	t.Setenv("LEADPILOT_LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/leadpilot
listen: ":9100"
log_level: debug
location:
  gym_name: Iron Works
  timezone: Europe/Berlin
  business_hours:
    mon:
      - ["08:00", "20:00"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/leadpilot", cfg.DataDir)
	assert.Equal(t, ":9100", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "Iron Works", cfg.Location.GymName)
	assert.Equal(t, "Europe/Berlin", cfg.Location.Timezone)
	assert.Equal(t, [][2]string{{"08:00", "20:00"}}, cfg.Location.BusinessHours["mon"])
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9100\"\nlog_level: debug\n"), 0o600))

	t.Setenv("LEADPILOT_DATA_DIR", "/tmp/leadpilot-test")
	t.Setenv("LEADPILOT_LISTEN", ":7001")
	t.Setenv("LEADPILOT_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/leadpilot-test", cfg.DataDir)
	assert.Equal(t, ":7001", cfg.Listen)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
