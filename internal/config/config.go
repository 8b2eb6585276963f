// SPDX-License-Identifier: MIT

// Package config resolves runtime configuration for the leadpilot daemon.
// Environment variables win over the optional YAML file; everything has a
// default so the daemon starts with zero configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Location overrides for the seeded gym location. Empty fields keep the
// built-in demo seed.
type Location struct {
	GymName       string                 `yaml:"gym_name"`
	Timezone      string                 `yaml:"timezone"`
	BusinessHours map[string][][2]string `yaml:"business_hours"`
}

// AppConfig is the resolved daemon configuration.
type AppConfig struct {
	DataDir  string   `yaml:"data_dir"`
	Listen   string   `yaml:"listen"`
	LogLevel string   `yaml:"log_level"`
	Location Location `yaml:"location"`
}

// DBPath returns the SQLite file path inside the data directory.
func (c AppConfig) DBPath() string {
	return filepath.Join(c.DataDir, "leadpilot.sqlite")
}

// ClientErrorLogPath returns the plain-text client error log path.
func (c AppConfig) ClientErrorLogPath() string {
	return filepath.Join(c.DataDir, "client_errors.log")
}

// Load resolves the configuration from the optional YAML file at path (may
// be empty) and the LEADPILOT_* environment.
func Load(path string) (AppConfig, error) {
	cfg := AppConfig{
		Listen:   ":8088",
		LogLevel: "info",
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if v := envString("LEADPILOT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := envString("LEADPILOT_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := envString("LEADPILOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return AppConfig{}, fmt.Errorf("config: resolve user config dir: %w", err)
		}
		cfg.DataDir = filepath.Join(base, "leadpilot")
	}

	return cfg, nil
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
