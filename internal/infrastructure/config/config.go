// Package config loads subgate's configuration: a YAML file layered
// under SUBGATE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"subgate.dev/cli/internal/rack"
)

// SecurityConfig is the file form of the rack's security policy.
type SecurityConfig struct {
	CheckFileOwner    bool `yaml:"check_file_owner"`
	CheckFileWritable bool `yaml:"check_file_writable"`
	CheckDirOwner     bool `yaml:"check_dir_owner"`
	CheckDirWritable  bool `yaml:"check_dir_writable"`
	OwnerUID          int  `yaml:"owner_uid"`
}

// Policy converts the boolean file form into rack policy flags.
func (s SecurityConfig) Policy() rack.SecurityPolicy {
	var flags rack.PolicyFlag
	if s.CheckFileOwner {
		flags |= rack.CheckFileOwner
	}
	if s.CheckFileWritable {
		flags |= rack.CheckFileWritable
	}
	if s.CheckDirOwner {
		flags |= rack.CheckDirOwner
	}
	if s.CheckDirWritable {
		flags |= rack.CheckDirWritable
	}
	return rack.SecurityPolicy{Flags: flags, OwnerUID: s.OwnerUID}
}

// Config is everything subgate reads at startup.
type Config struct {
	// PluginDir is scanned for submit-filter plugins.
	PluginDir string `yaml:"plugin_dir"`
	// Filters is the comma-separated list of submit filters to run,
	// in order.
	Filters  string         `yaml:"filters"`
	Security SecurityConfig `yaml:"security"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		PluginDir: "/usr/lib/subgate/plugins",
	}
}

// DefaultPath is $HOME/.subgate/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".subgate", "config.yaml")
}

// Load reads path when it exists, then applies environment overrides
// on top. A missing file falls back to defaults; a malformed one is
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SUBGATE_PLUGIN_DIR"); v != "" {
		cfg.PluginDir = v
	}
	if v := os.Getenv("SUBGATE_FILTERS"); v != "" {
		cfg.Filters = v
	}
	if v := os.Getenv("SUBGATE_OWNER_UID"); v != "" {
		if uid, err := strconv.Atoi(v); err == nil {
			cfg.Security.OwnerUID = uid
		}
	}
}
