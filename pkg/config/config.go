// Package config loads marker settings from a YAML file, environment
// variables and command-line flags.
//
// Precedence: flags > environment > file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/marker/pkg/logging"
	"github.com/entrhq/marker/pkg/marks"
)

// Environment variables read by ApplyEnv.
const (
	EnvDataPath = "MARKER_DATA_PATH"
	EnvLogLevel = "MARKER_LOG_LEVEL"
)

// Config holds the marker settings.
type Config struct {
	// DataPath is the persisted marks file.
	DataPath string `yaml:"data_path"`

	// Persist enables loading at startup and saving at shutdown.
	Persist *bool `yaml:"persist"`

	// MarkKey is the key of the host's mark-set command. The interceptor
	// watches the same key; a session refuses a host that uses another.
	MarkKey string `yaml:"mark_key"`

	// JumpKey starts a jump in the viewer.
	JumpKey string `yaml:"jump_key"`

	// Exclude lists glob patterns over document names whose marks are not tracked.
	Exclude []string `yaml:"exclude"`

	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`
}

// DefaultPath returns ~/.config/marker/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "marker", "config.yaml"), nil
}

// Default returns the built-in settings.
func Default() *Config {
	persist := true
	return &Config{
		Persist:  &persist,
		MarkKey:  "m",
		JumpKey:  "'",
		LogLevel: "info",
	}
}

// Load reads the file at path on top of the defaults. An empty path uses
// DefaultPath; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDataPath); v != "" {
		c.DataPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// PersistEnabled reports whether marks are loaded and saved.
func (c *Config) PersistEnabled() bool {
	return c.Persist == nil || *c.Persist
}

// Level returns the parsed log level.
func (c *Config) Level() logging.Level {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

// ResolvedDataPath returns DataPath with ~ expanded, or the default marks path.
func (c *Config) ResolvedDataPath() (string, error) {
	if c.DataPath == "" {
		return marks.DefaultPath()
	}
	return expandHome(c.DataPath)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}

// Validate checks the settings.
func (c *Config) Validate() error {
	if utf8.RuneCountInString(c.MarkKey) != 1 {
		return fmt.Errorf("mark_key must be a single character, got %q", c.MarkKey)
	}
	if utf8.RuneCountInString(c.JumpKey) != 1 {
		return fmt.Errorf("jump_key must be a single character, got %q", c.JumpKey)
	}
	if c.MarkKey == c.JumpKey {
		return fmt.Errorf("mark_key and jump_key must differ")
	}
	for _, pattern := range c.Exclude {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}
