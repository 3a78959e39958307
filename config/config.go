// Package config manages the TOML configuration for the edittrack daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the entire config structure.
type Config struct {
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`

	// StateDir holds the SQLite store and log file.
	// Defaults to ~/.local/state/edittrack.
	StateDir string `toml:"state_dir"`
}

// TelemetryConfig has telemetry related options.
type TelemetryConfig struct {
	// Enabled is the global telemetry switch. Flipping it in the config
	// file takes effect without a restart (see Watcher).
	Enabled bool `toml:"enabled"`

	// Endpoint receives event POSTs. Empty means log-only.
	Endpoint string `toml:"endpoint"`
	Token    string `toml:"token"`

	// FlushInterval is how often the buffer is scanned for mature entries.
	FlushInterval duration `toml:"flush_interval"`
	// MaturityWindow is how long a suggestion must sit before evaluation.
	MaturityWindow duration `toml:"maturity_window"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level string `toml:"level"`
}

// duration lets TOML carry values like "2m" or "5m".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// FlushInterval returns the configured flush interval as a time.Duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Telemetry.FlushInterval)
}

// MaturityWindow returns the configured maturity window as a time.Duration.
func (c *Config) MaturityWindow() time.Duration {
	return time.Duration(c.Telemetry.MaturityWindow)
}

// Default returns the builtin defaults.
func Default() *Config {
	stateDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".local", "state", "edittrack")
	}
	return &Config{
		Telemetry: TelemetryConfig{
			Enabled:        true,
			FlushInterval:  duration(2 * time.Minute),
			MaturityWindow: duration(5 * time.Minute),
		},
		Log: LogConfig{
			Level: "INFO",
		},
		StateDir: stateDir,
	}
}

// DefaultPath returns the default config file location
// (~/.config/edittrack/config.toml).
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "edittrack", "config.toml"), nil
}

// Load reads the config at path on top of the defaults. A missing file is
// not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FlushInterval() <= 0 {
		return fmt.Errorf("flush_interval must be positive")
	}
	if c.MaturityWindow() <= 0 {
		return fmt.Errorf("maturity_window must be positive")
	}
	return nil
}
