// Package config loads daemon settings from an optional YAML file and
// fills in defaults for everything left unset.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "1h" or "90s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full daemon configuration.
type Config struct {
	SocketPath        string   `yaml:"socket_path"`
	PIDFile           string   `yaml:"pid_file"`
	FailCountFile     string   `yaml:"fail_count_file"`
	MaxFailures       int      `yaml:"max_failures"`
	RefreshInterval   Duration `yaml:"refresh_interval"`
	ProviderPath      string   `yaml:"provider_path"`
	ProviderTimeout   Duration `yaml:"provider_timeout"`
	MaxPromptAttempts int      `yaml:"max_prompt_attempts"`
	EnvFile           string   `yaml:"env_file"`
	AuditLog          string   `yaml:"audit_log"`
	LaunchdLabel      string   `yaml:"launchd_label"`
}

// Default returns the built-in configuration for the current user.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		SocketPath:        "/tmp/bw-secrets.sock",
		PIDFile:           "/tmp/bw-secrets.pid",
		FailCountFile:     "/tmp/bw-secrets.fail-count",
		MaxFailures:       10,
		RefreshInterval:   Duration(time.Hour),
		ProviderPath:      "bw",
		ProviderTimeout:   Duration(60 * time.Second),
		MaxPromptAttempts: 10,
		EnvFile:           filepath.Join(home, ".bwcached", ".env"),
		AuditLog:          filepath.Join(home, ".bwcached", "audit.log"),
		LaunchdLabel:      "com." + username() + ".bw-secrets",
	}
}

// DefaultPath is where Load looks when no explicit path is given.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".bwcached", "config.yaml")
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; the defaults alone are a complete configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxFailures < 1 {
		return fmt.Errorf("max_failures must be at least 1, got %d", c.MaxFailures)
	}
	if c.MaxPromptAttempts < 1 {
		return fmt.Errorf("max_prompt_attempts must be at least 1, got %d", c.MaxPromptAttempts)
	}
	if c.RefreshInterval.Std() <= 0 {
		return fmt.Errorf("refresh_interval must be positive")
	}
	if c.ProviderTimeout.Std() <= 0 {
		return fmt.Errorf("provider_timeout must be positive")
	}
	return nil
}

func username() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "local"
}
