// Package config carries the tool-level settings (log level, probe
// defaults, monitor hub) and the persisted connection document. Connection
// definitions themselves live in pkg/types; this package only loads and
// stores them.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is resolved in three layers: defaults, then the optional YAML
// file, then TUITCP_* environment variables. Subcommand flags override all
// of it per invocation.
type Config struct {
	DocumentPath string `yaml:"document_path,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty"`

	MonitorAddr    string   `yaml:"monitor_addr,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	ScanTimeoutMs int `yaml:"scan_timeout_ms,omitempty"`
	BenchDuration int `yaml:"bench_duration_s,omitempty"`
	ReplayDelayMs int `yaml:"replay_delay_ms,omitempty"`

	PingInterval time.Duration `yaml:"ping_interval,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		DocumentPath:   "connections.json",
		LogLevel:       "info",
		MonitorAddr:    "",
		AllowedOrigins: []string{"*"},
		ScanTimeoutMs:  500,
		BenchDuration:  10,
		ReplayDelayMs:  100,
		PingInterval:   30 * time.Second,
	}
}

func getConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "tuitcptester", "config.yaml")
}

// Load resolves the configuration. An empty path means the default
// location; a missing file at the default location is fine, an explicitly
// named file must exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = getConfigPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("TUITCP_DOCUMENT"); v != "" {
		c.DocumentPath = v
	}
	if v := os.Getenv("TUITCP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TUITCP_MONITOR_ADDR"); v != "" {
		c.MonitorAddr = v
	}
	if v := os.Getenv("TUITCP_ALLOWED_ORIGINS"); v != "" {
		entries := strings.Split(v, ",")
		c.AllowedOrigins = make([]string, 0, len(entries))
		for _, entry := range entries {
			if value := strings.TrimSpace(entry); value != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, value)
			}
		}
	}
	if v := os.Getenv("TUITCP_SCAN_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return fmt.Errorf("invalid TUITCP_SCAN_TIMEOUT_MS %q: must be a positive integer", v)
		}
		c.ScanTimeoutMs = ms
	}
	if v := os.Getenv("TUITCP_BENCH_DURATION"); v != "" {
		s, err := strconv.Atoi(v)
		if err != nil || s <= 0 {
			return fmt.Errorf("invalid TUITCP_BENCH_DURATION %q: must be a positive integer", v)
		}
		c.BenchDuration = s
	}
	if v := os.Getenv("TUITCP_REPLAY_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid TUITCP_REPLAY_DELAY_MS %q: must be a non-negative integer", v)
		}
		c.ReplayDelayMs = ms
	}
	if v := os.Getenv("TUITCP_PING_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid TUITCP_PING_INTERVAL %q: must be a positive duration (e.g. 30s)", v)
		}
		c.PingInterval = d
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.DocumentPath == "" {
		return fmt.Errorf("document path cannot be empty")
	}
	if c.MonitorAddr != "" {
		if _, _, err := net.SplitHostPort(c.MonitorAddr); err != nil {
			return fmt.Errorf("invalid monitor address %q: %w", c.MonitorAddr, err)
		}
	}
	if c.ScanTimeoutMs <= 0 {
		return fmt.Errorf("scan timeout must be > 0")
	}
	if c.BenchDuration <= 0 || c.BenchDuration > 300 {
		return fmt.Errorf("bench duration must be 1-300 seconds")
	}
	if c.ReplayDelayMs < 0 {
		return fmt.Errorf("replay delay must be >= 0")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be > 0")
	}
	return nil
}

func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutMs) * time.Millisecond
}

func (c *Config) BenchDurationTime() time.Duration {
	return time.Duration(c.BenchDuration) * time.Second
}

func (c *Config) ReplayDelay() time.Duration {
	return time.Duration(c.ReplayDelayMs) * time.Millisecond
}
