// Package config loads and validates the bridge configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBindAddress    = "127.0.0.1:4499"
	DefaultHistoryPath    = "autobridge.db"
	DefaultNATSURL        = "nats://127.0.0.1:4222"
	DefaultNATSSubject    = "autobridge.event"
	DefaultNATSTimeout    = 5 * time.Second
	DefaultSimAutoFinish  = true
	DefaultLogLevel       = "info"
	DefaultTracingEnabled = false
)

// Config represents the complete bridge configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	History HistoryConfig `yaml:"history"`
	NATS    NATSConfig    `yaml:"nats"`
	Sim     SimConfig     `yaml:"sim"`
	Log     LogConfig     `yaml:"log"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	BindAddress string `yaml:"bind_address"`

	// ExitOnLastBrowser shuts the process down when the last live browser
	// closes, matching how the automated application exits.
	ExitOnLastBrowser bool `yaml:"exit_on_last_browser"`
}

// HistoryConfig configures the redirect history store.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig configures the optional event relay.
type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// SimConfig configures the built-in simulated application shell.
type SimConfig struct {
	// AutoFinishLoads makes navigations complete without an explicit
	// finish-load step. Turn off for drivers that script load progress.
	AutoFinishLoads bool `yaml:"auto_finish_loads"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// TracingConfig toggles the OpenTelemetry stdout exporter.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:       DefaultBindAddress,
			ExitOnLastBrowser: false,
		},
		History: HistoryConfig{
			Path: DefaultHistoryPath,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           DefaultNATSURL,
			SubjectPrefix: DefaultNATSSubject,
			Timeout:       DefaultNATSTimeout,
		},
		Sim: SimConfig{
			AutoFinishLoads: DefaultSimAutoFinish,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		Tracing: TracingConfig{
			Enabled: DefaultTracingEnabled,
		},
	}
}

// Load reads configuration from path on top of the defaults. A missing file
// is not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("loading config from %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.BindAddress); err != nil {
		return fmt.Errorf("invalid server.bind_address %q: %w", c.Server.BindAddress, err)
	}
	if c.History.Path == "" {
		return fmt.Errorf("history.path must not be empty")
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.enabled requires nats.url")
		}
		if c.NATS.SubjectPrefix == "" {
			return fmt.Errorf("nats.enabled requires nats.subject_prefix")
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return nil
}
