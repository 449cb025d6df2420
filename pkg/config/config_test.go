package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BindAddress != DefaultBindAddress {
		t.Fatalf("bind address = %q, want %q", cfg.Server.BindAddress, DefaultBindAddress)
	}
	if !cfg.Sim.AutoFinishLoads {
		t.Fatal("auto-finish loads should default on")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.History.Path != DefaultHistoryPath {
		t.Fatalf("history path = %q, want default", cfg.History.Path)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  bind_address: "127.0.0.1:9999"
  exit_on_last_browser: true
nats:
  enabled: true
  url: "nats://broker:4222"
  subject_prefix: "bridge.ev"
log:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.BindAddress != "127.0.0.1:9999" {
		t.Fatalf("bind address = %q", cfg.Server.BindAddress)
	}
	if !cfg.Server.ExitOnLastBrowser {
		t.Fatal("exit_on_last_browser not applied")
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://broker:4222" {
		t.Fatalf("nats config not applied: %+v", cfg.NATS)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.History.Path != DefaultHistoryPath {
		t.Fatalf("history path = %q, want default", cfg.History.Path)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad bind address", func(c *Config) { c.Server.BindAddress = "no-port" }},
		{"empty history path", func(c *Config) { c.History.Path = "" }},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }},
		{"nats without subject", func(c *Config) { c.NATS.Enabled = true; c.NATS.SubjectPrefix = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
