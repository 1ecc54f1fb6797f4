package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Server.Address != "127.0.0.1:3001" {
		t.Fatalf("expected server address default, got %q", cfg.Server.Address)
	}
	if cfg.Server.Path != "/ws" {
		t.Fatalf("expected server path default, got %q", cfg.Server.Path)
	}
	if cfg.Fetch.Timeout != 10*time.Second {
		t.Fatalf("expected fetch timeout default, got %v", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.InitialTimeout != 15*time.Second {
		t.Fatalf("expected initial timeout default, got %v", cfg.Fetch.InitialTimeout)
	}
	if cfg.Fetch.Interval != time.Minute {
		t.Fatalf("expected interval default, got %v", cfg.Fetch.Interval)
	}
	if len(cfg.Fetch.Command) != 2 || cfg.Fetch.Command[0] != "python3" {
		t.Fatalf("expected default fetch command, got %v", cfg.Fetch.Command)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestMetricsDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Metrics.Enabled == nil || !cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled default")
	}
	if cfg.Metrics.Address != "127.0.0.1:9001" {
		t.Fatalf("expected metrics address default, got %q", cfg.Metrics.Address)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics path default, got %q", cfg.Metrics.Path)
	}
}

func TestMetricsEnabledFalseRespected(t *testing.T) {
	enabled := false
	cfg := &Config{Metrics: MetricsConfig{Enabled: &enabled}}
	applyDefaults(cfg)
	if cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled=false to be preserved")
	}
}

func TestValidateRejectsShortInitialTimeout(t *testing.T) {
	cfg := &Config{Fetch: FetchConfig{Timeout: 10 * time.Second, InitialTimeout: 5 * time.Second}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for initial timeout shorter than timeout")
	}
}

func TestValidateRejectsNegativeInterval(t *testing.T) {
	cfg := &Config{Fetch: FetchConfig{Interval: -1 * time.Second}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for negative interval")
	}
}

func TestValidateRejectsBlankCommand(t *testing.T) {
	cfg := &Config{Fetch: FetchConfig{Command: []string{" "}}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for blank fetch command")
	}
}

func TestValidateRejectsPathWithoutSlash(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Path: "ws"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for server path without leading slash")
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Path: "metrics"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics path without leading slash")
	}
}

func TestValidateRejectsSharedMetricsAddress(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{Address: "127.0.0.1:3001"},
		Metrics: MetricsConfig{Address: "127.0.0.1:3001"},
	}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics sharing the server address")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CANDLES_LOG_LEVEL", "debug")
	t.Setenv("CANDLES_SERVER_ADDRESS", "0.0.0.0:4000")
	t.Setenv("CANDLES_FETCH_COMMAND", "  ./bin/fetch --symbol BTC/USDT ")
	t.Setenv("CANDLES_FETCH_DIR", "/srv/candles")
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected log level override, got %q", cfg.Log.Level)
	}
	if cfg.Server.Address != "0.0.0.0:4000" {
		t.Fatalf("expected server address override, got %q", cfg.Server.Address)
	}
	if len(cfg.Fetch.Command) != 3 || cfg.Fetch.Command[0] != "./bin/fetch" || cfg.Fetch.Command[2] != "BTC/USDT" {
		t.Fatalf("expected split fetch command, got %v", cfg.Fetch.Command)
	}
	if cfg.Fetch.Dir != "/srv/candles" {
		t.Fatalf("expected fetch dir override, got %q", cfg.Fetch.Dir)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "" +
		"server:\n" +
		"  address: 127.0.0.1:4001\n" +
		"fetch:\n" +
		"  command: [\"./fetch\", \"--limit\", \"100\"]\n" +
		"  timeout: 2s\n" +
		"  initial_timeout: 3s\n" +
		"  interval: 30s\n" +
		"metrics:\n" +
		"  enabled: false\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Address != "127.0.0.1:4001" {
		t.Fatalf("expected server address from file, got %q", cfg.Server.Address)
	}
	if cfg.Fetch.Timeout != 2*time.Second || cfg.Fetch.InitialTimeout != 3*time.Second {
		t.Fatalf("unexpected timeouts %v/%v", cfg.Fetch.Timeout, cfg.Fetch.InitialTimeout)
	}
	if cfg.Fetch.Interval != 30*time.Second {
		t.Fatalf("expected interval from file, got %v", cfg.Fetch.Interval)
	}
	if len(cfg.Fetch.Command) != 3 {
		t.Fatalf("expected command from file, got %v", cfg.Fetch.Command)
	}
	if cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics disabled from file")
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
