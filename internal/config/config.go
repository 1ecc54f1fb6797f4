package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log     LoggingConfig `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Metrics MetricsConfig `yaml:"metrics"`
	State   StateConfig   `yaml:"state"`
	Trace   TraceConfig   `yaml:"trace"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`
	Path         string        `yaml:"path"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadLimit    int64         `yaml:"read_limit"`
}

// FetchConfig drives both the gateway and the per-connection refresh cycle.
// InitialTimeout bounds the first fetch of a connection and must not be
// shorter than Timeout, which bounds every periodic fetch.
type FetchConfig struct {
	Command        []string      `yaml:"command"`
	Dir            string        `yaml:"dir"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
	Timeout        time.Duration `yaml:"timeout"`
	InitialTimeout time.Duration `yaml:"initial_timeout"`
	Interval       time.Duration `yaml:"interval"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type StateConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path"`
}

type TraceConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// Default returns a fully defaulted config for callers running without a
// config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = "127.0.0.1:3001"
	}
	if cfg.Server.Path == "" {
		cfg.Server.Path = "/ws"
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ReadLimit == 0 {
		cfg.Server.ReadLimit = 32 << 10
	}
	if len(cfg.Fetch.Command) == 0 {
		cfg.Fetch.Command = []string{"python3", "scripts/fetch_ohlcv.py"}
	}
	if cfg.Fetch.ProcessTimeout == 0 {
		cfg.Fetch.ProcessTimeout = 10 * time.Second
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 10 * time.Second
	}
	if cfg.Fetch.InitialTimeout == 0 {
		cfg.Fetch.InitialTimeout = 15 * time.Second
	}
	if cfg.Fetch.Interval == 0 {
		cfg.Fetch.Interval = 60 * time.Second
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/candle-stream.db"
	}
	if cfg.Trace.ServiceName == "" {
		cfg.Trace.ServiceName = "candle-stream"
	}
}

func applyEnvOverrides(cfg *Config) {
	if level := strings.TrimSpace(os.Getenv("CANDLES_LOG_LEVEL")); level != "" {
		cfg.Log.Level = level
	}
	if addr := strings.TrimSpace(os.Getenv("CANDLES_SERVER_ADDRESS")); addr != "" {
		cfg.Server.Address = addr
	}
	if command := strings.Fields(os.Getenv("CANDLES_FETCH_COMMAND")); len(command) > 0 {
		cfg.Fetch.Command = command
	}
	if dir := strings.TrimSpace(os.Getenv("CANDLES_FETCH_DIR")); dir != "" {
		cfg.Fetch.Dir = dir
	}
}

func validate(cfg *Config) error {
	if len(cfg.Fetch.Command) == 0 || strings.TrimSpace(cfg.Fetch.Command[0]) == "" {
		return errors.New("fetch.command is required")
	}
	if cfg.Fetch.ProcessTimeout < 0 || cfg.Fetch.Timeout < 0 || cfg.Fetch.InitialTimeout < 0 {
		return errors.New("fetch timeouts must be > 0")
	}
	if cfg.Fetch.Interval < 0 {
		return errors.New("fetch.interval must be > 0")
	}
	if cfg.Fetch.InitialTimeout < cfg.Fetch.Timeout {
		return errors.New("fetch.initial_timeout must be >= fetch.timeout")
	}
	if cfg.Server.WriteTimeout < 0 {
		return errors.New("server.write_timeout must be > 0")
	}
	if cfg.Server.ReadLimit < 0 {
		return errors.New("server.read_limit must be > 0")
	}
	if !strings.HasPrefix(cfg.Server.Path, "/") {
		return errors.New("server.path must start with /")
	}
	if cfg.Metrics.EnabledValue() {
		if strings.TrimSpace(cfg.Metrics.Address) == "" {
			return errors.New("metrics.address is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return errors.New("metrics.path must start with /")
		}
		if cfg.Metrics.Address == cfg.Server.Address {
			return errors.New("metrics.address must differ from server.address")
		}
	}
	if cfg.State.Enabled && strings.TrimSpace(cfg.State.SQLitePath) == "" {
		return errors.New("state.sqlite_path is required when state is enabled")
	}
	return nil
}
