// Package config loads fastd-core daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and the layered
// defaults-then-file-then-env precedence used throughout the daemon.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete fastd-core daemon configuration.
type Config struct {
	Control ControlConfig `koanf:"control"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Binds   []string      `koanf:"binds"`
	Peers   []PeerConfig  `koanf:"peers"`
}

// ControlConfig holds the control-endpoint (Unix socket) configuration.
type ControlConfig struct {
	// SocketPath is the Unix-domain socket path the control endpoint
	// listens on.
	SocketPath string `koanf:"socket_path"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint.
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// PeerConfig describes a declarative peer fastd-core clones and
// configures on startup.
type PeerConfig struct {
	// Remote is the peer's remote endpoint, "host:port".
	Remote string `koanf:"remote"`
	// PubKeyHex is the peer's informational public key, hex-encoded.
	PubKeyHex string `koanf:"pubkey"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
			SocketPath: "/var/run/fastd-core.sock",
		},
		Metrics: MetricsConfig{
			Addr: ":9140",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for fastd-core
// configuration. Variables are named FASTD_CORE_<section>_<key>, e.g.
// FASTD_CORE_CONTROL_SOCKET_PATH.
const envPrefix = "FASTD_CORE_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (FASTD_CORE_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms FASTD_CORE_CONTROL_SOCKET_PATH ->
// control.socket_path. Strips the prefix, lowercases, and maps the first
// underscore-delimited segment to the section before treating the rest as
// the nested key, matching the section/key split every config struct
// above uses.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"control.socket_path": defaults.Control.SocketPath,
		"metrics.addr":        defaults.Metrics.Addr,
		"metrics.path":        defaults.Metrics.Path,
		"log.level":           defaults.Log.Level,
		"log.format":          defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

var (
	// ErrEmptySocketPath indicates the control socket path is empty.
	ErrEmptySocketPath = errors.New("control.socket_path must not be empty")

	// ErrInvalidBindAddr indicates a binds[] entry is not host:port.
	ErrInvalidBindAddr = errors.New("binds entry must be host:port")

	// ErrInvalidPeerRemote indicates a peers[] entry's remote is not
	// host:port.
	ErrInvalidPeerRemote = errors.New("peer remote must be host:port")
)

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Control.SocketPath == "" {
		return ErrEmptySocketPath
	}

	for _, b := range cfg.Binds {
		if !strings.Contains(b, ":") {
			return fmt.Errorf("%q: %w", b, ErrInvalidBindAddr)
		}
	}

	for _, p := range cfg.Peers {
		if !strings.Contains(p.Remote, ":") {
			return fmt.Errorf("%q: %w", p.Remote, ErrInvalidPeerRemote)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
