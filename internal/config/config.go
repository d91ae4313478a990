// Package config loads newsie's configuration file and environment overrides.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "./config/config.yaml"

type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Fetcher  FetcherConfig  `yaml:"fetcher" toml:"fetcher"`
	Sync     SyncConfig     `yaml:"sync" toml:"sync"`
	Web      WebConfig      `yaml:"web" toml:"web"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type FetcherConfig struct {
	UserAgent    string        `yaml:"user_agent" toml:"user_agent"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" toml:"max_body_bytes"`
}

type SyncConfig struct {
	Workers  int           `yaml:"workers" toml:"workers"`
	Interval time.Duration `yaml:"interval" toml:"interval"`
}

type WebConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	// JWTSecret enables bearer-token auth on /api/ when non-empty.
	JWTSecret string `yaml:"jwt_secret,omitempty" toml:"jwt_secret,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text or json
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./newsie.db"
	cfg.Fetcher.UserAgent = "newsie/1.0"
	cfg.Fetcher.Timeout = 30 * time.Second
	cfg.Fetcher.MaxBodyBytes = 10 << 20
	cfg.Sync.Workers = 4
	cfg.Sync.Interval = 30 * time.Minute
	cfg.Web.Addr = ":8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads the config at path on top of the defaults, then applies
// NEWSIE_* environment overrides. A missing file is not an error. Files
// ending in .toml are parsed as TOML, anything else as YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("invalid config: sync.interval must be positive, got %s", c.Sync.Interval)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Marshal renders cfg in the format implied by path's extension.
func Marshal(path string, cfg *Config) ([]byte, error) {
	if !isTOML(path) {
		return yaml.Marshal(cfg)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"NEWSIE_DB_PATH":    &cfg.Database.Path,
		"NEWSIE_USER_AGENT": &cfg.Fetcher.UserAgent,
		"NEWSIE_WEB_ADDR":   &cfg.Web.Addr,
		"NEWSIE_JWT_SECRET": &cfg.Web.JWTSecret,
		"NEWSIE_LOG_LEVEL":  &cfg.Log.Level,
		"NEWSIE_LOG_FORMAT": &cfg.Log.Format,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"NEWSIE_FETCH_TIMEOUT": &cfg.Fetcher.Timeout,
		"NEWSIE_SYNC_INTERVAL": &cfg.Sync.Interval,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	if v, ok := os.LookupEnv("NEWSIE_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid NEWSIE_WORKERS: %w", err)
		}
		cfg.Sync.Workers = n
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(lc LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if lc.Level != "" {
		if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(lc.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", lc.Format)
	}
}
