// Package config loads minihttp CLI settings from YAML with environment
// overrides. The httpx library itself never reads files or the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"dqx0.com/go/minihttp/httpx"
)

// Config is the on-disk configuration.
type Config struct {
	Client   httpx.Config `yaml:"client"`
	LogLevel string       `yaml:"log_level"` // debug, info, warn, error
	MaxBody  int64        `yaml:"max_body"`  // bytes printed per response, 0 = unlimited
}

// DefaultConfig returns defaults with environment overrides applied.
func DefaultConfig() *Config {
	cfg := &Config{Client: httpx.DefaultConfig()}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg
}

// Load reads path. A missing file yields the defaults; a malformed one is
// an error. Environment variables override file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{Client: httpx.DefaultConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MaxBody == 0 {
		c.MaxBody = 10 << 20
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MINIHTTP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MINIHTTP_USER_AGENT"); v != "" {
		c.Client.UserAgent = v
	}
	if n, ok := envInt("MINIHTTP_MAX_IDLE_PER_HOST"); ok {
		c.Client.Pool.MaxIdlePerHost = n
	}
	if n, ok := envInt("MINIHTTP_MAX_CONNS_PER_HOST"); ok {
		c.Client.Pool.MaxConnsPerHost = n
	}
	if d, ok := envDuration("MINIHTTP_IDLE_TIMEOUT"); ok {
		c.Client.Pool.IdleTimeout = d
	}
	if d, ok := envDuration("MINIHTTP_DIAL_TIMEOUT"); ok {
		c.Client.Pool.DialTimeout = d
	}
	if n, ok := envInt("MINIHTTP_MAX_BODY"); ok {
		c.MaxBody = int64(n)
	}
	if v := os.Getenv("MINIHTTP_DISABLE_KEEPALIVES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Client.DisableKeepAlives = b
		}
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	return d, err == nil
}
