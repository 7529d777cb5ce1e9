package httpx

import "dqx0.com/go/minihttp/httpx/internal/http1"

const DefaultUserAgent = "minihttp/1"

// Config tunes a Client. The zero value is usable; DefaultConfig spells the
// effective defaults out.
type Config struct {
	Pool              PoolConfig `yaml:"pool"`
	MaxLineBytes      int        `yaml:"max_line_bytes"`
	MaxHeaderBytes    int        `yaml:"max_header_bytes"`
	MaxChunkSize      int64      `yaml:"max_chunk_size"`
	UserAgent         string     `yaml:"user_agent"`
	DisableKeepAlives bool       `yaml:"disable_keep_alives"`
}

// DefaultConfig returns the configuration a zero Config resolves to.
func DefaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			MaxIdlePerHost: DefaultMaxIdlePerHost,
			IdleTimeout:    DefaultIdleTimeout,
			DialTimeout:    DefaultDialTimeout,
		},
		MaxLineBytes:   http1.DefaultMaxLineBytes,
		MaxHeaderBytes: http1.DefaultMaxHeaderBytes,
		MaxChunkSize:   http1.DefaultMaxChunkSize,
		UserAgent:      DefaultUserAgent,
	}
}

func (c Config) withDefaults() Config {
	c.Pool = c.Pool.withDefaults()
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = http1.DefaultMaxLineBytes
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = http1.DefaultMaxHeaderBytes
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = http1.DefaultMaxChunkSize
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}
