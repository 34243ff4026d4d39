package redis

import (
	"fmt"
	"time"
)

// Config holds connection and mirror settings.
type Config struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`

	PoolSize     int    `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	MaxRetries   int    `yaml:"max_retries" mapstructure:"max_retries"`
	DialTimeout  string `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  string `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout"`

	// KeyPrefix namespaces every key and the channel.
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	// ResultTTL expires stored run results (e.g. "168h"); empty keeps them.
	ResultTTL string `yaml:"result_ttl" mapstructure:"result_ttl"`
	// Buffer is the status subscription buffer of the mirror.
	Buffer int `yaml:"buffer" mapstructure:"buffer"`

	// WriteAttempts bounds retries of one mirror write.
	WriteAttempts int `yaml:"write_attempts" mapstructure:"write_attempts"`
	// BreakerFailures consecutive failed writes stop mirroring for
	// BreakerCooldown; the first write after it resynchronizes the hash.
	BreakerFailures int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldown string `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "5s"
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "3s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "3s"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "podflow"
	}
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.WriteAttempts <= 0 {
		c.WriteAttempts = 3
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown == "" {
		c.BreakerCooldown = "10s"
	}
}

// Validate checks required and parseable fields. A disabled config is
// always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("redis.pool_size must be > 0")
	}
	for name, v := range map[string]string{
		"dial_timeout":     c.DialTimeout,
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"breaker_cooldown": c.BreakerCooldown,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("redis.%s %q: %w", name, v, err)
		}
	}
	if c.ResultTTL != "" {
		if _, err := time.ParseDuration(c.ResultTTL); err != nil {
			return fmt.Errorf("redis.result_ttl %q: %w", c.ResultTTL, err)
		}
	}
	return nil
}

// Keys derived from KeyPrefix.
func (c *Config) StatusKey() string     { return c.KeyPrefix + ":status" }
func (c *Config) VersionKey() string    { return c.KeyPrefix + ":status:version" }
func (c *Config) StatusChannel() string { return c.KeyPrefix + ":status:events" }
func (c *Config) RunPrefix() string     { return c.KeyPrefix + ":run" }

func (c *Config) breakerCooldown() time.Duration {
	d, _ := time.ParseDuration(c.BreakerCooldown)
	return d
}

func (c *Config) resultTTL() time.Duration {
	d, _ := time.ParseDuration(c.ResultTTL)
	return d
}
