// Package config loads the server configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tokenmeter/internal/pricing"
	"tokenmeter/internal/retry"
)

// PricingFamily overrides one pricing family from config. Rates are
// dollars per 1000 units.
type PricingFamily struct {
	Name          string  `yaml:"name"`
	Token         string  `yaml:"token"`
	InputRate     float64 `yaml:"input_rate"`
	OutputRate    float64 `yaml:"output_rate"`
	ContextWindow int     `yaml:"context_window"`
}

// RetryConfig bounds store retries. Delays are milliseconds.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	InitialDelayMS int `yaml:"initial_delay_ms"`
	MaxDelayMS     int `yaml:"max_delay_ms"`
}

// RateLimitConfig bounds per-client request rates on the HTTP surface.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Config holds the server configuration.
type Config struct {
	Listen        string          `yaml:"listen"`
	DBPath        string          `yaml:"db_path"`
	RedisAddr     string          `yaml:"redis_addr"`
	RedisDB       int             `yaml:"redis_db"`
	BucketTTLDays int             `yaml:"bucket_ttl_days"`
	LogLevel      string          `yaml:"log_level"`
	LogFormat     string          `yaml:"log_format"`
	Pricing       []PricingFamily `yaml:"pricing"`
	Retry         RetryConfig     `yaml:"retry"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// Load reads the config file (optional) and applies environment
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen:    ":8080",
		DBPath:    "./tokenmeter.db",
		RedisAddr: "localhost:6379",
		LogLevel:  "info",
		LogFormat: "json",
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialDelayMS: 100,
			MaxDelayMS:     2000,
		},
		RateLimit: RateLimitConfig{
			RPS:   50,
			Burst: 100,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Listen = ":" + port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// Families converts the configured pricing overrides into a family set,
// falling back to the embedded rate card when none are configured.
func (c *Config) Families() []pricing.Family {
	if len(c.Pricing) == 0 {
		return pricing.DefaultFamilies()
	}
	families := make([]pricing.Family, 0, len(c.Pricing))
	for _, f := range c.Pricing {
		token := f.Token
		if token == "" {
			token = f.Name
		}
		families = append(families, pricing.Family{
			Name:          f.Name,
			Token:         token,
			Rate:          pricing.Rate{Input: f.InputRate, Output: f.OutputRate},
			ContextWindow: f.ContextWindow,
		})
	}
	return families
}

// RetryPolicy converts the retry config into a policy.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if c.Retry.MaxAttempts > 0 {
		p.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.InitialDelayMS > 0 {
		p.InitialDelay = time.Duration(c.Retry.InitialDelayMS) * time.Millisecond
	}
	if c.Retry.MaxDelayMS > 0 {
		p.MaxDelay = time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
	}
	return p
}

// BucketTTL converts the configured retention days into a duration; zero
// means keep buckets forever.
func (c *Config) BucketTTL() time.Duration {
	if c.BucketTTLDays <= 0 {
		return 0
	}
	return time.Duration(c.BucketTTLDays) * 24 * time.Hour
}
