package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cartwatch-lab/cartwatch/internal/core/funnel"
)

// Config represents the top-level application config plus the resolved
// recovery timeouts.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Webhook  WebhookConfig  `koanf:"webhook"`
	Recovery RecoveryConfig `koanf:"recovery"`

	// Timeouts is populated by Load after overlaying policy files.
	Timeouts funnel.Timeouts `koanf:"-"`
}

type ServerConfig struct {
	Port           int      `koanf:"port"`
	Host           string   `koanf:"host"`
	MaxBodySizeMB  int      `koanf:"max_body_size_mb"`
	Mode           string   `koanf:"mode"` // debug | release
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// WebhookConfig points at the automation endpoint notifications are
// forwarded to.
type WebhookConfig struct {
	URL     string `koanf:"url"`
	Timeout string `koanf:"timeout"` // parsed and validated on startup
}

type RecoveryConfig struct {
	Enabled       bool   `koanf:"enabled"`
	CheckInterval string `koanf:"check_interval"` // parsed and validated on startup
	PolicyDir     string `koanf:"policy_dir"`
}

// TimeoutDuration parses the configured webhook timeout.
func (c WebhookConfig) TimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(c.Timeout)
}

// IntervalDuration parses the configured sweep interval.
func (c RecoveryConfig) IntervalDuration() (time.Duration, error) {
	return time.ParseDuration(c.CheckInterval)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("server.allowed_origins must not be empty")
	}

	if strings.TrimSpace(c.Webhook.URL) == "" {
		return fmt.Errorf("webhook.url is required")
	}
	timeout, err := c.Webhook.TimeoutDuration()
	if err != nil {
		return fmt.Errorf("invalid webhook.timeout %q: %w", c.Webhook.Timeout, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("webhook.timeout must be > 0")
	}

	interval, err := c.Recovery.IntervalDuration()
	if err != nil {
		return fmt.Errorf("invalid recovery.check_interval %q: %w", c.Recovery.CheckInterval, err)
	}
	if interval <= 0 {
		return fmt.Errorf("recovery.check_interval must be > 0")
	}

	return nil
}

// Load parses config from file + env, validates it, then overlays recovery
// policy files onto the default stage timeouts.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.max_body_size_mb": 1,
		"server.mode":             "release",
		"server.allowed_origins":  []string{"*"},
		"webhook.url":             "http://localhost:5678/webhook/event",
		"webhook.timeout":         "10s",
		"recovery.enabled":        true,
		"recovery.check_interval": "1h",
		"recovery.policy_dir":     "./config/recovery",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// CARTWATCH_SERVER__PORT=9090 overrides server.port
	if err := k.Load(env.Provider("CARTWATCH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CARTWATCH_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeouts, err := funnel.LoadTimeouts(cfg.Recovery.PolicyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery policies: %w", err)
	}
	cfg.Timeouts = timeouts

	return &cfg, nil
}
