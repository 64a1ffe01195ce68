package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/giftvault-io/giftvault/internal/security"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	Listen   string         `yaml:"listen"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	JWT      JWTConfig      `yaml:"jwt"`
	Crypto   CryptoConfig   `yaml:"encryption"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Redis    RedisConfig    `yaml:"redis"`
	Codes    CodesConfig    `yaml:"codes"`
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // PostgreSQL or SQLite DSN.
}

// LogConfig controls logrus output and rotation.
type LogConfig struct {
	Level      string `yaml:"level"`        // debug, info, warn, error.
	File       string `yaml:"file"`         // Empty logs to stdout.
	MaxSizeMB  int    `yaml:"max-size-mb"`  // Rotation threshold.
	MaxBackups int    `yaml:"max-backups"`  // Rotated files kept.
	MaxAgeDays int    `yaml:"max-age-days"` // Retention for rotated files.
}

// JWTConfig controls admin token issuance.
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpiryHours int    `yaml:"expiry-hours"`
}

// Expiry returns the token lifetime, defaulting to 24 hours.
func (c JWTConfig) Expiry() time.Duration {
	hours := c.ExpiryHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// CryptoConfig holds the encryption keyring. New codes are sealed under the
// active key; retired keys stay listed so old inventory remains decryptable.
type CryptoConfig struct {
	ActiveKey string            `yaml:"active-key"`
	Keys      map[string]string `yaml:"keys"` // key ID -> base64 key material.
}

// SweepConfig controls the background expiry sweeper.
type SweepConfig struct {
	IntervalMinutes int `yaml:"interval-minutes"`
}

// Interval returns the sweep period, defaulting to 15 minutes.
func (c SweepConfig) Interval() time.Duration {
	minutes := c.IntervalMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return time.Duration(minutes) * time.Minute
}

// RedisConfig enables the optional stats snapshot cache when Addr is set.
type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	StatsTTLSeconds int    `yaml:"stats-ttl-seconds"`
}

// StatsTTL returns the stats cache lifetime, defaulting to 10 seconds.
func (c RedisConfig) StatsTTL() time.Duration {
	seconds := c.StatsTTLSeconds
	if seconds <= 0 {
		seconds = 10
	}
	return time.Duration(seconds) * time.Second
}

// CodesConfig holds inventory defaults applied at the API boundary.
type CodesConfig struct {
	DefaultValidDays int `yaml:"default-valid-days"` // Expiry applied when a request omits one.
}

// ValidDays returns the default validity window, defaulting to 365 days.
func (c CodesConfig) ValidDays() int {
	if c.DefaultValidDays <= 0 {
		return 365
	}
	return c.DefaultValidDays
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	var cfg Config
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	if len(c.Crypto.Keys) == 0 {
		return fmt.Errorf("config: encryption.keys is required")
	}
	if strings.TrimSpace(c.Crypto.ActiveKey) == "" {
		return fmt.Errorf("config: encryption.active-key is required")
	}
	if _, ok := c.Crypto.Keys[c.Crypto.ActiveKey]; !ok {
		return fmt.Errorf("config: encryption.active-key %s not present in encryption.keys", c.Crypto.ActiveKey)
	}
	if c.Listen == "" {
		c.Listen = ":8317"
	}
	return nil
}

// Keyring builds the decoded keyring from the configuration.
func (c *Config) Keyring() (*security.Keyring, error) {
	return security.NewKeyring(c.Crypto.ActiveKey, c.Crypto.Keys)
}
