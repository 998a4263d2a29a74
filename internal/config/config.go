// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

// Package config loads server configuration from an optional YAML file
// with command-line flag overrides.
package config

import (
	"errors"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/duskhollow/duskhollow/internal/auth"
)

// Default values used when neither file nor flags provide a setting.
const (
	DefaultGateAddr    = ":4700"
	DefaultMetricsAddr = "127.0.0.1:9101"
	DefaultLogFormat   = "text"
)

// Config holds the full server configuration.
type Config struct {
	Gate     GateConfig     `koanf:"gate"`
	Database DatabaseConfig `koanf:"database"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Email    EmailConfig    `koanf:"email"`
	Log      LogConfig      `koanf:"log"`
}

// GateConfig configures the client-facing listener.
type GateConfig struct {
	Addr        string `koanf:"addr"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SMTPConfig configures outbound mail. An empty Addr selects the
// log-only dispatcher.
type SMTPConfig struct {
	Addr     string `koanf:"addr"`
	From     string `koanf:"from"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// EmailConfig configures registration email constraints.
type EmailConfig struct {
	MinLength   int      `koanf:"min_length"`
	MaxLength   int      `koanf:"max_length"`
	BannedWords []string `koanf:"banned_words"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	Format string `koanf:"format"`
}

// Policy converts the email section into an auth.EmailPolicy.
func (c EmailConfig) Policy() auth.EmailPolicy {
	policy := auth.DefaultEmailPolicy()
	if c.MinLength > 0 {
		policy.MinLength = c.MinLength
	}
	if c.MaxLength > 0 {
		policy.MaxLength = c.MaxLength
	}
	policy.BannedWords = c.BannedWords
	return policy
}

// Load builds the configuration by layering, lowest precedence first:
// built-in defaults, the YAML file at path (skipped when empty or
// missing), then any flags set on fs.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"gate.addr":         DefaultGateAddr,
		"gate.metrics_addr": DefaultMetricsAddr,
		"email.min_length":  auth.DefaultEmailMinLength,
		"email.max_length":  auth.DefaultEmailMaxLength,
		"log.format":        DefaultLogFormat,
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		err := k.Load(file.Provider(path), yaml.Parser())
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}
	return &cfg, nil
}

// Validate checks settings that would only fail at runtime otherwise.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	if c.Gate.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("gate.addr cannot be empty")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return oops.Code("CONFIG_INVALID").
			Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Email.MinLength > c.Email.MaxLength {
		return oops.Code("CONFIG_INVALID").
			Errorf("email.min_length %d exceeds email.max_length %d",
				c.Email.MinLength, c.Email.MaxLength)
	}
	return nil
}
