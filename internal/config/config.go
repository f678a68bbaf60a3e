// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads holochat settings from an optional YAML file and
// command-line flags.
package config

import (
	"errors"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/holomush/holochat/internal/auth"
	"github.com/holomush/holochat/internal/logging"
	"github.com/holomush/holochat/internal/ratelimit"
	"github.com/holomush/holochat/internal/xdg"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Default values for flags.
const (
	DefaultBackend     = BackendSQLite
	DefaultListenAddr  = "127.0.0.1:8080"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultLogFormat   = "json"
)

// Environment variables consulted when the matching setting is empty.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvPostmarkToken = "POSTMARK_SERVER_TOKEN"
)

// Config is the effective holochat configuration.
type Config struct {
	Backend     string `koanf:"backend" yaml:"backend"`
	DatabaseURL string `koanf:"database_url" yaml:"database_url"`
	SQLitePath  string `koanf:"sqlite_path" yaml:"sqlite_path"`

	ListenAddr  string `koanf:"listen_addr" yaml:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr" yaml:"metrics_addr"`
	LogFormat   string `koanf:"log_format" yaml:"log_format"`
	LogLevel    string `koanf:"log_level" yaml:"log_level"`

	// RedisAddr enables the shared attempt limiter. Empty uses an in-process one.
	RedisAddr         string        `koanf:"redis_addr" yaml:"redis_addr"`
	RateLimitAttempts int           `koanf:"rate_limit_attempts" yaml:"rate_limit_attempts"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" yaml:"rate_limit_window"`

	// CodeTTL bounds verification code age. Zero means codes never expire.
	CodeTTL     time.Duration `koanf:"code_ttl" yaml:"code_ttl"`
	Application string        `koanf:"application" yaml:"application"`

	// PostmarkToken enables email delivery. Empty logs mail instead.
	PostmarkToken string `koanf:"postmark_token" yaml:"postmark_token"`
	EmailFrom     string `koanf:"email_from" yaml:"email_from"`

	// Password complexity thresholds. A zero max length disables the upper bound.
	PasswordMinLength     int  `koanf:"password_min_length" yaml:"password_min_length"`
	PasswordMaxLength     int  `koanf:"password_max_length" yaml:"password_max_length"`
	PasswordRequireLower  bool `koanf:"password_require_lower" yaml:"password_require_lower"`
	PasswordRequireUpper  bool `koanf:"password_require_upper" yaml:"password_require_upper"`
	PasswordRequireDigit  bool `koanf:"password_require_digit" yaml:"password_require_digit"`
	PasswordRequireSymbol bool `koanf:"password_require_symbol" yaml:"password_require_symbol"`
}

// RegisterFlags adds every setting to fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("backend", DefaultBackend, "storage backend (postgres or sqlite)")
	fs.String("database-url", "", "PostgreSQL URL (default: $"+EnvDatabaseURL+")")
	fs.String("sqlite-path", filepath.Join(xdg.DataDir(), "holochat.db"), "SQLite database file")
	fs.String("listen-addr", DefaultListenAddr, "HTTP API listen address")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("redis-addr", "", "Redis address for the shared attempt limiter")
	fs.Int("rate-limit-attempts", ratelimit.DefaultMaxAttempts, "token requests allowed per email per window (0 = unlimited)")
	fs.Duration("rate-limit-window", ratelimit.DefaultWindow, "attempt limiter window")
	fs.Duration("code-ttl", 0, "verification code lifetime (0 = never expires)")
	fs.String("application", "holochat", "application tag stamped on issued tokens")
	fs.String("postmark-token", "", "Postmark server token (default: $"+EnvPostmarkToken+")")
	fs.String("email-from", "", "sender address for verification email")

	policy := auth.DefaultPasswordPolicy()
	fs.Int("password-min-length", policy.MinLength, "minimum password length")
	fs.Int("password-max-length", policy.MaxLength, "maximum password length (0 = unbounded)")
	fs.Bool("password-require-lower", policy.RequireLower, "require a lowercase letter in passwords")
	fs.Bool("password-require-upper", policy.RequireUpper, "require an uppercase letter in passwords")
	fs.Bool("password-require-digit", policy.RequireDigit, "require a digit in passwords")
	fs.Bool("password-require-symbol", policy.RequireSymbol, "require a symbol in passwords")
}

// DefaultPath returns the config file read when --config is not given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), "config.yaml")
}

// Load builds the configuration. Values come from, in increasing precedence:
// flag defaults, the YAML file at path, and flags set on the command line.
// An empty path reads DefaultPath if it exists. getenv fills DATABASE_URL and
// POSTMARK_SERVER_TOKEN when they are still empty; nil uses os.Getenv.
func Load(flags *pflag.FlagSet, path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "load flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = getenv(EnvDatabaseURL)
	}
	if cfg.PostmarkToken == "" {
		cfg.PostmarkToken = getenv(EnvPostmarkToken)
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
	}

	switch c.Backend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return invalid("database_url", "database_url (or $%s) is required for the postgres backend", EnvDatabaseURL)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite_path", "sqlite_path is required for the sqlite backend")
		}
	default:
		return invalid("backend", "backend must be %q or %q, got %q", BackendPostgres, BackendSQLite, c.Backend)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", "log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if c.RateLimitAttempts < 0 {
		return invalid("rate_limit_attempts", "rate_limit_attempts cannot be negative")
	}
	if c.RateLimitAttempts > 0 && c.RateLimitWindow <= 0 {
		return invalid("rate_limit_window", "rate_limit_window must be positive when rate limiting is enabled")
	}
	if c.CodeTTL < 0 {
		return invalid("code_ttl", "code_ttl cannot be negative")
	}
	if c.PasswordMinLength < 1 {
		return invalid("password_min_length", "password_min_length must be at least 1")
	}
	if c.PasswordMaxLength < 0 || (c.PasswordMaxLength > 0 && c.PasswordMaxLength < c.PasswordMinLength) {
		return invalid("password_max_length", "password_max_length must be 0 or at least password_min_length (%d)", c.PasswordMinLength)
	}
	if c.PostmarkToken != "" {
		if _, err := mail.ParseAddress(c.EmailFrom); err != nil {
			return invalid("email_from", "email_from must be a valid address when postmark is enabled: %v", err)
		}
	}
	return nil
}

// PasswordPolicy returns the configured password complexity policy.
func (c *Config) PasswordPolicy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:     c.PasswordMinLength,
		MaxLength:     c.PasswordMaxLength,
		RequireLower:  c.PasswordRequireLower,
		RequireUpper:  c.PasswordRequireUpper,
		RequireDigit:  c.PasswordRequireDigit,
		RequireSymbol: c.PasswordRequireSymbol,
	}
}

// YAML renders the configuration with secrets redacted.
func (c *Config) YAML() ([]byte, error) {
	redacted := *c
	if redacted.PostmarkToken != "" {
		redacted.PostmarkToken = "REDACTED"
	}
	if u, err := url.Parse(redacted.DatabaseURL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "REDACTED")
			redacted.DatabaseURL = u.String()
		}
	}
	out, err := yamlv3.Marshal(&redacted)
	if err != nil {
		return nil, oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}
	return out, nil
}
