// Package config loads kvsession configuration.
//
// Configuration is assembled with koanf from (in increasing priority) an
// in-memory map, a YAML file, and environment variables. Environment
// variables use the KVSESSION_ prefix and a double underscore to separate
// nesting levels, since single underscores appear in key names:
//
//	KVSESSION_ENGINE=redis
//	KVSESSION_STORAGE__HOST=redis.internal
//	KVSESSION_STORAGE__DB_SESSIONS=3
//	KVSESSION_COOKIES__EXPIRES_DAYS=30
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "KVSESSION_"

// ErrConfiguration indicates that required configuration is missing or
// invalid.
var ErrConfiguration = errors.New("invalid configuration")

// Config is the complete configuration surface.
type Config struct {
	// Engine selects the storage driver (see factory.Engines). Required.
	Engine string `koanf:"engine"`
	// Storage holds the backend connection parameters, plus optional
	// per-category overrides keyed by category name.
	Storage map[string]any `koanf:"storage"`
	// Cookies controls the key cookie.
	Cookies Cookies `koanf:"cookies"`
	// TTL is the document expiration, refreshed on every write.
	// Default if unspecified: 24h
	TTL time.Duration `koanf:"ttl"`
}

// Cookies holds key cookie options. When neither Expires nor ExpiresDays is
// set, the cookie lasts for the browser session.
type Cookies struct {
	Name        string    `koanf:"name"`
	Expires     time.Time `koanf:"expires"`
	ExpiresDays int       `koanf:"expires_days"`
	Path        string    `koanf:"path"`
	Domain      string    `koanf:"domain"`
	Secure      bool      `koanf:"secure"`
	HTTPOnly    bool      `koanf:"http_only"`
	// SameSite is one of "lax", "strict", "none" or empty (unset).
	SameSite string `koanf:"same_site"`
	// MaxAge bounds how old a signed cookie value may be and still verify.
	MaxAge time.Duration `koanf:"max_age"`
}

// Validate checks that c is usable.
func (c *Config) Validate() error {
	if c.Engine == "" {
		return fmt.Errorf("engine is not set: %w", ErrConfiguration)
	}
	if c.TTL < 0 {
		return fmt.Errorf("ttl %v is negative: %w", c.TTL, ErrConfiguration)
	}
	if c.Cookies.ExpiresDays < 0 {
		return fmt.Errorf("cookies.expires_days %d is negative: %w", c.Cookies.ExpiresDays, ErrConfiguration)
	}
	switch strings.ToLower(c.Cookies.SameSite) {
	case "", "lax", "strict", "none":
	default:
		return fmt.Errorf("cookies.same_site %q is not one of lax, strict, none: %w", c.Cookies.SameSite, ErrConfiguration)
	}
	return nil
}

// Loader loads configuration from multiple sources.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	defaults  map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithDefaults sets the lowest-priority configuration values, as a nested
// map (e.g., {"engine": "memory"}).
func WithDefaults(m map[string]any) Option {
	return func(l *Loader) {
		l.defaults = m
	}
}

// NewLoader returns a new Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every configured source, then unmarshals and validates the
// result.
func (l *Loader) Load() (*Config, error) {
	if l.defaults != nil {
		if err := l.k.Load(mapProvider(l.defaults), nil); err != nil {
			return nil, fmt.Errorf("load defaults: %w", err)
		}
	}
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load file %s: %w", l.filePath, err)
		}
	}
	if l.envPrefix != "" {
		if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
			return nil, fmt.Errorf("load env: %w", err)
		}
	}
	cfg := new(Config)
	if err := l.k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration (error: %v): %w", err, ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps KVSESSION_STORAGE__DB_SESSIONS to storage.db_sessions.
func (l *Loader) envKey(s string) string {
	s = strings.TrimPrefix(s, l.envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}

// Load is shorthand for loading from an optional YAML file and the
// environment.
func Load(path string) (*Config, error) {
	return NewLoader(WithConfigFile(path)).Load()
}

// FromMap builds a validated Config from a nested map only (e.g., settings
// assembled in code or tests). The environment is not consulted.
func FromMap(m map[string]any) (*Config, error) {
	return NewLoader(WithEnvPrefix(""), WithDefaults(m)).Load()
}

// mapProvider is a koanf provider serving a nested map.
type mapProvider map[string]any

var errReadBytesNotSupported = errors.New("map provider does not support ReadBytes")

// ReadBytes is not supported: koanf uses Read for this provider.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

// Read returns a copy of the configuration map, so that koanf never merges
// into the caller's map.
func (m mapProvider) Read() (map[string]any, error) {
	return maps.Copy(m), nil
}
