// Package config loads a YAML description of a cache deployment and builds
// the store, snapshot backend, telemetry and region registry it describes.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/kvregion/keycodec"
	"github.com/jonwraymond/kvregion/observe"
)

// Store kinds.
const (
	StoreMemory   = "memory"
	StoreMemcache = "memcache"
)

// Snapshot backends.
const (
	SnapshotsNone   = "none"
	SnapshotsFile   = "file"
	SnapshotsSQLite = "sqlite"
)

// Sentinel errors for configuration.
var (
	ErrInvalidConfig    = errors.New("config: invalid configuration")
	ErrUnknownStore     = fmt.Errorf("%w: unknown store kind", ErrInvalidConfig)
	ErrMissingServers   = fmt.Errorf("%w: memcache store requires servers", ErrInvalidConfig)
	ErrUnknownSnapshots = fmt.Errorf("%w: unknown snapshot backend", ErrInvalidConfig)
	ErrMissingPath      = fmt.Errorf("%w: snapshot backend requires a path", ErrInvalidConfig)
	ErrInvalidPolicy    = fmt.Errorf("%w: default_max_age exceeds max_age", ErrInvalidConfig)
)

// Config describes a cache deployment.
type Config struct {
	Store       StoreConfig     `yaml:"store"`
	KeyStrategy string          `yaml:"key_strategy"` // hashed|plain|reversible|hashed_reversible
	Policy      PolicyConfig    `yaml:"policy"`
	Snapshots   SnapshotsConfig `yaml:"snapshots"`
	Observe     observe.Config  `yaml:"observe"`
}

// StoreConfig selects and configures the remote store.
type StoreConfig struct {
	Kind         string           `yaml:"kind"` // memory|memcache
	Servers      []string         `yaml:"servers"`
	Timeout      time.Duration    `yaml:"timeout"`
	MaxIdleConns int              `yaml:"max_idle_conns"`
	Resilience   ResilienceConfig `yaml:"resilience"`
}

// ResilienceConfig wraps the store in retries and a circuit breaker.
type ResilienceConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// PolicyConfig bounds the TTLs used by the cache service.
type PolicyConfig struct {
	DefaultMaxAge time.Duration `yaml:"default_max_age"`
	MaxAge        time.Duration `yaml:"max_age"`
}

// SnapshotsConfig selects where key indexes are persisted.
type SnapshotsConfig struct {
	Backend string `yaml:"backend"` // none|file|sqlite
	Path    string `yaml:"path"`
}

// Default returns a configuration for a single-process in-memory cache.
func Default() Config {
	return Config{
		Store:       StoreConfig{Kind: StoreMemory},
		KeyStrategy: keycodec.Hashed.String(),
		Policy: PolicyConfig{
			DefaultMaxAge: time.Hour,
			MaxAge:        30 * 24 * time.Hour,
		},
		Snapshots: SnapshotsConfig{Backend: SnapshotsNone},
		Observe:   observe.Config{ServiceName: "kvregion"},
	}
}

// Load reads and validates the YAML file at path. Fields the file omits
// keep their Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case StoreMemory:
	case StoreMemcache:
		if len(c.Store.Servers) == 0 {
			return ErrMissingServers
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store.Kind)
	}

	if _, err := keycodec.ParseStrategy(c.KeyStrategy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.Policy.DefaultMaxAge < 0 || c.Policy.MaxAge < 0 {
		return fmt.Errorf("%w: negative max age", ErrInvalidConfig)
	}
	if c.Policy.MaxAge > 0 && c.Policy.DefaultMaxAge > c.Policy.MaxAge {
		return ErrInvalidPolicy
	}

	switch c.Snapshots.Backend {
	case "", SnapshotsNone:
	case SnapshotsFile, SnapshotsSQLite:
		if c.Snapshots.Path == "" {
			return fmt.Errorf("%w: %s", ErrMissingPath, c.Snapshots.Backend)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSnapshots, c.Snapshots.Backend)
	}

	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
