// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Quorum policies.
const (
	PolicyStatic       = "static"
	PolicyProportional = "proportional"
)

// Config is the master configuration for gatekeeper.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Matrix configures the homeserver connection.
	Matrix MatrixConfig `yaml:"matrix"`

	// Store selects and configures the document store.
	Store StoreConfig `yaml:"store"`

	// Quorum configures the entry request vote thresholds.
	Quorum QuorumConfig `yaml:"quorum"`

	// Guilds lists the spaces the service manages.
	Guilds []GuildConfig `yaml:"guilds"`

	// Metrics configures OTLP export of the service counters.
	Metrics MetricsConfig `yaml:"metrics"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`

	// Secrets are read from the environment, never from the file.
	Secrets Secrets `yaml:"-"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Matrix  *MatrixConfig  `yaml:"matrix,omitempty"`
	Store   *StoreConfig   `yaml:"store,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// MatrixConfig configures the homeserver connection.
type MatrixConfig struct {
	// HomeserverURL is the client-server API base URL.
	HomeserverURL string `yaml:"homeserver_url"`

	// UserID is the account the service acts as. Its access token is
	// a secret.
	UserID string `yaml:"user_id"`

	// RequestsPerSecond limits outgoing requests other than /sync.
	// Zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the limiter's burst size.
	Burst int `yaml:"burst"`

	// SyncTimeout is the long-poll timeout for /sync.
	// Default: 30s
	SyncTimeout time.Duration `yaml:"sync_timeout"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	// Backend is one of memory, sqlite, or redis.
	Backend string `yaml:"backend"`

	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file. ${VAR} patterns are expanded.
	Path string `yaml:"path"`
}

// RedisConfig configures the Redis backend. The password is a secret.
type RedisConfig struct {
	Address   string `yaml:"address"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// QuorumConfig configures the entry request vote thresholds.
type QuorumConfig struct {
	// Policy is static or proportional.
	Policy string `yaml:"policy"`

	// Accept and Reject are the thresholds of the static policy.
	Accept int `yaml:"accept"`
	Reject int `yaml:"reject"`

	// AcceptRatio and RejectRatio are fractions of each guild's
	// voter count, used by the proportional policy.
	AcceptRatio float64 `yaml:"accept_ratio"`
	RejectRatio float64 `yaml:"reject_ratio"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	// OTLPEndpoint is the host:port of an OTLP gRPC collector. Empty
	// disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Interval is how often metrics are pushed.
	// Default: 15s
	Interval time.Duration `yaml:"interval"`
}

// GuildConfig configures one managed space. Every room is given as a
// room ID.
type GuildConfig struct {
	Space string `yaml:"space"`

	// Channels maps a prompt kind (entry-requests, tickets,
	// suggestions, reports, resources) to the room its prompts live
	// in. Kinds without a channel are disabled for the guild.
	Channels map[string]string `yaml:"channels"`

	// EntryRole is the room whose membership an accepted entry
	// request grants. Required when entry requests are enabled.
	EntryRole string `yaml:"entry_role"`

	// Journal is the room moderation outcomes are posted to. Optional.
	Journal string `yaml:"journal"`

	// Voters is the number of eligible voters, used by the
	// proportional quorum policy.
	Voters int `yaml:"voters"`
}

// Secrets holds credentials taken from the environment.
type Secrets struct {
	AccessToken   string `env:"GATEKEEPER_ACCESS_TOKEN"`
	RedisPassword string `env:"GATEKEEPER_REDIS_PASSWORD"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Matrix: MatrixConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			SyncTimeout:       30 * time.Second,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			Redis:   RedisConfig{KeyPrefix: "gatekeeper"},
		},
		Quorum: QuorumConfig{
			Policy: PolicyStatic,
			Accept: 2,
			Reject: 2,
		},
		Metrics: MetricsConfig{
			Interval: 15 * time.Second,
		},
	}
}

// Load loads configuration from the GATEKEEPER_CONFIG environment
// variable.
//
// There are no fallbacks - if GATEKEEPER_CONFIG is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("GATEKEEPER_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("GATEKEEPER_CONFIG environment variable not set; " +
			"set it to the path of your gatekeeper.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path and the
// secrets from the environment.
//
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas; anything else is YAML. Environment variables never
// override file values. The only expansion performed is ${VAR} in the
// store locations.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	cfg.expandVariables()

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, err
	}
	cfg.Secrets = secrets

	return cfg, nil
}

// LoadSecrets reads the secrets from the environment.
func LoadSecrets() (Secrets, error) {
	var secrets Secrets
	if err := env.Parse(&secrets); err != nil {
		return Secrets{}, fmt.Errorf("parsing secrets from environment: %w", err)
	}
	return secrets, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if strings.HasSuffix(path, ".jsonc") || strings.HasSuffix(path, ".json") {
		// JSON is a subset of YAML, so the same decoder reads both.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Matrix != nil {
		if overrides.Matrix.HomeserverURL != "" {
			c.Matrix.HomeserverURL = overrides.Matrix.HomeserverURL
		}
		if overrides.Matrix.UserID != "" {
			c.Matrix.UserID = overrides.Matrix.UserID
		}
		if overrides.Matrix.RequestsPerSecond != 0 {
			c.Matrix.RequestsPerSecond = overrides.Matrix.RequestsPerSecond
		}
		if overrides.Matrix.Burst != 0 {
			c.Matrix.Burst = overrides.Matrix.Burst
		}
		if overrides.Matrix.SyncTimeout != 0 {
			c.Matrix.SyncTimeout = overrides.Matrix.SyncTimeout
		}
	}

	if overrides.Store != nil {
		if overrides.Store.Backend != "" {
			c.Store.Backend = overrides.Store.Backend
		}
		if overrides.Store.SQLite.Path != "" {
			c.Store.SQLite.Path = overrides.Store.SQLite.Path
		}
		if overrides.Store.Redis.Address != "" {
			c.Store.Redis.Address = overrides.Store.Redis.Address
		}
		// DB 0 is a real database, so it is always applied with an address.
		if overrides.Store.Redis.Address != "" {
			c.Store.Redis.DB = overrides.Store.Redis.DB
		}
		if overrides.Store.Redis.KeyPrefix != "" {
			c.Store.Redis.KeyPrefix = overrides.Store.Redis.KeyPrefix
		}
	}

	if overrides.Metrics != nil {
		if overrides.Metrics.OTLPEndpoint != "" {
			c.Metrics.OTLPEndpoint = overrides.Metrics.OTLPEndpoint
			c.Metrics.Insecure = overrides.Metrics.Insecure
		}
		if overrides.Metrics.Interval != 0 {
			c.Metrics.Interval = overrides.Metrics.Interval
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// store and collector locations.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Store.SQLite.Path = expandVars(c.Store.SQLite.Path, vars)
	c.Store.Redis.Address = expandVars(c.Store.Redis.Address, vars)
	c.Metrics.OTLPEndpoint = expandVars(c.Metrics.OTLPEndpoint, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Matrix.HomeserverURL == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url is required"))
	} else if parsed, err := url.Parse(c.Matrix.HomeserverURL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url %q is not an http(s) URL", c.Matrix.HomeserverURL))
	}
	if c.Matrix.UserID == "" {
		errs = append(errs, fmt.Errorf("matrix.user_id is required"))
	}
	if c.Matrix.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("matrix.requests_per_second must not be negative"))
	}
	if c.Secrets.AccessToken == "" {
		errs = append(errs, fmt.Errorf("GATEKEEPER_ACCESS_TOKEN is not set"))
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("store.sqlite.path is required for the sqlite backend"))
		}
	case StoreRedis:
		if c.Store.Redis.Address == "" {
			errs = append(errs, fmt.Errorf("store.redis.address is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be one of: %v", []string{StoreMemory, StoreSQLite, StoreRedis}))
	}

	switch c.Quorum.Policy {
	case PolicyStatic:
		if c.Quorum.Accept < 1 || c.Quorum.Reject < 1 {
			errs = append(errs, fmt.Errorf("quorum.accept and quorum.reject must be at least 1"))
		}
	case PolicyProportional:
		if c.Quorum.AcceptRatio <= 0 || c.Quorum.AcceptRatio > 1 || c.Quorum.RejectRatio <= 0 || c.Quorum.RejectRatio > 1 {
			errs = append(errs, fmt.Errorf("quorum.accept_ratio and quorum.reject_ratio must be in (0, 1]"))
		}
	default:
		errs = append(errs, fmt.Errorf("quorum.policy must be one of: %v", []string{PolicyStatic, PolicyProportional}))
	}

	if c.Metrics.OTLPEndpoint != "" && c.Metrics.Interval <= 0 {
		errs = append(errs, fmt.Errorf("metrics.interval must be positive when metrics.otlp_endpoint is set"))
	}

	if len(c.Guilds) == 0 {
		errs = append(errs, fmt.Errorf("at least one guild is required"))
	}
	if _, err := c.Directory(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
