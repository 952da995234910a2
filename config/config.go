package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override file values.
// Nested keys are separated by a double underscore: TELEMETRY_TESLA__ACCESS_TOKEN.
const EnvPrefix = "TELEMETRY_"

// ErrMissingCredentials is returned when neither an access token nor a refresh token is configured.
var ErrMissingCredentials = errors.New("tesla credentials are not configured: set tesla.access_token or tesla.refresh_token")

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Tesla      TeslaConfig      `yaml:"tesla"`
	Sync       SyncConfig       `yaml:"sync"`
	Cache      CacheConfig      `yaml:"cache"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port" validate:"min=1,max=65535"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" validate:"gt=0"`
	RateLimitBurst  int     `yaml:"rate_limit_burst" validate:"min=1"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds" validate:"min=0"`
}

// TeslaConfig holds the Fleet API endpoint and credential configuration.
type TeslaConfig struct {
	Region                string `yaml:"region" validate:"oneof=NORTH_AMERICA EUROPE CHINA"`
	BaseURL               string `yaml:"base_url" validate:"omitempty,url"`
	AccessToken           string `yaml:"access_token"`
	RefreshToken          string `yaml:"refresh_token"`
	ClientID              string `yaml:"client_id"`
	ClientSecret          string `yaml:"client_secret"`
	TokenURL              string `yaml:"token_url" validate:"omitempty,url"`
	UserAgent             string `yaml:"user_agent"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" validate:"min=1"`

	RequestTimeout time.Duration `yaml:"-"`
}

// SyncConfig controls the background ingestion loop and the upstream call budget.
type SyncConfig struct {
	Enabled              bool `yaml:"enabled"`
	IntervalSeconds      int  `yaml:"interval_seconds" validate:"min=1"`
	MinCallIntervalMs    int  `yaml:"min_call_interval_ms" validate:"min=0"`
	VehicleDedupeSeconds int  `yaml:"vehicle_dedupe_seconds" validate:"min=0"`
	EnergyDedupeSeconds  int  `yaml:"energy_dedupe_seconds" validate:"min=0"`
	WakeDelaySeconds     int  `yaml:"wake_delay_seconds" validate:"min=0"`

	Interval        time.Duration `yaml:"-"`
	MinCallInterval time.Duration `yaml:"-"`
	VehicleDedupe   time.Duration `yaml:"-"`
	EnergyDedupe    time.Duration `yaml:"-"`
	WakeDelay       time.Duration `yaml:"-"`
}

// CacheConfig selects the entity cache backend and the per-kind TTLs.
type CacheConfig struct {
	Backend               string `yaml:"backend" validate:"oneof=database memory"`
	VehicleListTTLSeconds int    `yaml:"vehicle_list_ttl_seconds" validate:"min=1"`
	VehicleDataTTLSeconds int    `yaml:"vehicle_data_ttl_seconds" validate:"min=1"`
	EnergyDataTTLSeconds  int    `yaml:"energy_data_ttl_seconds" validate:"min=1"`

	VehicleListTTL time.Duration `yaml:"-"`
	VehicleDataTTL time.Duration `yaml:"-"`
	EnergyDataTTL  time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn" validate:"required"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size" validate:"min=1"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Default returns the configuration used before the file and the environment are applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			RateLimitPerSec: 10,
			RateLimitBurst:  5,
			CacheTTLSeconds: 60,
		},
		Tesla: TeslaConfig{
			Region:                "NORTH_AMERICA",
			TokenURL:              "https://auth.tesla.com/oauth2/v3/token",
			UserAgent:             "tesla-telemetry-backend",
			RequestTimeoutSeconds: 30,
		},
		Sync: SyncConfig{
			Enabled:              true,
			IntervalSeconds:      300,
			MinCallIntervalMs:    1100,
			VehicleDedupeSeconds: 30,
			EnergyDedupeSeconds:  30,
			WakeDelaySeconds:     5,
		},
		Cache: CacheConfig{
			Backend:               "database",
			VehicleListTTLSeconds: 30,
			VehicleDataTTLSeconds: 120,
			EnergyDataTTLSeconds:  120,
		},
		Database: DatabaseConfig{
			MaxOpenConns:           10,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 30,
		},
		Push: PushConfig{
			TTL: 3600,
		},
		WorkerPool: WorkerPoolConfig{
			Size: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration from the given path and applies TELEMETRY_* environment overrides.
// An empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "yaml"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.applyDurations()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps TELEMETRY_SYNC__INTERVAL_SECONDS to sync.interval_seconds.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func (c *Config) applyDurations() {
	c.Tesla.RequestTimeout = time.Duration(c.Tesla.RequestTimeoutSeconds) * time.Second

	c.Sync.Interval = time.Duration(c.Sync.IntervalSeconds) * time.Second
	c.Sync.MinCallInterval = time.Duration(c.Sync.MinCallIntervalMs) * time.Millisecond
	c.Sync.VehicleDedupe = time.Duration(c.Sync.VehicleDedupeSeconds) * time.Second
	c.Sync.EnergyDedupe = time.Duration(c.Sync.EnergyDedupeSeconds) * time.Second
	c.Sync.WakeDelay = time.Duration(c.Sync.WakeDelaySeconds) * time.Second

	c.Cache.VehicleListTTL = time.Duration(c.Cache.VehicleListTTLSeconds) * time.Second
	c.Cache.VehicleDataTTL = time.Duration(c.Cache.VehicleDataTTLSeconds) * time.Second
	c.Cache.EnergyDataTTL = time.Duration(c.Cache.EnergyDataTTLSeconds) * time.Second
}

// Validate checks struct constraints and the cross-field rules that are fatal at startup.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Tesla.AccessToken == "" && c.Tesla.RefreshToken == "" {
		return ErrMissingCredentials
	}
	if c.Tesla.RefreshToken != "" && c.Tesla.ClientID == "" {
		return errors.New("tesla.client_id is required when tesla.refresh_token is set")
	}
	if c.Push.Enabled && (c.Push.PublicKey == "" || c.Push.PrivateKey == "") {
		return errors.New("push.enabled requires push.vapid_public_key and push.vapid_private_key")
	}
	return nil
}

// YAML renders the effective configuration with secrets redacted.
func (c *Config) YAML() ([]byte, error) {
	redacted := *c
	redacted.Tesla.AccessToken = redact(c.Tesla.AccessToken)
	redacted.Tesla.RefreshToken = redact(c.Tesla.RefreshToken)
	redacted.Tesla.ClientSecret = redact(c.Tesla.ClientSecret)
	redacted.Push.PrivateKey = redact(c.Push.PrivateKey)
	redacted.Database.DSN = redact(c.Database.DSN)
	return yaml.Marshal(&redacted)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
