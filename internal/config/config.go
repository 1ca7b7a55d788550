// Package config manages environment variables.
//
// It reads variables from the `.env` file, loads them into structured Go
// types, and validates that required values are present so they can be
// reused across the application runtime.
package config

import (
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	// Side-effect import: loads a `.env` file into the process env, if
	// one exists, before any env var is read.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Config is the root configuration object for the application.
//
// Env vars with the OSMCHA_ prefix are mapped into it using "." as the
// nesting delimiter, e.g. OSMCHA_DATABASE.HOST -> Config.Database.Host.
// Observability is a pointer because it is optional; defaults are injected
// when it is missing.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Redis         RedisConfig          `koanf:"redis" validate:"required"`
	Auth          AuthConfig           `koanf:"auth"`
	OSM           OSMConfig            `koanf:"osm"`
	Review        ReviewConfig         `koanf:"review"`
	Email         EmailConfig          `koanf:"email"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// ServerConfig groups settings for the HTTP server runtime.
// Timeouts are in seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`
}

// DatabaseConfig contains PostgreSQL/PostGIS connection parameters and pool
// tuning.
type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password" validate:"required"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int    `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time" validate:"required"`
}

// RedisConfig contains Redis connection details. Address is "host:port".
// Redis backs the review throttle counters, the auth token cache, and the
// Asynq job queues.
type RedisConfig struct {
	Address string `koanf:"address" validate:"required"`
}

// AuthConfig stores authentication settings for reviewer API tokens.
// TokenCacheTTL is in seconds and bounds how long a revoked token can keep
// working through the Redis cache.
type AuthConfig struct {
	TokenCacheTTL int `koanf:"token_cache_ttl"`
}

// OSMConfig points at the OpenStreetMap API used to enrich skeletal
// changesets created by the ingestion endpoints.
type OSMConfig struct {
	APIBaseURL string `koanf:"api_base_url"`
	UserAgent  string `koanf:"user_agent"`
}

// ReviewConfig tunes the changeset review workflow.
// ChecksPerMinute limits how many changesets a non-staff reviewer can mark
// harmful or good per minute.
type ReviewConfig struct {
	ChecksPerMinute int `koanf:"checks_per_minute"`
}

// EmailConfig configures the moderator alert emails. When ResendAPIKey or
// Moderators is empty, alerting is disabled.
type EmailConfig struct {
	ResendAPIKey string   `koanf:"resend_api_key"`
	From         string   `koanf:"from"`
	Moderators   []string `koanf:"moderators"`
}

// Load reads configuration from the environment, validates it, applies
// defaults and returns the resulting config. It exits the process on
// malformed configuration so the service fails fast at startup.
func Load() (*Config, error) {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	k := koanf.New(".")

	err := k.Load(env.Provider("OSMCHA_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "OSMCHA_"))
	}), nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("Could not load initial env variables.")
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Could not unmarshal main config.")
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("Config validation failed.")
	}

	mainConfig.applyDefaults()

	// Service name and environment are forced so tracing and logging see
	// consistent naming regardless of what the operator set.
	mainConfig.Observability.ServiceName = "osmcha-backend"
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	if err := mainConfig.Observability.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid observability config")
	}

	return mainConfig, nil
}

func (c *Config) applyDefaults() {
	if c.Observability == nil {
		c.Observability = DefaultObservabilityConfig()
	}
	if c.Auth.TokenCacheTTL <= 0 {
		c.Auth.TokenCacheTTL = 300
	}
	if c.OSM.APIBaseURL == "" {
		c.OSM.APIBaseURL = "https://www.openstreetmap.org/api/0.6"
	}
	if c.OSM.UserAgent == "" {
		c.OSM.UserAgent = "osmcha-backend"
	}
	if c.Review.ChecksPerMinute <= 0 {
		c.Review.ChecksPerMinute = 3
	}
}
