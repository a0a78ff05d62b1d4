// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health endpoint used by probes.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment, development or production. Production turns on Secure cookies.
	Env string `mapstructure:"APP_ENV"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	AccessTokenSecret     string `mapstructure:"ACCESS_TOKEN_SECRET"`
	AccessTokenExpiresIn  string `mapstructure:"ACCESS_TOKEN_EXPIRES_IN"`
	RefreshTokenSecret    string `mapstructure:"REFRESH_TOKEN_SECRET"`
	RefreshTokenExpiresIn string `mapstructure:"REFRESH_TOKEN_EXPIRES_IN"`

	// BcryptCost is the bcrypt cost factor (4–31); default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SessionStore selects where refresh-token hashes live: postgres (users table) or redis.
	SessionStore string `mapstructure:"SESSION_STORE"`
	// RedisURL is a redis:// URL; required when SessionStore is redis.
	RedisURL string `mapstructure:"REDIS_URL"`

	// KafkaBrokers is a comma-separated list of brokers. Empty disables the auth event stream.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuthEventsTopic is the Kafka topic for auth lifecycle events.
	AuthEventsTopic string `mapstructure:"AUTH_EVENTS_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty means no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Token secrets are required and
// malformed token durations are an error; callers treat any error as fatal.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabaseURL returns DATABASE_URL from .env or the environment without validating the
// rest of the config. Used by tools that only talk to the database (cmd/migrate).
func LoadDatabaseURL() (string, error) {
	cfg, err := read()
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", errors.New("config: DATABASE_URL must be set")
	}
	return cfg.DatabaseURL, nil
}

func read() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	// Every key needs a default, otherwise Unmarshal does not see values that only exist in the env.
	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("GRPC_ADDR", ":8081")
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ACCESS_TOKEN_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_EXPIRES_IN", "15m")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_EXPIRES_IN", "7d")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("SESSION_STORE", SessionStorePostgres)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_TOPIC", "fleet-auth-events")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		return fmt.Errorf("config: APP_ENV must be %s or %s, got %q", EnvDevelopment, EnvProduction, c.Env)
	}
	if c.AccessTokenSecret == "" {
		return errors.New("config: ACCESS_TOKEN_SECRET must be set")
	}
	if c.RefreshTokenSecret == "" {
		return errors.New("config: REFRESH_TOKEN_SECRET must be set")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("config: ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	var err error
	if c.accessTTL, err = ParseDuration(c.AccessTokenExpiresIn); err != nil {
		return fmt.Errorf("config: ACCESS_TOKEN_EXPIRES_IN: %w", err)
	}
	if c.refreshTTL, err = ParseDuration(c.RefreshTokenExpiresIn); err != nil {
		return fmt.Errorf("config: REFRESH_TOKEN_EXPIRES_IN: %w", err)
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 10
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	switch c.SessionStore {
	case SessionStorePostgres:
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL must be set when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("config: SESSION_STORE must be %s or %s, got %q", SessionStorePostgres, SessionStoreRedis, c.SessionStore)
	}
	return nil
}

// AccessTTL is the parsed ACCESS_TOKEN_EXPIRES_IN. Zero until Load succeeds.
func (c *Config) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL is the parsed REFRESH_TOKEN_EXPIRES_IN. Zero until Load succeeds.
func (c *Config) RefreshTTL() time.Duration { return c.refreshTTL }

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ErrInvalidDuration is returned by ParseDuration for strings that are not <integer><s|m|h|d>.
var ErrInvalidDuration = errors.New("duration must be <integer><unit> with unit one of s, m, h, d")

// ParseDuration parses strings such as "30s", "15m", "12h" or "7d". Unlike time.ParseDuration it
// accepts days and rejects compound or fractional values.
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	if n > int64((1<<63-1)/unit) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidDuration, s)
	}
	return time.Duration(n) * unit, nil
}
