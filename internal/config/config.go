// Package config resolves the process configuration once at startup.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var defaults = map[string]any{
	"APP_ENV":   "development",
	"PORT":      "8080",
	"LOG_LEVEL": "info",

	"JWT_ACCESS_TOKEN_EXPIRY":  3600,
	"JWT_REFRESH_TOKEN_EXPIRY": 604800,

	"DB_MAX_OPEN_CONNS":             10,
	"DB_MAX_IDLE_CONNS":             5,
	"DB_CONN_MAX_LIFETIME_MINUTES":  30,
	"DB_CONN_MAX_IDLE_TIME_MINUTES": 10,

	"OPAQUE_TOKEN_CACHE_TTL_SECONDS": 60,

	"LOGIN_MAX_ATTEMPTS":              5,
	"LOGIN_LOCK_MINUTES":              15,
	"LOGIN_RATE_LIMIT_MAX":            10,
	"LOGIN_RATE_LIMIT_WINDOW_SECONDS": 60,

	"AUTH_LOGIN_ATTEMPT_RETENTION_DAYS": 30,
	"AUTH_CLEANUP_BATCH_SIZE":           500,

	"RUN_MIGRATIONS_ON_STARTUP": false,
}

type OAuthClient struct {
	ID     string
	Secret string
}

type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Security struct {
	LoginMaxAttempts     int
	LoginLockDuration    time.Duration
	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration
}

type Maintenance struct {
	CronSecret            string
	LoginAttemptRetention time.Duration
	BatchSize             int
}

// Config is immutable after Load returns and is passed explicitly to the
// components that need it.
type Config struct {
	Environment   string
	Port          string
	LogLevel      string
	SentryDSN     string
	PublicBaseURL string

	Database Database

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	EncryptionKey   string
	OAuthClient     OAuthClient

	RedisURL            string
	OpaqueTokenCacheTTL time.Duration

	Security    Security
	Maintenance Maintenance

	RunMigrationsOnStartup bool
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

type Options struct {
	LoadDotEnv bool
}

func Load(options Options) (Config, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := Config{
		Environment:   strings.TrimSpace(v.GetString("APP_ENV")),
		Port:          strings.TrimSpace(v.GetString("PORT")),
		LogLevel:      strings.TrimSpace(v.GetString("LOG_LEVEL")),
		SentryDSN:     strings.TrimSpace(v.GetString("SENTRY_DSN")),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("PUBLIC_BASE_URL")), "/"),
		Database: Database{
			URL:             strings.TrimSpace(v.GetString("DATABASE_URL")),
			MaxOpenConns:    positiveInt(v, "DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    positiveInt(v, "DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(positiveInt(v, "DB_CONN_MAX_LIFETIME_MINUTES")) * time.Minute,
			ConnMaxIdleTime: time.Duration(positiveInt(v, "DB_CONN_MAX_IDLE_TIME_MINUTES")) * time.Minute,
		},
		JWTSecret:       strings.TrimSpace(v.GetString("JWT_SECRET")),
		AccessTokenTTL:  time.Duration(v.GetInt64("JWT_ACCESS_TOKEN_EXPIRY")) * time.Second,
		RefreshTokenTTL: time.Duration(v.GetInt64("JWT_REFRESH_TOKEN_EXPIRY")) * time.Second,
		EncryptionKey:   strings.TrimSpace(v.GetString("ENCRYPTION_KEY")),
		OAuthClient: OAuthClient{
			ID:     strings.TrimSpace(v.GetString("OAUTH_CLIENT_ID")),
			Secret: strings.TrimSpace(v.GetString("OAUTH_CLIENT_SECRET")),
		},
		RedisURL:            strings.TrimSpace(v.GetString("REDIS_URL")),
		OpaqueTokenCacheTTL: time.Duration(positiveInt(v, "OPAQUE_TOKEN_CACHE_TTL_SECONDS")) * time.Second,
		Security: Security{
			LoginMaxAttempts:     positiveInt(v, "LOGIN_MAX_ATTEMPTS"),
			LoginLockDuration:    time.Duration(positiveInt(v, "LOGIN_LOCK_MINUTES")) * time.Minute,
			LoginRateLimitMax:    positiveInt(v, "LOGIN_RATE_LIMIT_MAX"),
			LoginRateLimitWindow: time.Duration(positiveInt(v, "LOGIN_RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		},
		Maintenance: Maintenance{
			CronSecret:            strings.TrimSpace(v.GetString("CRON_SECRET")),
			LoginAttemptRetention: time.Duration(positiveInt(v, "AUTH_LOGIN_ATTEMPT_RETENTION_DAYS")) * 24 * time.Hour,
			BatchSize:             positiveInt(v, "AUTH_CLEANUP_BATCH_SIZE"),
		},
		RunMigrationsOnStartup: v.GetBool("RUN_MIGRATIONS_ON_STARTUP"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	for name, value := range map[string]string{
		"DATABASE_URL":        c.Database.URL,
		"JWT_SECRET":          c.JWTSecret,
		"ENCRYPTION_KEY":      c.EncryptionKey,
		"OAUTH_CLIENT_ID":     c.OAuthClient.ID,
		"OAUTH_CLIENT_SECRET": c.OAuthClient.Secret,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}

	if c.AccessTokenTTL <= 0 {
		return errors.New("JWT_ACCESS_TOKEN_EXPIRY must be positive")
	}
	if c.RefreshTokenTTL <= 0 {
		return errors.New("JWT_REFRESH_TOKEN_EXPIRY must be positive")
	}

	return nil
}

// positiveInt falls back to the registered default for unparsable or
// non-positive values.
func positiveInt(v *viper.Viper, key string) int {
	value := v.GetInt(key)
	if value <= 0 {
		if fallback, ok := defaults[key].(int); ok {
			return fallback
		}
	}
	return value
}
