package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment-driven setting the service consumes.
// The auth core reads the signing secret, token TTLs, encryption keys and
// Naver credentials; everything else wires the surrounding HTTP service.
type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	DatabaseURL           string `env:"DATABASE_URL,required"`
	DBMaxOpenConns        int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns        int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetimeMins int    `env:"DB_CONN_MAX_LIFETIME_MINUTES" envDefault:"30"`
	DBConnMaxIdleTimeMins int    `env:"DB_CONN_MAX_IDLE_TIME_MINUTES" envDefault:"10"`

	JWTSecret              string `env:"JWT_SECRET,required"`
	AccessTokenTTLMinutes  int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"15"`
	RefreshTokenExpireDays int    `env:"REFRESH_TOKEN_EXPIRES_DAYS" envDefault:"30"`

	// Hex-encoded 32-byte keys. An empty active key disables token
	// encryption; the previous key only serves the decrypt fallback.
	EncryptionKey         string `env:"ENCRYPTION_KEY"`
	EncryptionKeyPrevious string `env:"ENCRYPTION_KEY_PREVIOUS"`

	NaverClientID     string `env:"NAVER_CLIENT_ID"`
	NaverClientSecret string `env:"NAVER_CLIENT_SECRET"`
	NaverCallbackURL  string `env:"NAVER_CALLBACK_URL"`
	AppCallbackURL    string `env:"APP_CALLBACK_URL" envDefault:"contractsecretary://auth/callback"`

	SentryDSN string `env:"SENTRY_DSN"`

	CronSecret                 string `env:"CRON_SECRET"`
	RefreshTokenRetentionDays  int    `env:"AUTH_REFRESH_TOKEN_RETENTION_DAYS" envDefault:"14"`
	AuthorizationCodeRetention int    `env:"AUTH_CODE_RETENTION_HOURS" envDefault:"24"`
	CleanupBatchSize           int    `env:"AUTH_CLEANUP_BATCH_SIZE" envDefault:"500"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}

func (c Config) RefreshTokenRetention() time.Duration {
	return time.Duration(c.RefreshTokenRetentionDays) * 24 * time.Hour
}

func (c Config) AuthorizationCodeRetentionTTL() time.Duration {
	return time.Duration(c.AuthorizationCodeRetention) * time.Hour
}

func (c Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeMins) * time.Minute
}

func (c Config) DBConnMaxIdleTime() time.Duration {
	return time.Duration(c.DBConnMaxIdleTimeMins) * time.Minute
}
