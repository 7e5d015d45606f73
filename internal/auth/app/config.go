package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/service"
	"github.com/aussiebroadwan/studyhub/pkg/httpx"
	"github.com/aussiebroadwan/studyhub/pkg/jwtx"
	"github.com/spf13/viper"
)

type Config struct {
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	LogFile              string        // Optional: rotated log file, teed with stdout
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	AttemptRetention     time.Duration // Login attempt retention (default: 90 days)

	Issuer          string        // Issuer claim for tokens (default: studyhub)
	JWTSecret       string        // Required: HS256 signing secret
	AccessTokenTTL  time.Duration // default: 24h
	RefreshTokenTTL time.Duration // default: 30 days
	PepperFile      string        // Path to file containing pepper for password hashing (default: ./pepper)

	DatabaseDriver string // sqlite or postgres (default: sqlite)
	DatabaseURL    string // Postgres connection string
	DatabaseFile   string // SQLite file (default: ./studyhub.db)

	RedisURL string // Optional: shared rate limiter backend

	TrustedProxies string // Comma separated CIDRs allowed to set X-Forwarded-For (default: none)

	FrontendURL string // Base URL for unlock links
	TOTPIssuer  string // Name shown in authenticator apps (default: StudyHub)

	SMTPHost     string // Optional: without it emails are only logged
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	GoogleClientID string // Optional: enables Google sign-in
	FacebookAppID  string // Optional: enables Facebook sign-in
}

// LoadConfig reads the environment. Durations accept Go syntax ("90s",
// "1h") or a bare number of minutes.
func LoadConfig() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("PORT", 8080)
	v.SetDefault("SHUTDOWN_GRACE_PERIOD", "10s")
	v.SetDefault("HOUSEKEEPING_INTERVAL", "1h")
	v.SetDefault("LOGIN_ATTEMPT_RETENTION", service.DefaultLedgerRetention.String())
	v.SetDefault("AUTH_ISSUER", "studyhub")
	v.SetDefault("AUTH_ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL.String())
	v.SetDefault("AUTH_REFRESH_TOKEN_TTL", jwtx.RefreshTokenTTL.String())
	v.SetDefault("AUTH_PEPPER_FILE", "pepper")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("AUTH_DATABASE_FILE", "studyhub.db")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("TOTP_ISSUER", "StudyHub")
	v.SetDefault("SMTP_PORT", 587)

	return Config{
		Env:                  v.GetString("ENV"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogFormat:            v.GetString("LOG_FORMAT"),
		LogFile:              v.GetString("LOG_FILE"),
		Port:                 v.GetInt("PORT"),
		ShutdownGracePeriod:  duration(v, "SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: duration(v, "HOUSEKEEPING_INTERVAL", time.Hour),
		AttemptRetention:     duration(v, "LOGIN_ATTEMPT_RETENTION", service.DefaultLedgerRetention),

		Issuer:          v.GetString("AUTH_ISSUER"),
		JWTSecret:       v.GetString("AUTH_JWT_SECRET"),
		AccessTokenTTL:  duration(v, "AUTH_ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL: duration(v, "AUTH_REFRESH_TOKEN_TTL", jwtx.RefreshTokenTTL),
		PepperFile:      v.GetString("AUTH_PEPPER_FILE"),

		DatabaseDriver: strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		DatabaseFile:   v.GetString("AUTH_DATABASE_FILE"),

		RedisURL: v.GetString("REDIS_URL"),

		TrustedProxies: v.GetString("TRUSTED_PROXIES"),

		FrontendURL: strings.TrimSuffix(v.GetString("FRONTEND_URL"), "/"),
		TOTPIssuer:  v.GetString("TOTP_ISSUER"),

		SMTPHost:     v.GetString("SMTP_HOST"),
		SMTPPort:     v.GetInt("SMTP_PORT"),
		SMTPUsername: v.GetString("SMTP_USERNAME"),
		SMTPPassword: v.GetString("SMTP_PASSWORD"),
		SMTPFrom:     v.GetString("SMTP_FROM"),

		GoogleClientID: v.GetString("GOOGLE_CLIENT_ID"),
		FacebookAppID:  v.GetString("FACEBOOK_APP_ID"),
	}
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < jwtx.MinSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", jwtx.MinSecretLength))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.HousekeepingInterval <= 0 {
		errs = append(errs, errors.New("HOUSEKEEPING_INTERVAL must be positive"))
	}

	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_FILE is required for sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not sqlite or postgres", c.DatabaseDriver))
	}

	if _, err := httpx.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}

	if c.SMTPHost != "" && c.SMTPFrom == "" {
		errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
	}
	if c.FrontendURL == "" {
		errs = append(errs, errors.New("FRONTEND_URL is required"))
	}

	return errors.Join(errs...)
}

// DSN returns the connection string for the configured driver.
func (c Config) DSN() string {
	if c.DatabaseDriver == "postgres" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", c.DatabaseFile)
}

func duration(v *viper.Viper, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(raw); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return def
}
