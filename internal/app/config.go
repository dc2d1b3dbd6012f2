package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ledger-serverless/internal/db"
	"ledger-serverless/internal/identity"
	"ledger-serverless/internal/lockout"
)

const (
	LockoutBackendMemory   = "memory"
	LockoutBackendRedis    = "redis"
	LockoutBackendPostgres = "postgres"
)

type Config struct {
	Env        string
	Release    string
	LogLevel   string
	SentryDSN  string
	CronSecret string
	Port       string

	DatabaseURL string
	Pool        db.PoolConfig

	Identity          identity.Config
	IdentityProjectID string
	IdentityCertsURL  string

	Lockout LockoutConfig

	LoginRateLimit  int
	LoginRateWindow time.Duration
}

type LockoutConfig struct {
	Backend       string
	Policy        lockout.Policy
	IdleTTL       time.Duration
	JanitorEvery  time.Duration
	RedisURL      string
	RedisPrefix   string
	SweepBatchMax int
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	apiKey, err := mustEnv("IDENTITY_API_KEY")
	if err != nil {
		return Config{}, err
	}
	projectID, err := mustEnv("IDENTITY_PROJECT_ID")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Env:        envOrDefault("APP_ENV", "development"),
		Release:    os.Getenv("APP_RELEASE"),
		LogLevel:   envOrDefault("LOG_LEVEL", "info"),
		SentryDSN:  strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		CronSecret: strings.TrimSpace(os.Getenv("CRON_SECRET")),
		Port:       envOrDefault("PORT", "8080"),

		DatabaseURL: databaseURL,
		Pool: db.PoolConfig{
			MaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
			ConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		},

		Identity: identity.Config{
			APIKey:  apiKey,
			BaseURL: envOrDefault("IDENTITY_BASE_URL", identity.DefaultBaseURL),
			Timeout: envSecondsOrDefault("IDENTITY_TIMEOUT_SECONDS", 10),
			MaxRPS:  envFloatOrDefault("IDENTITY_MAX_RPS", 0),
		},
		IdentityProjectID: projectID,
		IdentityCertsURL:  envOrDefault("IDENTITY_CERTS_URL", identity.DefaultCertsURL),

		Lockout: LockoutConfig{
			Backend: strings.ToLower(envOrDefault("LOCKOUT_BACKEND", LockoutBackendMemory)),
			Policy: lockout.Policy{
				Threshold: envIntOrDefault("LOCKOUT_THRESHOLD", lockout.DefaultThreshold),
				Duration:  envSecondsOrDefault("LOCKOUT_DURATION_SECONDS", int(lockout.DefaultDuration/time.Second)),
			},
			IdleTTL:       envMinutesOrDefault("LOCKOUT_ENTRY_TTL_MINUTES", int(lockout.DefaultIdleTTL/time.Minute)),
			JanitorEvery:  envSecondsOrDefault("LOCKOUT_JANITOR_SECONDS", 60),
			RedisURL:      strings.TrimSpace(os.Getenv("REDIS_URL")),
			RedisPrefix:   envOrDefault("LOCKOUT_REDIS_PREFIX", "lockout"),
			SweepBatchMax: envIntOrDefault("LOCKOUT_CLEANUP_BATCH_SIZE", 500),
		},

		LoginRateLimit:  envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 5),
		LoginRateWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	}

	switch cfg.Lockout.Backend {
	case LockoutBackendMemory, LockoutBackendPostgres:
	case LockoutBackendRedis:
		if cfg.Lockout.RedisURL == "" {
			return Config{}, fmt.Errorf("missing required env: REDIS_URL (LOCKOUT_BACKEND=redis)")
		}
	default:
		return Config{}, fmt.Errorf("unsupported LOCKOUT_BACKEND %q", cfg.Lockout.Backend)
	}

	return cfg, nil
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envFloatOrDefault(name string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
