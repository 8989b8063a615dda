package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName          = "K33P"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultScriptAddress    = "addr_test1wzk33pidentity0scriptaddress000000000000000000000"
	defaultDepositAmount    = 2_000_000
	defaultMaxAttempts      = 3
	defaultMinConfirmations = 1
	defaultPhoneWindow      = 15 * time.Minute
	defaultPhoneAttempts    = 3
	defaultRecoveryWindow   = time.Hour
	defaultRecoveryAttempts = 5
	defaultTokenTTL         = 15 * time.Minute
	defaultAuditTopic       = "k33p.audit.events"

	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
)

// Config captures application runtime configuration loaded from environment
// variables. Amounts are lovelace (minor units); windows are durations.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	CommitmentKey string
	ScriptAddress string

	DepositAmount           int64
	DepositMaxAttempts      int
	DepositMinConfirmations int

	PhoneChangeWindow      time.Duration
	PhoneChangeMaxAttempts int
	RecoveryWindow         time.Duration
	RecoveryMaxAttempts    int

	JWTSecret      string
	AccessTokenTTL time.Duration

	KafkaBrokers []string
	AuditTopic   string
}

// Load reads configuration values from the environment and populates a
// Config instance. Outside development every secret and connection string
// must be set explicitly.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		CommitmentKey:  os.Getenv("COMMITMENT_KEY"),
		ScriptAddress:  getEnv("SCRIPT_ADDRESS", defaultScriptAddress),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AuditTopic:     getEnv("AUDIT_TOPIC", defaultAuditTopic),
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	var err error
	if cfg.DepositAmount, err = getEnvInt64("DEPOSIT_AMOUNT", defaultDepositAmount); err != nil {
		return Config{}, err
	}
	if cfg.DepositMaxAttempts, err = getEnvInt("DEPOSIT_MAX_ATTEMPTS", defaultMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.DepositMinConfirmations, err = getEnvInt("DEPOSIT_MIN_CONFIRMATIONS", defaultMinConfirmations); err != nil {
		return Config{}, err
	}
	if cfg.PhoneChangeWindow, err = getEnvDuration("PHONE_CHANGE_WINDOW", defaultPhoneWindow); err != nil {
		return Config{}, err
	}
	if cfg.PhoneChangeMaxAttempts, err = getEnvInt("PHONE_CHANGE_MAX_ATTEMPTS", defaultPhoneAttempts); err != nil {
		return Config{}, err
	}
	if cfg.RecoveryWindow, err = getEnvDuration("RECOVERY_WINDOW", defaultRecoveryWindow); err != nil {
		return Config{}, err
	}
	if cfg.RecoveryMaxAttempts, err = getEnvInt("RECOVERY_MAX_ATTEMPTS", defaultRecoveryAttempts); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = getEnvDuration("ACCESS_TOKEN_TTL", defaultTokenTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, broker := range strings.Split(v, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}

	if cfg.DepositAmount <= 0 {
		return Config{}, fmt.Errorf("DEPOSIT_AMOUNT must be positive")
	}
	if cfg.DepositMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("DEPOSIT_MAX_ATTEMPTS must be positive")
	}

	if cfg.IsDev() {
		if cfg.CommitmentKey == "" {
			cfg.CommitmentKey = "dev-commitment-key"
		}
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "dev-jwt-secret"
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.CommitmentKey == "" {
		return Config{}, fmt.Errorf("COMMITMENT_KEY must be set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment, where
// in-memory fallbacks for Postgres and Redis are permitted.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getEnvDuration accepts either a Go duration string ("15m") or a bare
// integer interpreted as seconds.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
