package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// Provider connection.
	MomoBaseURL      string
	MomoSubKey       string
	MomoEnvironment  string
	MomoUserID       string
	MomoAPIKey       string
	MomoCallbackHost string

	// Payment policy.
	CurrencyCode     string
	CurrencyExponent int
	PollInterval     time.Duration
	PollMaxAttempts  int
	TokenMargin      time.Duration
	PaymentLockTTL   time.Duration
	IdempotencyTTL   time.Duration
	PaymentRateLimit string

	// Outbound HTTP resilience.
	ProviderTimeout  time.Duration
	RetryMaxAttempts int
	RetryBaseBackoff time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Observability.
	OTLPEndpoint    string
	TraceSampleRate float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		MomoBaseURL:      valueOrDefault(k.String("MOMO_BASE_URL"), "https://sandbox.momodeveloper.mtn.com"),
		MomoSubKey:       k.String("MOMO_SUB_KEY"),
		MomoEnvironment:  valueOrDefault(k.String("MOMO_ENV"), "sandbox"),
		MomoUserID:       k.String("MOMO_USER_ID"),
		MomoAPIKey:       k.String("MOMO_API_KEY"),
		MomoCallbackHost: k.String("MOMO_CALLBACK_HOST"),

		CurrencyCode:     valueOrDefault(k.String("CURRENCY_CODE"), "EUR"),
		CurrencyExponent: parseInt(k.String("CURRENCY_EXPONENT"), 2),
		PollInterval:     parseDuration(k.String("PAY_POLL_INTERVAL"), "5s"),
		PollMaxAttempts:  parseInt(k.String("PAY_POLL_MAX_ATTEMPTS"), 8),
		TokenMargin:      parseDuration(k.String("PAY_TOKEN_SAFETY_MARGIN"), "60s"),
		PaymentLockTTL:   parseDuration(k.String("PAY_LOCK_TTL"), "10m"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		PaymentRateLimit: valueOrDefault(k.String("PAY_RATE_LIMIT"), "30-M"),

		ProviderTimeout:  parseDuration(k.String("PROVIDER_TIMEOUT"), "10s"),
		RetryMaxAttempts: parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBaseBackoff: parseDuration(k.String("RETRY_BASE_BACKOFF"), "200ms"),
		BreakerThreshold: parseInt(k.String("BREAKER_THRESHOLD"), 5),
		BreakerCooldown:  parseDuration(k.String("BREAKER_COOLDOWN"), "30s"),

		OTLPEndpoint:    k.String("OTLP_ENDPOINT"),
		TraceSampleRate: parseFloat(k.String("TRACE_SAMPLE_RATE"), 0.1),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.MomoSubKey == "" {
		return nil, errors.New("MOMO_SUB_KEY is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
