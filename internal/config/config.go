package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/harborline/backend-tracking/internal/provider"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	DatabaseURL        string
	CORSAllowedOrigins []string

	CacheTTL time.Duration
	// EarlyExitReliability is the inclusive threshold: a full success from a
	// provider at or above it stops the sweep. Default 0.9, so the built-in
	// 0.9-reliability providers qualify.
	EarlyExitReliability float64
	OverallTimeout       time.Duration
	FailureWindow        time.Duration

	HTTPRate       string
	BodyLimitBytes int64

	SecurityHeaders bool
	EnableHSTS      bool

	LogFormat string
	LogLevel  string

	OTLPEndpoint string
	ServiceName  string

	QueuePrefix       string
	WorkerConcurrency int
	WorkerVisibility  time.Duration
	WorkerRetryBase   time.Duration
	WorkerMaxAttempts int

	Providers []provider.Spec
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
		RedisURL:           k.String("REDIS_URL"),
		DatabaseURL:        k.String("DATABASE_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CacheTTL:             parseDuration(k.String("TRACK_CACHE_TTL"), "15m"),
		EarlyExitReliability: parseFloat(k.String("TRACK_EARLY_EXIT_RELIABILITY"), 0.9),
		OverallTimeout:       parseDuration(k.String("TRACK_OVERALL_TIMEOUT"), "0"),
		FailureWindow:        parseDuration(k.String("TRACK_FAILURE_WINDOW"), "10m"),

		HTTPRate:       valueOrDefault(k.String("HTTP_RATE_LIMIT"), "120-M"),
		BodyLimitBytes: parseInt64(k.String("HTTP_BODY_LIMIT"), 1<<20),

		SecurityHeaders: parseBool(valueOrDefault(k.String("SECURITY_HEADERS"), "true")),
		EnableHSTS:      parseBool(k.String("SECURITY_HSTS")),

		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),

		OTLPEndpoint: k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:  valueOrDefault(k.String("OTEL_SERVICE_NAME"), "backend-tracking"),

		QueuePrefix:       valueOrDefault(k.String("QUEUE_PREFIX"), "tracking"),
		WorkerConcurrency: int(parseInt64(k.String("WORKER_CONCURRENCY"), 4)),
		WorkerVisibility:  parseDuration(k.String("WORKER_VISIBILITY_TIMEOUT"), "60s"),
		WorkerRetryBase:   parseDuration(k.String("WORKER_RETRY_BASE"), "1s"),
		WorkerMaxAttempts: int(parseInt64(k.String("WORKER_MAX_ATTEMPTS"), 5)),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.EarlyExitReliability < 0 || cfg.EarlyExitReliability > 1 {
		return nil, fmt.Errorf("TRACK_EARLY_EXIT_RELIABILITY must be within [0,1], got %v", cfg.EarlyExitReliability)
	}

	cfg.Providers = providerSpecs(k)

	return cfg, nil
}

// providerSpecs applies environment credentials and overrides to the builtin
// provider set. A provider without a credential stays in the list; the
// registry decides whether it enters the active set.
func providerSpecs(k *koanf.Koanf) []provider.Spec {
	specs := provider.Builtins()
	for i := range specs {
		prefix := strings.ToUpper(specs[i].Config.Name)
		specs[i].Config.APIKey = k.String(prefix + "_API_KEY")
		if v := strings.TrimSpace(k.String(prefix + "_BASE_URL")); v != "" {
			specs[i].Config.BaseURL = v
		}
		if v := k.String(prefix + "_REQUESTS_PER_MINUTE"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				specs[i].Config.RequestsPerMinute = n
			}
		}
		if v := k.String(prefix + "_REQUESTS_PER_HOUR"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				specs[i].Config.RequestsPerHour = n
			}
		}
		if v := k.String(prefix + "_RELIABILITY"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
				specs[i].Config.Reliability = f
			}
		}
		if v := k.String(prefix + "_TIMEOUT"); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				specs[i].Config.Timeout = d
			}
		}
	}
	return specs
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

func parseFloat(value string, fallback float64) float64 {
	base := strings.TrimSpace(value)
	if base == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(base, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseInt64(value string, fallback int64) int64 {
	base := strings.TrimSpace(value)
	if base == "" {
		return fallback
	}
	n, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
