package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures all process configuration. It is built once in main and
// passed down immutably; nothing reads the environment after startup.
type Config struct {
	Addr     string
	LogLevel string

	// Captcha provider settings.
	Provider       string // "recaptchav3" or "turnstile"
	SiteKey        string
	SecretKey      string
	VerifyURL      string // empty means the provider default
	DefaultScore   float64
	TrustedProxies []string
	VerifyTimeout  time.Duration

	// Inbound check endpoint.
	CheckEnabled bool

	// Stats logging (off unless explicitly enabled).
	StatsEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// Storage.
	PostgresDSN string
	RedisURL    string

	// Session stash retention.
	SessionTTL time.Duration

	// Shared token guarding the admin rules API. Empty disables the API.
	AdminToken string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:           envOr("TOKENGATE_ADDR", ":8080"),
		LogLevel:       envOr("TOKENGATE_LOG_LEVEL", "info"),
		Provider:       envOr("TOKENGATE_PROVIDER", "recaptchav3"),
		SiteKey:        os.Getenv("TOKENGATE_SITE_KEY"),
		SecretKey:      os.Getenv("TOKENGATE_SECRET_KEY"),
		VerifyURL:      os.Getenv("TOKENGATE_VERIFY_URL"),
		DefaultScore:   envFloat("TOKENGATE_DEFAULT_SCORE", 0.5),
		TrustedProxies: envList("TOKENGATE_TRUSTED_PROXIES"),
		VerifyTimeout:  envDuration("TOKENGATE_VERIFY_TIMEOUT", 5*time.Second),
		CheckEnabled:   os.Getenv("TOKENGATE_CHECK_ENABLED") == "true",
		StatsEnabled:   os.Getenv("TOKENGATE_STATS_ENABLED") == "true",
		KafkaBrokers:   envList("TOKENGATE_KAFKA_BROKERS"),
		KafkaTopic:     envOr("TOKENGATE_KAFKA_TOPIC", "tokengate.stats"),
		PostgresDSN:    os.Getenv("TOKENGATE_POSTGRES_DSN"),
		RedisURL:       os.Getenv("TOKENGATE_REDIS_URL"),
		SessionTTL:     envDuration("TOKENGATE_SESSION_TTL", 30*time.Minute),
		AdminToken:     os.Getenv("TOKENGATE_ADMIN_TOKEN"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
