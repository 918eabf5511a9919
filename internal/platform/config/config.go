package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. Optional backends left empty
// fall back to in-memory implementations so a bare `go run ./cmd/server`
// works without infrastructure.
type Server struct {
	Addr          string
	AdminIdentity string
	JWTSigningKey string

	PostgresURL string
	RedisURL    string

	KafkaBrokers []string
	KafkaTopic   string

	MarketFeedURL     string
	MarketFeedTimeout time.Duration
	MarketCacheTTL    time.Duration
}

// FromEnv builds a Server config from environment variables so main stays
// lean.
func FromEnv() Server {
	addr := os.Getenv("FOODTRACE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	admin := os.Getenv("FOODTRACE_ADMIN_IDENTITY")
	if admin == "" {
		admin = "admin"
	}

	jwtSigningKey := os.Getenv("FOODTRACE_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("FOODTRACE_KAFKA_TOPIC")
	if topic == "" {
		topic = "foodtrace.notifications"
	}

	var brokers []string
	if raw := os.Getenv("FOODTRACE_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:              addr,
		AdminIdentity:     admin,
		JWTSigningKey:     jwtSigningKey,
		PostgresURL:       os.Getenv("FOODTRACE_POSTGRES_URL"),
		RedisURL:          os.Getenv("FOODTRACE_REDIS_URL"),
		KafkaBrokers:      brokers,
		KafkaTopic:        topic,
		MarketFeedURL:     os.Getenv("FOODTRACE_MARKET_FEED_URL"),
		MarketFeedTimeout: durationEnv("FOODTRACE_MARKET_FEED_TIMEOUT", 3*time.Second),
		MarketCacheTTL:    durationEnv("FOODTRACE_MARKET_CACHE_TTL", time.Minute),
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
