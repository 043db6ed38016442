package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr string

	Redis RedisConfig

	// AuditPostgresDSN enables the durable audit sink when set.
	AuditPostgresDSN string
	// AuditKafkaBrokers enables the streaming audit sink when set.
	AuditKafkaBrokers []string
	AuditKafkaTopic   string
	// AuditBuffer sizes the async audit publisher channel.
	AuditBuffer int

	// AuthSigningKey enables service-token authentication on the decision
	// endpoint when set. Empty means the endpoint is open (local dev).
	AuthSigningKey string
	AuthIssuer     string
	AuthAudience   string

	// AdminToken enables the catalog management endpoints when set.
	AdminToken string
}

// RedisConfig captures connection settings for the optional Redis backends
// (decision cache, session oracle).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Evaluation policy parameters live in internal/authz/config.
func FromEnv() Server {
	cfg := Server{
		Addr:             envOr("OPSGATE_ADDR", ":8080"),
		AuditPostgresDSN: os.Getenv("OPSGATE_AUDIT_POSTGRES_DSN"),
		AuditKafkaTopic:  envOr("OPSGATE_AUDIT_KAFKA_TOPIC", "opsgate.authz.audit"),
		AuditBuffer:      envInt("OPSGATE_AUDIT_BUFFER", 1024),
		AuthSigningKey:   os.Getenv("OPSGATE_AUTH_SIGNING_KEY"),
		AuthIssuer:       envOr("OPSGATE_AUTH_ISSUER", "opsgate"),
		AuthAudience:     envOr("OPSGATE_AUTH_AUDIENCE", "opsgate-authz"),
		AdminToken:       os.Getenv("OPSGATE_ADMIN_TOKEN"),
		Redis: RedisConfig{
			URL:          os.Getenv("OPSGATE_REDIS_URL"),
			PoolSize:     envInt("OPSGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("OPSGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("OPSGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("OPSGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("OPSGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}

	if brokers := os.Getenv("OPSGATE_AUDIT_KAFKA_BROKERS"); brokers != "" {
		cfg.AuditKafkaBrokers = strings.Split(brokers, ",")
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
