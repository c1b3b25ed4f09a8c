// Package config builds runtime configuration from the environment so main
// stays lean. A local .env file is honored in development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures everything the server needs at startup.
type Config struct {
	Addr          string
	JWTSigningKey string

	// SignerCap is the maximum number of signed parties per document.
	SignerCap int

	OTP      OTPConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig

	// UploadLimitBytes bounds uploaded signature files.
	UploadLimitBytes int64

	// DocumentsDir is the root directory document content refs resolve
	// against. Empty disables downloads.
	DocumentsDir string
}

// OTPConfig controls the local identity verification challenge.
type OTPConfig struct {
	// DevCode, when set, pins every generated OTP to a fixed value for
	// development and demo environments. Empty means random codes.
	DevCode string

	// MaxAttempts of 0 disables the attempt limit.
	MaxAttempts int

	// ChallengeTTL of 0 disables challenge expiry.
	ChallengeTTL time.Duration

	// ResendPerMinute throttles OTP request/resend calls per client IP.
	// 0 disables.
	ResendPerMinute int
}

// PostgresConfig holds the document/token store connection settings.
// An empty DSN selects the in-memory stores.
type PostgresConfig struct {
	DSN string
}

// RedisConfig holds the OTP challenge store connection settings.
// An empty URL selects the in-memory challenge store.
type RedisConfig struct {
	URL string
}

// KafkaConfig holds the audit/notification sink settings.
// Empty brokers select the log-only notifier and in-memory audit store.
type KafkaConfig struct {
	Brokers           []string
	AuditTopic        string
	NotificationTopic string
}

// FromEnv builds a Config from environment variables, applying development
// defaults where unset.
func FromEnv() Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Addr:             envOr("PARAPH_ADDR", ":8080"),
		JWTSigningKey:    envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		SignerCap:        envIntOr("SIGNER_CAP", 3),
		UploadLimitBytes: int64(envIntOr("UPLOAD_LIMIT_BYTES", 5<<20)),
		DocumentsDir:     os.Getenv("DOCUMENTS_DIR"),
		OTP: OTPConfig{
			DevCode:         os.Getenv("OTP_DEV_CODE"),
			MaxAttempts:     envIntOr("OTP_MAX_ATTEMPTS", 0),
			ChallengeTTL:    envDurationOr("OTP_CHALLENGE_TTL", 0),
			ResendPerMinute: envIntOr("OTP_RESEND_PER_MINUTE", 0),
		},
		Postgres: PostgresConfig{DSN: os.Getenv("POSTGRES_DSN")},
		Redis:    RedisConfig{URL: os.Getenv("REDIS_URL")},
		Kafka: KafkaConfig{
			Brokers:           splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:        envOr("KAFKA_AUDIT_TOPIC", "paraph.audit"),
			NotificationTopic: envOr("KAFKA_NOTIFICATION_TOPIC", "paraph.notifications"),
		},
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
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

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
