package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 3, cfg.SignerCap)
	assert.Equal(t, int64(5<<20), cfg.UploadLimitBytes)
	assert.Zero(t, cfg.OTP.MaxAttempts)
	assert.Zero(t, cfg.OTP.ChallengeTTL)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PARAPH_ADDR", ":9999")
	t.Setenv("SIGNER_CAP", "5")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("OTP_CHALLENGE_TTL", "10m")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")

	cfg := FromEnv()

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 5, cfg.SignerCap)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.OTP.ChallengeTTL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
}

func TestFromEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("SIGNER_CAP", "many")
	t.Setenv("OTP_CHALLENGE_TTL", "soon")

	cfg := FromEnv()

	assert.Equal(t, 3, cfg.SignerCap)
	assert.Zero(t, cfg.OTP.ChallengeTTL)
}
