package config

import (
	"os"
	"strconv"
	"time"
)

// AppConfig holds the application-level knobs that sit outside the viper
// database/redis/jwt blocks.
type AppConfig struct {
	// ReceiptDir is the directory receipts are written to.
	ReceiptDir string
	// ReceiptBaseURL is the public path prefix receipts are served under.
	ReceiptBaseURL string
	// MaxReceiptBytes bounds a single receipt upload.
	MaxReceiptBytes int64
	// ParticipantCacheTTL bounds staleness of cached participant counts.
	ParticipantCacheTTL time.Duration
	// PaymentLinkTTL is how long a generated share payment link stays
	// claimable.
	PaymentLinkTTL time.Duration
}

func Load() *AppConfig {
	return &AppConfig{
		ReceiptDir:          getEnv("RECEIPT_DIR", "./data/receipts"),
		ReceiptBaseURL:      getEnv("RECEIPT_BASE_URL", "/static/receipts"),
		MaxReceiptBytes:     getEnvAsInt64("MAX_RECEIPT_BYTES", 5<<20),
		ParticipantCacheTTL: getEnvAsDuration("PARTICIPANT_CACHE_TTL", 5*time.Minute),
		PaymentLinkTTL:      getEnvAsDuration("PAYMENT_LINK_TTL", 5*time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
