package api

import (
	"os"
	"strconv"
	"strings"
)

// Config controls session API behavior.
type Config struct {
	// TrustProxy makes client addresses come from X-Forwarded-For / X-Real-IP.
	TrustProxy bool

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64

	// AuditEnabled logs revocations as auth.audit events.
	AuditEnabled bool
}

// DefaultConfig returns the defaults used when no environment overrides are set.
func DefaultConfig() Config {
	return Config{
		TrustProxy:   false,
		MaxBodyBytes: 64 << 10,
		AuditEnabled: true,
	}
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		TrustProxy:   envBool("SESSIOND_TRUST_PROXY", def.TrustProxy),
		MaxBodyBytes: envInt64("SESSIOND_API_MAX_BODY_BYTES", def.MaxBodyBytes),
		AuditEnabled: envBool("SESSIOND_AUDIT_ENABLED", def.AuditEnabled),
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
