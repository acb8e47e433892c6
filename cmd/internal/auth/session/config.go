package session

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"sessiond/cmd/security/token"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls the session lifetime, the refresh throttle, cookie naming and
// attributes, the cookie sealing codec and the opaque token size.
type Config struct {
	// Secret is the root key material. Cookie and token-hash keys are derived from it.
	Secret []byte

	// MaxAge is the full lifetime granted on issue and on every refresh.
	MaxAge time.Duration

	// UpdateAge is the trailing window of MaxAge in which a request extends the session.
	// Values >= MaxAge refresh on every request.
	UpdateAge time.Duration

	// TokenBytes is the entropy of opaque session tokens.
	TokenBytes int

	CookiePrefix   string
	CookieDomain   string
	CookiePath     string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// CookieCodec selects how cookie values are sealed: token.CodecHMAC or token.CodecPaseto.
	CookieCodec string
}

// DefaultConfig returns defaults suitable for development. Secret is left empty.
func DefaultConfig() Config {
	return Config{
		MaxAge:         7 * 24 * time.Hour,
		UpdateAge:      24 * time.Hour,
		TokenBytes:     32,
		CookiePrefix:   "sessiond",
		CookiePath:     "/",
		CookieSecure:   false,
		CookieSameSite: http.SameSiteLaxMode,
		CookieCodec:    token.CodecHMAC,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - SESSIOND_AUTH_SECRET (at least 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - SESSIOND_AUTH_MAX_AGE
//   - SESSIOND_AUTH_UPDATE_AGE
//   - SESSIOND_AUTH_TOKEN_BYTES
//   - SESSIOND_AUTH_COOKIE_PREFIX
//   - SESSIOND_AUTH_COOKIE_DOMAIN
//   - SESSIOND_AUTH_COOKIE_PATH
//   - SESSIOND_AUTH_COOKIE_SECURE
//   - SESSIOND_AUTH_COOKIE_SAMESITE (lax|strict|none)
//   - SESSIOND_AUTH_COOKIE_CODEC (hmac|paseto)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.Secret = []byte(os.Getenv("SESSIOND_AUTH_SECRET"))

	if v := os.Getenv("SESSIOND_AUTH_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.MaxAge = d
	}

	if v := os.Getenv("SESSIOND_AUTH_UPDATE_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.UpdateAge = d
	}

	if v := os.Getenv("SESSIOND_AUTH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.TokenBytes = n
	}

	if v := strings.TrimSpace(os.Getenv("SESSIOND_AUTH_COOKIE_PREFIX")); v != "" {
		cfg.CookiePrefix = v
	}
	cfg.CookieDomain = strings.TrimSpace(os.Getenv("SESSIOND_AUTH_COOKIE_DOMAIN"))
	if v := strings.TrimSpace(os.Getenv("SESSIOND_AUTH_COOKIE_PATH")); v != "" {
		cfg.CookiePath = v
	}

	if v := os.Getenv("SESSIOND_AUTH_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.CookieSecure = b
	}

	if v := os.Getenv("SESSIOND_AUTH_COOKIE_SAMESITE"); v != "" {
		ss, ok := parseSameSite(v)
		if !ok {
			return Config{}, ErrConfig
		}
		cfg.CookieSameSite = ss
	}

	if v := strings.TrimSpace(os.Getenv("SESSIOND_AUTH_COOKIE_CODEC")); v != "" {
		cfg.CookieCodec = strings.ToLower(v)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the lifecycle relies on.
// An UpdateAge of zero is valid and extends the session on every request.
func (c Config) Validate() error {
	if len(c.Secret) < token.MinKeyBytes {
		return ErrConfig
	}
	if c.MaxAge <= 0 || c.UpdateAge < 0 {
		return ErrConfig
	}
	if c.TokenBytes < 32 || c.TokenBytes > 64 {
		return ErrConfig
	}
	if strings.TrimSpace(c.CookiePrefix) == "" || strings.ContainsAny(c.CookiePrefix, " ;,=") {
		return ErrConfig
	}
	if c.CookieSameSite == http.SameSiteNoneMode && !c.CookieSecure {
		return ErrConfig
	}
	switch c.CookieCodec {
	case "", token.CodecHMAC, token.CodecPaseto:
	default:
		return ErrConfig
	}
	return nil
}

// SessionCookieName is the name of the cookie carrying the sealed session token.
func (c Config) SessionCookieName() string {
	return c.cookieName("session_token")
}

// DontRememberCookieName is the name of the "don't remember me" marker cookie.
func (c Config) DontRememberCookieName() string {
	return c.cookieName("dont_remember")
}

func (c Config) cookieName(suffix string) string {
	name := c.CookiePrefix + "." + suffix
	if c.CookieSecure {
		return "__Secure-" + name
	}
	return name
}

// NewCodec derives the cookie key from Secret and builds the configured codec.
func (c Config) NewCodec() (token.Codec, error) {
	key, err := token.DeriveKey(c.Secret, token.PurposeCookie, 32)
	if err != nil {
		return nil, err
	}
	return token.NewCodec(c.CookieCodec, key)
}

// NewTokenHasher derives the token-hash key from Secret.
func (c Config) NewTokenHasher() (token.Hasher, error) {
	key, err := token.DeriveKey(c.Secret, token.PurposeTokenHash, 32)
	if err != nil {
		return token.Hasher{}, err
	}
	return token.NewHasher(key), nil
}

func parseSameSite(v string) (http.SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return 0, false
	}
}
