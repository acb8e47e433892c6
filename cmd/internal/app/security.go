package app

import (
	"errors"
	"net/http"
)

// ValidateSecurityConfig enforces the cookie and hashing policy at startup.
// It fails fast instead of running with weaker settings.
func ValidateSecurityConfig(cfg Config) error {
	if err := cfg.Session.Validate(); err != nil {
		return err
	}

	if cfg.RequireSecureCookies && !cfg.Session.CookieSecure {
		return errors.New("security policy: SESSIOND_REQUIRE_SECURE_COOKIES=true but SESSIOND_AUTH_COOKIE_SECURE is false")
	}

	if cfg.Session.CookieSameSite == http.SameSiteNoneMode && len(cfg.CORSAllowedOrigins) == 0 {
		return errors.New("security policy: SameSite=None cookies require SESSIOND_CORS_ALLOWED_ORIGINS")
	}

	for _, o := range cfg.CORSAllowedOrigins {
		if o == "*" && cfg.CORSAllowCredentials {
			return errors.New("security policy: wildcard CORS origin cannot be combined with credentials")
		}
	}

	h, err := cfg.Session.NewTokenHasher()
	if err != nil {
		return err
	}
	if !h.HMACEnabled() {
		return errors.New("security policy: token hasher is not in HMAC mode")
	}

	return nil
}
