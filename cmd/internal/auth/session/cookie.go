package session

import (
	"net/http"
	"strings"
	"time"

	"sessiond/cmd/security/token"
)

// CookieTransport reads and writes the session cookies of one request.
// Read values are already verified and unsealed.
type CookieTransport interface {
	ReadSignedCookie(name string) (string, bool)
	SetSessionCookie(rawToken string, dontRemember bool, maxAge time.Duration) error
	DeleteSessionCookie()
	SessionCookieName() string
	DontRememberCookieName() string
}

const dontRememberValue = "true"

// CookieJar holds cookie attributes and the sealing codec shared by all requests.
type CookieJar struct {
	cfg   Config
	codec token.Codec
}

// NewCookieJar builds a CookieJar from cfg, deriving the codec key from cfg.Secret.
func NewCookieJar(cfg Config) (*CookieJar, error) {
	codec, err := cfg.NewCodec()
	if err != nil {
		return nil, err
	}
	return &CookieJar{cfg: cfg, codec: codec}, nil
}

// NewCookieJarWithCodec builds a CookieJar with an explicit codec.
func NewCookieJarWithCodec(cfg Config, codec token.Codec) *CookieJar {
	return &CookieJar{cfg: cfg, codec: codec}
}

// Bind returns a CookieTransport for one request/response pair.
func (j *CookieJar) Bind(w http.ResponseWriter, r *http.Request) *HTTPCookies {
	return &HTTPCookies{jar: j, w: w, r: r}
}

// HTTPCookies is the net/http CookieTransport.
type HTTPCookies struct {
	jar *CookieJar
	w   http.ResponseWriter
	r   *http.Request
}

func (c *HTTPCookies) SessionCookieName() string      { return c.jar.cfg.SessionCookieName() }
func (c *HTTPCookies) DontRememberCookieName() string { return c.jar.cfg.DontRememberCookieName() }

// RawCookie returns the sealed value of name as sent by the client.
func (c *HTTPCookies) RawCookie(name string) string {
	if c.r == nil {
		return ""
	}
	ck, err := c.r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(ck.Value)
}

// ReadSignedCookie returns the unsealed value of name. Missing, empty or
// tampered cookies read as absent.
func (c *HTTPCookies) ReadSignedCookie(name string) (string, bool) {
	sealed := c.RawCookie(name)
	if sealed == "" {
		return "", false
	}
	v, err := c.jar.codec.Open(name, sealed)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

// SetSessionCookie writes the sealed session token. With dontRemember the
// cookie is a browser-session cookie and the marker cookie is set alongside;
// otherwise the cookie lives for maxAge and a stale marker is cleared.
func (c *HTTPCookies) SetSessionCookie(rawToken string, dontRemember bool, maxAge time.Duration) error {
	name := c.SessionCookieName()
	sealed, err := c.jar.codec.Seal(name, rawToken)
	if err != nil {
		return err
	}

	ck := c.cookie(name, sealed)
	if !dontRemember {
		ck.MaxAge = maxAgeSeconds(maxAge)
		if ck.MaxAge <= 0 {
			ck.MaxAge = -1
		}
	}
	http.SetCookie(c.w, ck)

	marker := c.DontRememberCookieName()
	if dontRemember {
		sealedMarker, err := c.jar.codec.Seal(marker, dontRememberValue)
		if err != nil {
			return err
		}
		http.SetCookie(c.w, c.cookie(marker, sealedMarker))
		return nil
	}
	if c.RawCookie(marker) != "" {
		c.expire(marker)
	}
	return nil
}

// DeleteSessionCookie expires the session cookie and the marker cookie.
func (c *HTTPCookies) DeleteSessionCookie() {
	c.expire(c.SessionCookieName())
	c.expire(c.DontRememberCookieName())
}

func (c *HTTPCookies) cookie(name, value string) *http.Cookie {
	cfg := c.jar.cfg
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: cfg.CookieSameSite,
	}
}

func (c *HTTPCookies) expire(name string) {
	ck := c.cookie(name, "")
	ck.Expires = time.Unix(0, 0).UTC()
	ck.MaxAge = -1
	http.SetCookie(c.w, ck)
}
