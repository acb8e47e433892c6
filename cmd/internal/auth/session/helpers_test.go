package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"sessiond/cmd/security/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Secret = testSecret
	return cfg
}

func testHasher() token.Hasher { return token.NewHasher(testSecret) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeCookies is an in-memory CookieTransport that records writes.
type fakeCookies struct {
	cfg    Config
	values map[string]string

	sets            int
	deletes         int
	lastToken       string
	lastMaxAge      time.Duration
	lastDontRemember bool
}

func newFakeCookies(cfg Config) *fakeCookies {
	return &fakeCookies{cfg: cfg, values: make(map[string]string)}
}

func (c *fakeCookies) withToken(tok string) *fakeCookies {
	c.values[c.cfg.SessionCookieName()] = tok
	return c
}

func (c *fakeCookies) withDontRemember() *fakeCookies {
	c.values[c.cfg.DontRememberCookieName()] = dontRememberValue
	return c
}

func (c *fakeCookies) SessionCookieName() string      { return c.cfg.SessionCookieName() }
func (c *fakeCookies) DontRememberCookieName() string { return c.cfg.DontRememberCookieName() }

func (c *fakeCookies) ReadSignedCookie(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok && v != ""
}

func (c *fakeCookies) SetSessionCookie(tok string, dontRemember bool, maxAge time.Duration) error {
	c.sets++
	c.lastToken, c.lastDontRemember, c.lastMaxAge = tok, dontRemember, maxAge
	c.values[c.cfg.SessionCookieName()] = tok
	if dontRemember {
		c.values[c.cfg.DontRememberCookieName()] = dontRememberValue
	}
	return nil
}

func (c *fakeCookies) DeleteSessionCookie() {
	c.deletes++
	delete(c.values, c.cfg.SessionCookieName())
	delete(c.values, c.cfg.DontRememberCookieName())
}

type recordingSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *recordingSink) Report(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs)
}

// seedSession stores a user (if needed) and a session row, returning the raw token.
func seedSession(t *testing.T, w Writer, userID string, createdAt, expiresAt time.Time) (string, Session) {
	t.Helper()

	ctx := context.Background()
	if err := w.PutUser(ctx, User{ID: userID, Name: "user " + userID, CreatedAt: createdAt}); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	tok := "tok-" + newSessionID()
	row, err := w.Create(ctx, CreateInput{
		UserID:    userID,
		Token:     tok,
		ExpiresAt: expiresAt,
		Now:       createdAt,
		UserAgent: "sessiond-test/1.0",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tok, row
}
