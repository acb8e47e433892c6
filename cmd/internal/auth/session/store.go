package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var errInvalidCreate = errors.New("invalid create input")

// Session mirrors a stored session row.
type Session struct {
	ID     string
	UserID string

	// TokenHash is the stored digest of the opaque cookie token. Never serialised.
	TokenHash string `json:"-"`

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	IPAddress string
	UserAgent string
}

// Live reports whether the session is unexpired at now.
func (s Session) Live(now time.Time) bool { return s.ExpiresAt.After(now) }

// User is the owner of a session. The lifecycle only relies on ID.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// View pairs a session with its owner.
type View struct {
	Session Session
	User    User
}

// UpdateResult is the outcome of a conditional expiry update.
// Gone is set when the row no longer existed at update time.
type UpdateResult struct {
	Session Session
	Gone    bool
}

// CreateInput describes a session row to insert. Token is the raw opaque
// token; stores persist only its hash.
type CreateInput struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
	Now       time.Time
	IPAddress string
	UserAgent string
}

// Store abstracts persistence for session state.
//
// Implementations must make UpdateExpiry conditional on the row still
// existing and report a concurrent delete as UpdateResult{Gone: true}.
// Lookups that match nothing return ErrSessionNotFound.
type Store interface {
	// FindByToken loads the session and owner matching a raw cookie token.
	FindByToken(ctx context.Context, rawToken string) (View, error)

	// GetByID loads a session row by ID.
	GetByID(ctx context.Context, sessionID string) (Session, error)

	// UpdateExpiry sets expires_at and updated_at if the row still exists.
	UpdateExpiry(ctx context.Context, sessionID string, expiresAt, now time.Time) (UpdateResult, error)

	// DeleteByID removes a session. Deleting a missing row is not an error.
	DeleteByID(ctx context.Context, sessionID string) error

	// DeleteAllForUser removes every session of a user.
	DeleteAllForUser(ctx context.Context, userID string) error

	// ListForUser returns every stored session of a user, expired ones included.
	ListForUser(ctx context.Context, userID string) ([]View, error)
}

// Writer is implemented by stores that can also insert rows.
// It backs the issue hand-off, dev mode and tests.
type Writer interface {
	PutUser(ctx context.Context, u User) error
	Create(ctx context.Context, in CreateInput) (Session, error)
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" || in.Token == "" || in.ExpiresAt.IsZero() {
		return errInvalidCreate
	}
	return nil
}

func newSessionID() string { return ulid.Make().String() }

func nowOr(now time.Time) time.Time {
	if now.IsZero() {
		return time.Now().UTC()
	}
	return now
}

// sortViews orders views by creation time, then ID.
func sortViews(vs []View) {
	sort.Slice(vs, func(i, j int) bool {
		a, b := vs[i].Session, vs[j].Session
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
