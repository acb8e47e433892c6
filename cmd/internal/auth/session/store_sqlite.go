package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sessiond/cmd/security/token"
)

// Timestamps are stored as unix milliseconds.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id);
`

const sqliteSessionColumns = `id, user_id, token_hash, expires_at, created_at, updated_at, ip_address, user_agent`

// SQLiteStore implements Store on an embedded SQLite database (modernc.org/sqlite).
type SQLiteStore struct {
	db     *sql.DB
	hasher token.Hasher
}

// NewSQLiteStore creates the schema if needed and returns the store.
// The caller owns db.
func NewSQLiteStore(ctx context.Context, db *sql.DB, hasher token.Hasher) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, hasher: hasher}, nil
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PutUser inserts or updates a user row.
func (s *SQLiteStore) PutUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email`,
		u.ID, u.Name, u.Email, nowOr(u.CreatedAt).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}

// Create inserts a new session row.
func (s *SQLiteStore) Create(ctx context.Context, in CreateInput) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	now := nowOr(in.Now).Truncate(time.Millisecond)

	row := Session{
		ID:        newSessionID(),
		UserID:    in.UserID,
		TokenHash: s.hasher.HashHex(in.Token),
		ExpiresAt: in.ExpiresAt.Truncate(time.Millisecond),
		CreatedAt: now,
		UpdatedAt: now,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sqliteSessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, row.TokenHash,
		row.ExpiresAt.UnixMilli(), now.UnixMilli(), now.UnixMilli(),
		row.IPAddress, row.UserAgent,
	)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return row, nil
}

// FindByToken loads the session and owner matching rawToken.
func (s *SQLiteStore) FindByToken(ctx context.Context, rawToken string) (View, error) {
	var (
		v                         View
		expires, created, updated int64
		userCreated               int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			s.id, s.user_id, s.token_hash, s.expires_at, s.created_at, s.updated_at, s.ip_address, s.user_agent,
			u.id, u.name, u.email, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = ?`,
		s.hasher.HashHex(rawToken),
	).Scan(
		&v.Session.ID, &v.Session.UserID, &v.Session.TokenHash,
		&expires, &created, &updated,
		&v.Session.IPAddress, &v.Session.UserAgent,
		&v.User.ID, &v.User.Name, &v.User.Email, &userCreated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return View{}, ErrSessionNotFound
	}
	if err != nil {
		return View{}, fmt.Errorf("failed to find session by token: %w", err)
	}

	setMillis(&v.Session, expires, created, updated)
	v.User.CreatedAt = time.UnixMilli(userCreated).UTC()
	return v, nil
}

// GetByID loads a session row by ID.
func (s *SQLiteStore) GetByID(ctx context.Context, sessionID string) (Session, error) {
	row, err := scanSQLiteSession(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSessionColumns+` FROM sessions WHERE id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return row, nil
}

// UpdateExpiry extends a session if it still exists.
func (s *SQLiteStore) UpdateExpiry(ctx context.Context, sessionID string, expiresAt, now time.Time) (UpdateResult, error) {
	row, err := scanSQLiteSession(s.db.QueryRowContext(ctx, `
		UPDATE sessions SET expires_at = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+sqliteSessionColumns,
		expiresAt.UnixMilli(), nowOr(now).UnixMilli(), sessionID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return UpdateResult{Gone: true}, nil
	}
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to update session expiry: %w", err)
	}
	return UpdateResult{Session: row}, nil
}

// DeleteByID removes a session (idempotent).
func (s *SQLiteStore) DeleteByID(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every session of userID.
func (s *SQLiteStore) DeleteAllForUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// ListForUser returns every stored session of userID in creation order.
func (s *SQLiteStore) ListForUser(ctx context.Context, userID string) ([]View, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			s.id, s.user_id, s.token_hash, s.expires_at, s.created_at, s.updated_at, s.ip_address, s.user_agent,
			u.id, u.name, u.email, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.user_id = ?
		ORDER BY s.created_at ASC, s.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]View, 0, 4)
	for rows.Next() {
		var (
			v                         View
			expires, created, updated int64
			userCreated               int64
		)
		if err := rows.Scan(
			&v.Session.ID, &v.Session.UserID, &v.Session.TokenHash,
			&expires, &created, &updated,
			&v.Session.IPAddress, &v.Session.UserAgent,
			&v.User.ID, &v.User.Name, &v.User.Email, &userCreated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		setMillis(&v.Session, expires, created, updated)
		v.User.CreatedAt = time.UnixMilli(userCreated).UTC()
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

func scanSQLiteSession(row *sql.Row) (Session, error) {
	var (
		s                         Session
		expires, created, updated int64
	)
	if err := row.Scan(
		&s.ID, &s.UserID, &s.TokenHash,
		&expires, &created, &updated,
		&s.IPAddress, &s.UserAgent,
	); err != nil {
		return Session{}, err
	}
	setMillis(&s, expires, created, updated)
	return s, nil
}

func setMillis(s *Session, expires, created, updated int64) {
	s.ExpiresAt = time.UnixMilli(expires).UTC()
	s.CreatedAt = time.UnixMilli(created).UTC()
	s.UpdatedAt = time.UnixMilli(updated).UTC()
}
