package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sessiond/cmd/security/token"
)

const postgresSchema = `
CREATE SCHEMA IF NOT EXISTS sessiond;

CREATE TABLE IF NOT EXISTS sessiond.users (
	id         text PRIMARY KEY,
	name       text NOT NULL DEFAULT '',
	email      text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessiond.sessions (
	id         text PRIMARY KEY,
	user_id    text NOT NULL REFERENCES sessiond.users (id) ON DELETE CASCADE,
	token_hash text NOT NULL UNIQUE,
	expires_at timestamptz NOT NULL,
	created_at timestamptz NOT NULL,
	updated_at timestamptz NOT NULL,
	ip_address text,
	user_agent text
);

CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessiond.sessions (user_id);
`

// PostgresStore implements Store using PostgreSQL (sessiond.sessions, sessiond.users).
type PostgresStore struct {
	pool   *pgxpool.Pool
	hasher token.Hasher
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool, hasher token.Hasher) *PostgresStore {
	return &PostgresStore{pool: pool, hasher: hasher}
}

// EnsureSchema creates the sessiond schema and tables if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutUser inserts or updates a user row.
func (s *PostgresStore) PutUser(ctx context.Context, u User) error {
	createdAt := nowOr(u.CreatedAt)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessiond.users (id, name, email, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email
	`, u.ID, u.Name, u.Email, createdAt)
	return err
}

// Create inserts a new session row and returns it.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	now := nowOr(in.Now)

	row := Session{
		ID:        newSessionID(),
		UserID:    in.UserID,
		TokenHash: s.hasher.HashHex(in.Token),
		ExpiresAt: in.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessiond.sessions (
			id, user_id, token_hash,
			expires_at, created_at, updated_at,
			ip_address, user_agent
		) VALUES (
			$1, $2, $3,
			$4, $5, $5,
			$6, $7
		)
	`, row.ID, row.UserID, row.TokenHash, row.ExpiresAt, now, nullIfEmpty(row.IPAddress), nullIfEmpty(row.UserAgent))
	if err != nil {
		return Session{}, err
	}
	return row, nil
}

// FindByToken loads the session and owner matching rawToken.
func (s *PostgresStore) FindByToken(ctx context.Context, rawToken string) (View, error) {
	var (
		v      View
		ip, ua *string
	)

	err := s.pool.QueryRow(ctx, `
		SELECT
			s.id, s.user_id, s.token_hash,
			s.expires_at, s.created_at, s.updated_at,
			s.ip_address, s.user_agent,
			u.id, u.name, u.email, u.created_at
		FROM sessiond.sessions s
		JOIN sessiond.users u ON u.id = s.user_id
		WHERE s.token_hash = $1
	`, s.hasher.HashHex(rawToken)).Scan(
		&v.Session.ID,
		&v.Session.UserID,
		&v.Session.TokenHash,
		&v.Session.ExpiresAt,
		&v.Session.CreatedAt,
		&v.Session.UpdatedAt,
		&ip,
		&ua,
		&v.User.ID,
		&v.User.Name,
		&v.User.Email,
		&v.User.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return View{}, ErrSessionNotFound
	}
	if err != nil {
		return View{}, err
	}

	v.Session.IPAddress, v.Session.UserAgent = deref(ip), deref(ua)
	return v, nil
}

// GetByID loads a session row by ID.
func (s *PostgresStore) GetByID(ctx context.Context, sessionID string) (Session, error) {
	row, err := scanSession(s.pool.QueryRow(ctx, `
		SELECT
			id, user_id, token_hash,
			expires_at, created_at, updated_at,
			ip_address, user_agent
		FROM sessiond.sessions
		WHERE id = $1
	`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return row, err
}

// UpdateExpiry extends a session if it still exists.
func (s *PostgresStore) UpdateExpiry(ctx context.Context, sessionID string, expiresAt, now time.Time) (UpdateResult, error) {
	row, err := scanSession(s.pool.QueryRow(ctx, `
		UPDATE sessiond.sessions
		SET expires_at = $2, updated_at = $3
		WHERE id = $1
		RETURNING
			id, user_id, token_hash,
			expires_at, created_at, updated_at,
			ip_address, user_agent
	`, sessionID, expiresAt, nowOr(now)))
	if errors.Is(err, pgx.ErrNoRows) {
		return UpdateResult{Gone: true}, nil
	}
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Session: row}, nil
}

// DeleteByID removes a session (idempotent).
func (s *PostgresStore) DeleteByID(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessiond.sessions WHERE id = $1`, sessionID)
	return err
}

// DeleteAllForUser removes every session of userID.
func (s *PostgresStore) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessiond.sessions WHERE user_id = $1`, userID)
	return err
}

// ListForUser returns every stored session of userID in creation order.
func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]View, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			s.id, s.user_id, s.token_hash,
			s.expires_at, s.created_at, s.updated_at,
			s.ip_address, s.user_agent,
			u.id, u.name, u.email, u.created_at
		FROM sessiond.sessions s
		JOIN sessiond.users u ON u.id = s.user_id
		WHERE s.user_id = $1
		ORDER BY s.created_at ASC, s.id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]View, 0, 4)
	for rows.Next() {
		var (
			v      View
			ip, ua *string
		)
		if err := rows.Scan(
			&v.Session.ID,
			&v.Session.UserID,
			&v.Session.TokenHash,
			&v.Session.ExpiresAt,
			&v.Session.CreatedAt,
			&v.Session.UpdatedAt,
			&ip,
			&ua,
			&v.User.ID,
			&v.User.Name,
			&v.User.Email,
			&v.User.CreatedAt,
		); err != nil {
			return nil, err
		}
		v.Session.IPAddress, v.Session.UserAgent = deref(ip), deref(ua)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		s      Session
		ip, ua *string
	)
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.UpdatedAt,
		&ip,
		&ua,
	); err != nil {
		return Session{}, err
	}
	s.IPAddress, s.UserAgent = deref(ip), deref(ua)
	return s, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
