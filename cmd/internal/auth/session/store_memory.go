package session

import (
	"context"
	"sync"
	"time"

	"sessiond/cmd/security/token"
)

// MemoryStore is a dev-only Store used when no database is configured,
// and the default store in tests.
type MemoryStore struct {
	hasher token.Hasher

	mu       sync.Mutex
	users    map[string]User
	sessions map[string]Session // id -> row
	byHash   map[string]string  // token hash -> id
}

// NewMemoryStore constructs an in-memory Store.
func NewMemoryStore(hasher token.Hasher) *MemoryStore {
	return &MemoryStore{
		hasher:   hasher,
		users:    make(map[string]User),
		sessions: make(map[string]Session),
		byHash:   make(map[string]string),
	}
}

// PutUser inserts or replaces a user.
func (s *MemoryStore) PutUser(ctx context.Context, u User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// Create inserts a new session row.
func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	if err := ctx.Err(); err != nil {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[row.ID] = row
	s.byHash[row.TokenHash] = row.ID
	return row, nil
}

// FindByToken loads the session and owner matching rawToken.
func (s *MemoryStore) FindByToken(ctx context.Context, rawToken string) (View, error) {
	if err := ctx.Err(); err != nil {
		return View{}, err
	}
	h := s.hasher.HashHex(rawToken)

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[h]
	if !ok {
		return View{}, ErrSessionNotFound
	}
	row, ok := s.sessions[id]
	if !ok {
		return View{}, ErrSessionNotFound
	}
	u, ok := s.users[row.UserID]
	if !ok {
		return View{}, ErrSessionNotFound
	}
	return View{Session: row, User: u}, nil
}

// GetByID loads a session row by ID.
func (s *MemoryStore) GetByID(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return row, nil
}

// UpdateExpiry sets the expiry if the row still exists.
func (s *MemoryStore) UpdateExpiry(ctx context.Context, sessionID string, expiresAt, now time.Time) (UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return UpdateResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.sessions[sessionID]
	if !ok {
		return UpdateResult{Gone: true}, nil
	}
	row.ExpiresAt = expiresAt
	row.UpdatedAt = nowOr(now)
	s.sessions[sessionID] = row
	return UpdateResult{Session: row}, nil
}

// DeleteByID removes a session (idempotent).
func (s *MemoryStore) DeleteByID(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.sessions[sessionID]; ok {
		delete(s.byHash, row.TokenHash)
		delete(s.sessions, sessionID)
	}
	return nil
}

// DeleteAllForUser removes every session of userID.
func (s *MemoryStore) DeleteAllForUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, row := range s.sessions {
		if row.UserID == userID {
			delete(s.byHash, row.TokenHash)
			delete(s.sessions, id)
		}
	}
	return nil
}

// ListForUser returns every stored session of userID in creation order.
func (s *MemoryStore) ListForUser(ctx context.Context, userID string) ([]View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return []View{}, nil
	}
	out := make([]View, 0, 4)
	for _, row := range s.sessions {
		if row.UserID == userID {
			out = append(out, View{Session: row, User: u})
		}
	}
	sortViews(out)
	return out, nil
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
