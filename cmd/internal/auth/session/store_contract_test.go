package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

// writableStore is what the contract suite needs from a backend.
type writableStore interface {
	Store
	Writer
}

// runStoreContract exercises the Store semantics every backend must share.
// Expiries are in the future relative to the wall clock because Redis keys
// expire on their own.
func runStoreContract(t *testing.T, newStore func(t *testing.T) writableStore) {
	t.Helper()

	base := time.Now().UTC().Truncate(time.Millisecond)
	ctx := context.Background()

	t.Run("create then find by token", func(t *testing.T) {
		s := newStore(t)
		uid := "u-" + newSessionID()
		tok, row := seedSession(t, s, uid, base, base.Add(time.Hour))

		view, err := s.FindByToken(ctx, tok)
		if err != nil {
			t.Fatalf("FindByToken: %v", err)
		}
		if view.Session.ID != row.ID || view.Session.UserID != uid || view.User.ID != uid {
			t.Fatalf("unexpected view %+v", view)
		}
		if !view.Session.ExpiresAt.Equal(base.Add(time.Hour)) {
			t.Fatalf("expiresAt=%v, want %v", view.Session.ExpiresAt, base.Add(time.Hour))
		}
		if view.Session.TokenHash == "" || view.Session.TokenHash == tok {
			t.Fatalf("expected hashed token, got %q", view.Session.TokenHash)
		}
		if view.Session.UserAgent != "sessiond-test/1.0" {
			t.Fatalf("userAgent=%q", view.Session.UserAgent)
		}
	})

	t.Run("unknown lookups", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.FindByToken(ctx, "does-not-exist"); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("FindByToken: expected ErrSessionNotFound, got %v", err)
		}
		if _, err := s.GetByID(ctx, newSessionID()); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("GetByID: expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("update expiry", func(t *testing.T) {
		s := newStore(t)
		_, row := seedSession(t, s, "u-"+newSessionID(), base, base.Add(time.Hour))

		next := base.Add(2 * time.Hour)
		now := base.Add(time.Minute)
		res, err := s.UpdateExpiry(ctx, row.ID, next, now)
		if err != nil {
			t.Fatalf("UpdateExpiry: %v", err)
		}
		if res.Gone {
			t.Fatalf("expected row present")
		}
		if !res.Session.ExpiresAt.Equal(next) || !res.Session.UpdatedAt.Equal(now) {
			t.Fatalf("unexpected updated row %+v", res.Session)
		}

		got, err := s.GetByID(ctx, row.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if !got.ExpiresAt.Equal(next) {
			t.Fatalf("stored expiresAt=%v, want %v", got.ExpiresAt, next)
		}
	})

	t.Run("update after delete reports gone", func(t *testing.T) {
		s := newStore(t)
		tok, row := seedSession(t, s, "u-"+newSessionID(), base, base.Add(time.Hour))

		if err := s.DeleteByID(ctx, row.ID); err != nil {
			t.Fatalf("DeleteByID: %v", err)
		}
		if err := s.DeleteByID(ctx, row.ID); err != nil {
			t.Fatalf("DeleteByID (again): %v", err)
		}
		res, err := s.UpdateExpiry(ctx, row.ID, base.Add(2*time.Hour), base)
		if err != nil {
			t.Fatalf("UpdateExpiry: %v", err)
		}
		if !res.Gone {
			t.Fatalf("expected Gone after delete")
		}
		if _, err := s.FindByToken(ctx, tok); !errors.Is(err, ErrSessionNotFound) {
			t.Fatalf("expected token index cleared, got %v", err)
		}
	})

	t.Run("delete all for user", func(t *testing.T) {
		s := newStore(t)
		uid, other := "u-"+newSessionID(), "u-"+newSessionID()
		tokA, _ := seedSession(t, s, uid, base, base.Add(time.Hour))
		tokB, _ := seedSession(t, s, uid, base.Add(time.Millisecond), base.Add(time.Hour))
		tokC, _ := seedSession(t, s, other, base, base.Add(time.Hour))

		if err := s.DeleteAllForUser(ctx, uid); err != nil {
			t.Fatalf("DeleteAllForUser: %v", err)
		}
		for _, tok := range []string{tokA, tokB} {
			if _, err := s.FindByToken(ctx, tok); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected session removed, got %v", err)
			}
		}
		if _, err := s.FindByToken(ctx, tokC); err != nil {
			t.Fatalf("other user's session must survive: %v", err)
		}
		list, err := s.ListForUser(ctx, uid)
		if err != nil {
			t.Fatalf("ListForUser: %v", err)
		}
		if len(list) != 0 {
			t.Fatalf("expected empty list, got %d", len(list))
		}
	})

	t.Run("list for user in creation order", func(t *testing.T) {
		s := newStore(t)
		uid := "u-" + newSessionID()
		_, third := seedSession(t, s, uid, base.Add(3*time.Millisecond), base.Add(time.Hour))
		_, first := seedSession(t, s, uid, base.Add(1*time.Millisecond), base.Add(time.Hour))
		_, second := seedSession(t, s, uid, base.Add(2*time.Millisecond), base.Add(time.Hour))

		list, err := s.ListForUser(ctx, uid)
		if err != nil {
			t.Fatalf("ListForUser: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("expected 3 sessions, got %d", len(list))
		}
		want := []string{first.ID, second.ID, third.ID}
		for i, v := range list {
			if v.Session.ID != want[i] {
				t.Fatalf("list[%d]=%s, want %s", i, v.Session.ID, want[i])
			}
			if v.User.ID != uid {
				t.Fatalf("list[%d] user=%s, want %s", i, v.User.ID, uid)
			}
		}
	})

	t.Run("list for unknown user", func(t *testing.T) {
		s := newStore(t)
		list, err := s.ListForUser(ctx, "u-"+newSessionID())
		if err != nil {
			t.Fatalf("ListForUser: %v", err)
		}
		if len(list) != 0 {
			t.Fatalf("expected empty list, got %d", len(list))
		}
	})
}
