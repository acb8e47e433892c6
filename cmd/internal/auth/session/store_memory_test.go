package session

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_Contract(t *testing.T) {
	t.Parallel()

	runStoreContract(t, func(t *testing.T) writableStore {
		return NewMemoryStore(testHasher())
	})
}

func TestMemoryStore_HonoursCancelledContext(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(testHasher())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.GetByID(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
