package session

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLiteStore(context.Background(), db, testHasher())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return s
}

func TestSQLiteStore_Contract(t *testing.T) {
	t.Parallel()

	runStoreContract(t, func(t *testing.T) writableStore {
		return newTestSQLite(t)
	})
}

func TestSQLiteStore_SchemaIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	if _, err := NewSQLiteStore(context.Background(), s.db, testHasher()); err != nil {
		t.Fatalf("second NewSQLiteStore: %v", err)
	}
}
