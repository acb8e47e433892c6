package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// Backend is the configured session store plus the lifecycle hooks the app
// needs for readiness and shutdown.
type Backend interface {
	session.Store
	session.Writer

	Kind() string
	Persistent() bool
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// newBackend opens the store selected by cfg.Store.
func newBackend(ctx context.Context, cfg Config, hasher token.Hasher, log Logger) (Backend, error) {
	switch cfg.Store {
	case StorePostgres:
		return newPostgresBackend(ctx, cfg, hasher, log)
	case StoreRedis:
		return newRedisBackend(ctx, cfg, hasher, log)
	case StoreSQLite:
		return newSQLiteBackend(ctx, cfg, hasher, log)
	case StoreMemory, "":
		log.Info("store.memory", "persistent", false)
		return memoryBackend{session.NewMemoryStore(hasher)}, nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Store)
	}
}

type memoryBackend struct {
	*session.MemoryStore
}

func (memoryBackend) Kind() string                  { return StoreMemory }
func (memoryBackend) Persistent() bool              { return false }
func (memoryBackend) Ping(_ context.Context) error  { return nil }
func (memoryBackend) Close(_ context.Context) error { return nil }

// postgresBackend owns the pool; PostgresStore only borrows it.
type postgresBackend struct {
	*session.PostgresStore
	pool *pgxpool.Pool
}

// postgresPoolConfig applies sessiond's pool limits on top of the DSN.
// Session queries are single-row lookups, so a statement timeout and an
// application_name are set unless the DSN already carries them.
func postgresPoolConfig(cfg Config) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns > 0 {
		pcfg.MinConns = min(cfg.DBMinConns, pcfg.MaxConns)
	}

	params := pcfg.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = "sessiond"
	}
	if _, ok := params["statement_timeout"]; !ok && cfg.DBStatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.DBStatementTimeout.Milliseconds(), 10)
	}
	return pcfg, nil
}

func newPostgresBackend(ctx context.Context, cfg Config, hasher token.Hasher, log Logger) (Backend, error) {
	pcfg, err := postgresPoolConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: postgres: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("store: postgres: %w", err)
	}
	if err := pingPostgres(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: postgres: %w", err)
	}

	st := session.NewPostgresStore(pool, hasher)
	if cfg.DBAutoMigrate {
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("store: postgres schema: %w", err)
		}
	}

	log.Info("store.postgres",
		"persistent", true,
		"auto_migrate", cfg.DBAutoMigrate,
		"max_conns", pcfg.MaxConns,
	)
	return postgresBackend{PostgresStore: st, pool: pool}, nil
}

func (postgresBackend) Kind() string     { return StorePostgres }
func (postgresBackend) Persistent() bool { return true }

func (b postgresBackend) Ping(ctx context.Context) error {
	return pingPostgres(ctx, b.pool, 2*time.Second)
}

func pingPostgres(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return pool.Ping(ctx)
}

func (b postgresBackend) Close(_ context.Context) error {
	b.pool.Close()
	return nil
}

type redisBackend struct {
	*session.RedisStore
	client *redis.Client
}

func newRedisBackend(ctx context.Context, cfg Config, hasher token.Hasher, log Logger) (Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: redis: %w", err)
	}

	log.Info("store.redis", "persistent", true, "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
	return redisBackend{
		RedisStore: session.NewRedisStore(client, cfg.RedisPrefix, hasher),
		client:     client,
	}, nil
}

func (redisBackend) Kind() string     { return StoreRedis }
func (redisBackend) Persistent() bool { return true }

func (b redisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return b.RedisStore.Ping(ctx)
}

func (b redisBackend) Close(_ context.Context) error { return b.client.Close() }

type sqliteBackend struct {
	*session.SQLiteStore
	db *sql.DB
}

func newSQLiteBackend(ctx context.Context, cfg Config, hasher token.Hasher, log Logger) (Backend, error) {
	path := cfg.SQLitePath
	if path == "" {
		return nil, errors.New("store: sqlite: empty path")
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("store: sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	st, err := session.NewSQLiteStore(ctx, db, hasher)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sqlite: %w", err)
	}

	log.Info("store.sqlite", "persistent", true, "path", path)
	return sqliteBackend{SQLiteStore: st, db: db}, nil
}

func sqliteDSN(path string) string {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	return dsn
}

func (sqliteBackend) Kind() string     { return StoreSQLite }
func (sqliteBackend) Persistent() bool { return true }

func (b sqliteBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return b.SQLiteStore.Ping(ctx)
}

func (b sqliteBackend) Close(_ context.Context) error { return b.db.Close() }
