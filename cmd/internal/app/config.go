package app

import (
	"fmt"
	"strings"
	"time"

	"sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/session"
)

// Store backends selectable with SESSIOND_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	Store string

	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	DBAutoMigrate bool

	DBStatementTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	SQLitePath string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool

	// If true, /readyz returns 503 unless a persistent store is configured and reachable.
	ReadinessRequireStore bool

	// If true, startup fails unless session cookies are Secure.
	RequireSecureCookies bool

	Session session.Config
	API     api.Config
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		HTTPAddr:  EnvString("SESSIOND_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("SESSIOND_LOG_LEVEL", "info"),
		LogFormat: EnvString("SESSIOND_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("SESSIOND_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("SESSIOND_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("SESSIOND_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("SESSIOND_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("SESSIOND_HTTP_MAX_HEADER_BYTES", 1<<20),

		Store: strings.ToLower(EnvString("SESSIOND_STORE", StoreMemory)),

		DatabaseURL:   EnvString("SESSIOND_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("SESSIOND_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("SESSIOND_DB_MIN_CONNS", 0),
		DBAutoMigrate: EnvBool("SESSIOND_DB_AUTO_MIGRATE", true),

		DBStatementTimeout: EnvDuration("SESSIOND_DB_STATEMENT_TIMEOUT", 5*time.Second),

		RedisAddr:     EnvString("SESSIOND_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: EnvString("SESSIOND_REDIS_PASSWORD", ""),
		RedisDB:       int(EnvInt32("SESSIOND_REDIS_DB", 0)),
		RedisPrefix:   EnvString("SESSIOND_REDIS_PREFIX", "sessiond:"),

		SQLitePath: EnvString("SESSIOND_SQLITE_PATH", "sessiond.db"),

		CORSAllowedOrigins:   EnvList("SESSIOND_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("SESSIOND_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("SESSIOND_CORS_MAX_AGE_SECONDS", 600),

		MetricsEnabled: EnvBool("SESSIOND_METRICS_ENABLED", true),

		ReadinessRequireStore: EnvBool("SESSIOND_READINESS_REQUIRE_STORE", false),
		RequireSecureCookies:  EnvBool("SESSIOND_REQUIRE_SECURE_COOKIES", false),

		API: api.LoadConfigFromEnv(),
	}

	switch cfg.Store {
	case StoreMemory, StorePostgres, StoreRedis, StoreSQLite:
	default:
		return Config{}, fmt.Errorf("config: unknown SESSIOND_STORE %q", cfg.Store)
	}
	if cfg.Store == StorePostgres && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: SESSIOND_STORE=postgres requires SESSIOND_DATABASE_URL")
	}

	sess, err := session.LoadConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("config: session: %w", err)
	}
	cfg.Session = sess

	return cfg, nil
}
