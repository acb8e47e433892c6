// Package app wires the sessiond server runtime: config, logging, store
// selection, metrics and HTTP routes.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/session"

	"github.com/prometheus/client_golang/prometheus"
)

// App is the sessiond server runtime: it owns the store lifecycle and the
// HTTP handler chain.
type App struct {
	cfg Config
	log Logger

	backend  Backend
	sessions *session.Service
	auth     *api.Handler
	registry *prometheus.Registry

	handler http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	hasher, err := cfg.Session.NewTokenHasher()
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(ctx, cfg, hasher, log)
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, log, backend)
	if err != nil {
		_ = backend.Close(ctx)
		return nil, err
	}
	return a, nil
}

func wire(cfg Config, log Logger, backend Backend) (*App, error) {
	reg := newRegistry()

	sessions := session.NewService(cfg.Session, backend,
		session.WithErrorSink(session.LogErrorSink{Log: log}),
		session.WithMetrics(session.NewMetrics(reg)),
	)

	jar, err := session.NewCookieJar(cfg.Session)
	if err != nil {
		return nil, err
	}

	authHandler, err := api.NewHandler(log, cfg.API, sessions, jar)
	if err != nil {
		return nil, err
	}

	var metrics http.Handler
	if cfg.MetricsEnabled {
		metrics = metricsHandler(reg)
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, backend, authHandler, metrics)

	var h http.Handler = api.WithRequestMemo(mux)
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, log)

	return &App{
		cfg:      cfg,
		log:      log,
		backend:  backend,
		sessions: sessions,
		auth:     authHandler,
		registry: reg,
		handler:  WithRequestID(h),
	}, nil
}

// Handler returns the full middleware chain.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions exposes the session service for in-process sign-in flows.
func (a *App) Sessions() *session.Service { return a.sessions }

// Backend returns the configured store.
func (a *App) Backend() Backend { return a.backend }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"store", a.backend.Kind(),
		"metrics", a.cfg.MetricsEnabled,
		"cookie", a.cfg.Session.SessionCookieName(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.backend.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.backend.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
