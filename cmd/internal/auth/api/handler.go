package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"sessiond/cmd/internal/auth/session"
)

// Handler wires the session HTTP endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
	cookies  *session.CookieJar
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, cookies *session.CookieJar) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil {
		return nil, errors.New("api: nil session service")
	}
	if cookies == nil {
		return nil, errors.New("api: nil cookie jar")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return &Handler{log: log, cfg: cfg, sessions: sessions, cookies: cookies}, nil
}

// Register wires session routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/session", h.handleGetSession)
	mux.HandleFunc("/user/list-sessions", h.handleListSessions)
	mux.HandleFunc("/user/revoke-session", h.handleRevokeSession)
	mux.HandleFunc("/user/revoke-sessions", h.handleRevokeSessions)
}

// WithRequestMemo attaches a per-request session memo so repeated
// resolution within one request hits the store once.
func WithRequestMemo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(session.WithRequestMemo(r.Context())))
	})
}

// ---- handlers ----

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	view, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toViewResponse(*view))
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	view, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	list, err := h.sessions.ListActive(r.Context(), view.User.ID)
	if err != nil {
		h.log.Error("auth.list_sessions.fail", "err", err, "user_id", view.User.ID)
		writeEmpty(w, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toViewResponses(list))
}

func (h *Handler) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	view, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req revokeSessionRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.ID = strings.TrimSpace(req.ID)

	ctx := r.Context()
	if err := h.sessions.RevokeOne(ctx, req.ID, view.User.ID); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			writeError(w, http.StatusBadRequest, "session_not_found", "session not found")
		case errors.Is(err, session.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
		default:
			h.log.Error("auth.revoke_session.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.auditRevokeSession(ctx, view.User.ID, req.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent())
	if req.ID == view.Session.ID {
		h.cookies.Bind(w, r).DeleteSessionCookie()
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: true})
}

func (h *Handler) handleRevokeSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	view, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := h.sessions.RevokeAll(ctx, view.User.ID); err != nil {
		h.log.Error("auth.revoke_sessions.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.auditRevokeSessions(ctx, view.User.ID, clientIP(r, h.cfg.TrustProxy), r.UserAgent())
	h.cookies.Bind(w, r).DeleteSessionCookie()
	writeJSON(w, http.StatusOK, statusResponse{Status: true})
}

// ---- helpers ----

// requireSession resolves the caller's session, writing 401 or 500 with no
// body when there is none.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (*session.View, bool) {
	view, err := h.resolve(w, r)
	if err != nil {
		writeEmpty(w, http.StatusInternalServerError)
		return nil, false
	}
	if view == nil {
		writeEmpty(w, http.StatusUnauthorized)
		return nil, false
	}
	return view, true
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (*session.View, error) {
	cookies := h.cookies.Bind(w, r)
	key := session.RequestFingerprint(r,
		ipString(clientIP(r, h.cfg.TrustProxy)),
		cookies.RawCookie(cookies.SessionCookieName()),
	)
	return session.ResolveMemoized(r.Context(), h.sessions, key, cookies)
}
