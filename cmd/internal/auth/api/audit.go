package api

import (
	"context"
	"net"
	"strings"
)

func (h *Handler) auditRevokeSession(ctx context.Context, userID, sessionID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.revoke_session", userID, sessionID, ip, ua)
}

func (h *Handler) auditRevokeSessions(ctx context.Context, userID string, ip net.IP, ua string) {
	h.audit(ctx, "auth.revoke_sessions", userID, "", ip, ua)
}

func (h *Handler) audit(ctx context.Context, action, userID, sessionID string, ip net.IP, ua string) {
	if h == nil || !h.cfg.AuditEnabled {
		return
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	attrs := []any{"action", action, "user_id", userID}
	if sessionID != "" {
		attrs = append(attrs, "session_id", sessionID)
	}
	if ip != nil {
		attrs = append(attrs, "ip", ip.String())
	}
	if ua = strings.TrimSpace(ua); ua != "" {
		attrs = append(attrs, "user_agent", ua)
	}
	h.log.InfoContext(ctx, "auth.audit", attrs...)
}
