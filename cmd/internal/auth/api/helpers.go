package api

import (
	"net"
	"net/http"
	"strings"

	"sessiond/cmd/internal/auth/session"
)

func toViewResponse(v session.View) viewResponse {
	return viewResponse{
		Session: sessionResponse{
			ID:        v.Session.ID,
			UserID:    v.Session.UserID,
			ExpiresAt: v.Session.ExpiresAt,
			CreatedAt: v.Session.CreatedAt,
			UpdatedAt: v.Session.UpdatedAt,
			IPAddress: strPtr(v.Session.IPAddress),
			UserAgent: strPtr(v.Session.UserAgent),
		},
		User: userResponse{
			ID:        v.User.ID,
			Name:      v.User.Name,
			Email:     v.User.Email,
			CreatedAt: v.User.CreatedAt,
		},
	}
}

func toViewResponses(vs []session.View) []viewResponse {
	out := make([]viewResponse, 0, len(vs))
	for _, v := range vs {
		out = append(out, toViewResponse(v))
	}
	return out
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
