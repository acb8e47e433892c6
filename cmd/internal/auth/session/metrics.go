package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Resolve outcomes.
const (
	OutcomeAnonymous = "anonymous"
	OutcomeRejected  = "rejected"
	OutcomeLive      = "live"
	OutcomeRefreshed = "refreshed"
	OutcomeRaced     = "raced"
	OutcomeInternal  = "internal"
)

// Metrics counts lifecycle outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	resolves *prometheus.CounterVec
	revokes  *prometheus.CounterVec
}

// NewMetrics creates the session counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "session",
			Name:      "resolve_total",
			Help:      "Session resolutions by outcome.",
		}, []string{"outcome"}),
		revokes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "session",
			Name:      "revoke_total",
			Help:      "Session revocations by scope and result.",
		}, []string{"scope", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.resolves, m.revokes)
	}
	return m
}

func (m *Metrics) resolved(outcome string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(outcome).Inc()
}

func (m *Metrics) revoked(scope string, err error) {
	if m == nil {
		return
	}
	m.revokes.WithLabelValues(scope, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
