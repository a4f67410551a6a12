package events

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

// Metrics counts security events for Prometheus.
type Metrics struct {
	events        *prometheus.CounterVec
	tokensRevoked *prometheus.CounterVec
	reuse         prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onward",
				Name:      "security_events_total",
				Help:      "Security events by type.",
			},
			[]string{"type"},
		),
		tokensRevoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "onward",
				Name:      "refresh_tokens_revoked_total",
				Help:      "Refresh tokens revoked by bulk revocations, by reason.",
			},
			[]string{"reason"},
		),
		reuse: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "onward",
			Name:      "token_reuse_detected_total",
			Help:      "Replays of rotated or revoked refresh tokens.",
		}),
	}

	for _, c := range []prometheus.Collector{m.events, m.tokensRevoked, m.reuse} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering security metrics: %w", err)
		}
	}
	return m, nil
}

// Handle implements Sink.
func (m *Metrics) Handle(_ context.Context, ev auth.SecurityEvent) error {
	m.events.WithLabelValues(string(ev.Type)).Inc()
	if ev.Type == auth.EventTokenReuse {
		m.reuse.Inc()
	}
	if countsRevocations(ev) {
		m.tokensRevoked.WithLabelValues(string(ev.Reason)).Add(float64(ev.Revoked))
	}
	return nil
}

// Logout and session revocation summarise family_revoked events that were
// already counted.
func countsRevocations(ev auth.SecurityEvent) bool {
	if ev.Revoked <= 0 || ev.Reason == "" {
		return false
	}
	switch ev.Type {
	case auth.EventLogout, auth.EventSessionRevoked:
		return false
	default:
		return true
	}
}
