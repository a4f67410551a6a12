package events

import (
	"context"
	"time"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/mqtt"
)

// Incident severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// JSONPublisher is the part of the MQTT client the sink needs.
type JSONPublisher interface {
	PublishJSON(topic string, v any) error
}

// Message is the MQTT payload for a security event.
type Message struct {
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	UserID     string    `json:"user_id,omitempty"`
	Family     string    `json:"family,omitempty"`
	TokenID    string    `json:"token_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Revoked    int64     `json:"revoked,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MQTTSink publishes incidents to <prefix>/security/incidents and, when
// AllEvents is set, every other event to <prefix>/security/events/<type>.
type MQTTSink struct {
	pub       JSONPublisher
	topics    mqtt.Topics
	allEvents bool
}

// NewMQTTSink creates the sink.
func NewMQTTSink(pub JSONPublisher, topics mqtt.Topics, allEvents bool) *MQTTSink {
	return &MQTTSink{pub: pub, topics: topics, allEvents: allEvents}
}

// Handle implements Sink.
func (s *MQTTSink) Handle(_ context.Context, ev auth.SecurityEvent) error {
	severity := Severity(ev.Type)
	msg := Message{
		Type:       string(ev.Type),
		Severity:   severity,
		UserID:     ev.UserID,
		Family:     ev.Family,
		TokenID:    ev.TokenID,
		Reason:     string(ev.Reason),
		Revoked:    ev.Revoked,
		IPAddress:  ev.IPAddress,
		UserAgent:  ev.UserAgent,
		OccurredAt: ev.OccurredAt,
	}

	if severity != SeverityInfo {
		return s.pub.PublishJSON(s.topics.SecurityIncidents(), msg)
	}
	if !s.allEvents {
		return nil
	}
	return s.pub.PublishJSON(s.topics.SecurityEvent(string(ev.Type)), msg)
}

// Severity classifies an event for the incident bus.
func Severity(t auth.EventType) string {
	switch t {
	case auth.EventTokenReuse:
		return SeverityCritical
	case auth.EventAccountDisabled, auth.EventPasswordChanged:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
