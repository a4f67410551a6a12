package events

import (
	"context"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/influxdb"
)

// AuthEventWriter is the part of the InfluxDB client the sink needs.
type AuthEventWriter interface {
	WriteAuthEvent(ev influxdb.AuthEvent)
}

// InfluxSink writes every event to the auth_events measurement. Writes are
// batched by the client, so Handle never fails.
type InfluxSink struct {
	w AuthEventWriter
}

// NewInfluxSink creates the sink.
func NewInfluxSink(w AuthEventWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Handle implements Sink.
func (s *InfluxSink) Handle(_ context.Context, ev auth.SecurityEvent) error {
	s.w.WriteAuthEvent(influxdb.AuthEvent{
		Type:    string(ev.Type),
		Reason:  string(ev.Reason),
		UserID:  ev.UserID,
		Family:  ev.Family,
		Revoked: ev.Revoked,
		At:      ev.OccurredAt,
	})
	return nil
}
