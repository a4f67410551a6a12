package auth

import (
	"context"
	"time"
)

// EventType names a security-relevant occurrence.
type EventType string

const (
	EventLoginSucceeded  EventType = "login_succeeded"
	EventLoginFailed     EventType = "login_failed"
	EventTokenRotated    EventType = "token_rotated"
	EventTokenReuse      EventType = "token_reuse_detected"
	EventFamilyRevoked   EventType = "family_revoked"
	EventLogout          EventType = "logout"
	EventPasswordChanged EventType = "password_changed"
	EventAccountDisabled EventType = "account_disabled"
	EventUserRegistered  EventType = "user_registered"
	EventSessionRevoked  EventType = "session_revoked"
)

// SecurityEvent is emitted by the auth services for auditing and alerting.
// It never carries token values or passwords.
type SecurityEvent struct {
	Type       EventType    `json:"type"`
	UserID     string       `json:"user_id,omitempty"`
	Email      string       `json:"email,omitempty"`
	Family     string       `json:"family,omitempty"`
	TokenID    string       `json:"token_id,omitempty"`
	Reason     RevokeReason `json:"reason,omitempty"`
	Revoked    int64        `json:"revoked,omitempty"`
	IPAddress  string       `json:"ip_address,omitempty"`
	UserAgent  string       `json:"user_agent,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// EventRecorder receives security events. Implementations must not block
// the caller on slow sinks and must not return errors into auth flows.
type EventRecorder interface {
	Record(ctx context.Context, ev SecurityEvent)
}

// EventRecorderFunc adapts a function to EventRecorder.
type EventRecorderFunc func(ctx context.Context, ev SecurityEvent)

// Record calls f.
func (f EventRecorderFunc) Record(ctx context.Context, ev SecurityEvent) { f(ctx, ev) }

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, SecurityEvent) {}
