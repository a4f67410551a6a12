package events

import (
	"context"

	"github.com/DenisZakharchuk/onward-sub002/internal/audit"
	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

// Audit entity types.
const (
	EntityUser        = "user"
	EntityTokenFamily = "token_family"
)

// AuditSink persists every event as an audit log entry.
type AuditSink struct {
	repo   audit.Repository
	source string
}

// NewAuditSink creates a sink writing entries attributed to source
// (audit.SourceAPI when empty).
func NewAuditSink(repo audit.Repository, source string) *AuditSink {
	if source == "" {
		source = audit.SourceAPI
	}
	return &AuditSink{repo: repo, source: source}
}

// Handle implements Sink.
func (s *AuditSink) Handle(ctx context.Context, ev auth.SecurityEvent) error {
	return s.repo.Create(ctx, AuditLogFor(ev, s.source))
}

// AuditLogFor maps a security event to an audit entry. Events that concern
// a token family are filed against the family, everything else against the
// user.
func AuditLogFor(ev auth.SecurityEvent, source string) *audit.AuditLog {
	log := &audit.AuditLog{
		Action:     string(ev.Type),
		EntityType: EntityUser,
		EntityID:   ev.UserID,
		UserID:     ev.UserID,
		Source:     source,
		IPAddress:  ev.IPAddress,
		UserAgent:  ev.UserAgent,
		CreatedAt:  ev.OccurredAt,
	}
	if ev.Family != "" {
		log.EntityType = EntityTokenFamily
		log.EntityID = ev.Family
	}

	details := map[string]any{}
	if ev.Email != "" {
		details["email"] = ev.Email
	}
	if ev.TokenID != "" {
		details["token_id"] = ev.TokenID
	}
	if ev.Reason != "" {
		details["reason"] = string(ev.Reason)
	}
	if ev.Revoked > 0 {
		details["revoked"] = ev.Revoked
	}
	if len(details) > 0 {
		log.Details = details
	}
	return log
}
