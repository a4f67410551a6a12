package auth

import (
	"errors"
	"time"
)

// User represents an account that can authenticate.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"` // never serialised
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is a named bundle of permissions assigned to users.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission is a capability identified by its resource and action pair.
// Name is conventionally "resource:action".
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PermissionName returns the conventional "resource:action" name.
func PermissionName(resource, action string) string {
	return resource + ":" + action
}

// RevokeReason records why a refresh token stopped being usable.
type RevokeReason string

const (
	RevokeRotated         RevokeReason = "rotated"
	RevokeReuseDetected   RevokeReason = "reuse_detected"
	RevokeLogout          RevokeReason = "logout"
	RevokePasswordChanged RevokeReason = "password_changed"
	RevokeAccountDisabled RevokeReason = "account_disabled"
	RevokeSessionRevoked  RevokeReason = "session_revoked"
	RevokeAdmin           RevokeReason = "admin"
)

// RefreshToken is one link in a refresh-token family.
//
// Value holds the plaintext token only on the instance returned at issuance.
// Storage keeps TokenHash, the hex SHA-256 of Value.
type RefreshToken struct {
	ID                string       `json:"id"`
	Value             string       `json:"-"` // never serialised
	TokenHash         string       `json:"-"` // never serialised
	UserID            string       `json:"user_id"`
	Family            string       `json:"family"`
	RotationCount     int          `json:"rotation_count"`
	ExpiresAt         time.Time    `json:"expires_at"`
	RevokedAt         *time.Time   `json:"revoked_at,omitempty"`
	RevokeReason      RevokeReason `json:"revoke_reason,omitempty"`
	ReplacedByTokenID string       `json:"replaced_by_token_id,omitempty"`
	IPAddress         string       `json:"ip_address,omitempty"`
	UserAgent         string       `json:"user_agent,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// IsExpired reports whether the token is past its expiry at now.
// A token is unusable from the expiry instant onwards.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsRevoked reports whether the token was consumed or revoked.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive reports whether the token can still be rotated at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// ClientInfo carries request metadata recorded on issued tokens.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// LoginResponse is returned by Login and Refresh.
type LoginResponse struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Session describes one active refresh-token family of a user.
type Session struct {
	Family        string    `json:"family"`
	TokenID       string    `json:"token_id"`
	RotationCount int       `json:"rotation_count"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	LastUsedAt    time.Time `json:"last_used_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Service-level failures. Every authentication failure is reported to
// clients with the same generic message.
var (
	ErrValidation           = errors.New("validation failed")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDisabled      = errors.New("user account is disabled")
	ErrTokenInvalid         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token has expired")
	ErrTokenReuse           = errors.New("refresh token reuse detected")
	ErrPersistence          = errors.New("persistence failure")
	ErrForbidden            = errors.New("insufficient permissions")
)

// Repository-level failures.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already exists")
	ErrTokenNotFound      = errors.New("refresh token not found")
	ErrRotationConflict   = errors.New("refresh token already consumed")
	ErrRoleNotFound       = errors.New("role not found")
	ErrRoleExists         = errors.New("role already exists")
	ErrPermissionNotFound = errors.New("permission not found")
	ErrPermissionExists   = errors.New("permission already exists")
)

// IsAuthFailure reports whether err is one of the expected outcomes of
// untrusted credentials or tokens, as opposed to an infrastructure failure.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrAccountDisabled) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenReuse)
}
