package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DenisZakharchuk/onward-sub002/internal/ids"
)

// minTokenBytes is the least entropy accepted for refresh token values.
const minTokenBytes = 32

// RotationConfig holds token lifetimes and entropy.
type RotationConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	TokenBytes      int
}

// RotationDeps holds the collaborators of a TokenRotationService.
type RotationDeps struct {
	Store    RefreshTokenStore
	Users    UserRepository
	Resolver PrincipalLoader
	Issuer   AccessTokenIssuer
	Events   EventRecorder // optional
	Logger   *slog.Logger
	Config   RotationConfig
}

// Rotation is the outcome of a successful refresh.
type Rotation struct {
	User        *User
	AccessToken string
	ExpiresIn   time.Duration
	Successor   *RefreshToken
	Predecessor *RefreshToken
}

// TokenRotationService issues, rotates and revokes refresh tokens, and
// revokes a whole family when a consumed token is presented again.
//
// Token states are Active, Rotated, Revoked and Expired. Expired is derived
// from ExpiresAt and never written. Every decision to consume a token is
// made by the store's conditional update, not by in-process state.
type TokenRotationService struct {
	store    RefreshTokenStore
	users    UserRepository
	resolver PrincipalLoader
	issuer   AccessTokenIssuer
	events   EventRecorder
	logger   *slog.Logger
	cfg      RotationConfig
	now      func() time.Time
}

// NewTokenRotationService validates deps and creates the service.
func NewTokenRotationService(deps RotationDeps) (*TokenRotationService, error) {
	if deps.Store == nil || deps.Users == nil || deps.Resolver == nil || deps.Issuer == nil {
		return nil, fmt.Errorf("token rotation: store, users, resolver and issuer are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("token rotation: logger is required")
	}
	if deps.Config.RefreshTokenTTL <= 0 || deps.Config.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("token rotation: token TTLs must be positive")
	}
	if deps.Config.TokenBytes < minTokenBytes {
		return nil, fmt.Errorf("token rotation: token entropy must be at least %d bytes", minTokenBytes)
	}
	events := deps.Events
	if events == nil {
		events = nopRecorder{}
	}
	return &TokenRotationService{
		store:    deps.Store,
		users:    deps.Users,
		resolver: deps.Resolver,
		issuer:   deps.Issuer,
		events:   events,
		logger:   deps.Logger,
		cfg:      deps.Config,
		now:      time.Now,
	}, nil
}

// IssueFamily creates the first token of a new family for userID.
func (s *TokenRotationService) IssueFamily(ctx context.Context, userID string, client ClientInfo) (*RefreshToken, error) {
	token, err := s.newToken(userID, ids.New(), 0, client, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("%w: issuing refresh token: %w", ErrPersistence, err)
	}
	return token, nil
}

// RefreshToken consumes an active refresh token and returns its successor
// with a newly minted access token.
//
//   - unknown value: ErrTokenInvalid
//   - expired: ErrTokenExpired, nothing is written
//   - already revoked or consumed: the family is revoked, ErrTokenReuse
//   - owner disabled: the family is revoked, ErrAccountDisabled
func (s *TokenRotationService) RefreshToken(ctx context.Context, value string, client ClientInfo) (_ *Rotation, err error) {
	ctx, span := tracer.Start(ctx, "TokenRotationService.RefreshToken")
	defer func() { endSpan(span, err) }()

	if value == "" {
		return nil, ErrTokenInvalid
	}

	current, err := s.store.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: finding refresh token: %w", ErrPersistence, err)
	}
	span.SetAttributes(
		attribute.String("auth.family", current.Family),
		attribute.Int("auth.rotation_count", current.RotationCount),
	)

	now := s.now()
	if current.IsExpired(now) {
		return nil, ErrTokenExpired
	}
	if current.IsRevoked() {
		return nil, s.handleReuse(ctx, span, current, client, now)
	}

	user, err := s.users.GetByID(ctx, current.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading token owner: %w", ErrPersistence, err)
	}
	if !user.IsActive {
		if _, err := s.RevokeTokenFamily(context.WithoutCancel(ctx), current.Family, RevokeAccountDisabled); err != nil {
			return nil, errors.Join(ErrAccountDisabled, err)
		}
		return nil, ErrAccountDisabled
	}

	// Claims are resolved and signed before the rotation commits so a
	// signing failure never strands a client without its successor.
	principal, err := s.resolver.Load(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	access, err := s.issuer.Mint(user.ID, principal.Roles, principal.Permissions, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("minting access token: %w", err)
	}

	successor, err := s.newToken(user.ID, current.Family, current.RotationCount+1, client, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.Rotate(ctx, current, successor, now); err != nil {
		if errors.Is(err, ErrRotationConflict) {
			// A concurrent refresh consumed the same token first.
			return nil, s.handleReuse(ctx, span, current, client, now)
		}
		return nil, fmt.Errorf("%w: rotating refresh token: %w", ErrPersistence, err)
	}

	s.events.Record(ctx, SecurityEvent{
		Type:       EventTokenRotated,
		UserID:     user.ID,
		Family:     successor.Family,
		TokenID:    successor.ID,
		IPAddress:  client.IP,
		UserAgent:  client.UserAgent,
		OccurredAt: now,
	})

	return &Rotation{
		User:        user,
		AccessToken: access,
		ExpiresIn:   s.cfg.AccessTokenTTL,
		Successor:   successor,
		Predecessor: current,
	}, nil
}

// handleReuse revokes the family of a token that was presented after it
// had been consumed or revoked. Revocation is not abandoned when the
// caller's context is cancelled.
func (s *TokenRotationService) handleReuse(ctx context.Context, span trace.Span, token *RefreshToken, client ClientInfo, now time.Time) error {
	ctx = context.WithoutCancel(ctx)
	span.SetAttributes(attribute.Bool("auth.reuse_detected", true))

	revoked, err := s.store.RevokeFamily(ctx, token.Family, RevokeReuseDetected, now)

	s.logger.Warn("refresh token reuse detected, family revoked",
		"user_id", token.UserID,
		"family", token.Family,
		"token_id", token.ID,
		"rotation_count", token.RotationCount,
		"revoked", revoked,
		"ip", client.IP,
		"user_agent", client.UserAgent,
	)
	s.events.Record(ctx, SecurityEvent{
		Type:       EventTokenReuse,
		UserID:     token.UserID,
		Family:     token.Family,
		TokenID:    token.ID,
		Reason:     RevokeReuseDetected,
		Revoked:    revoked,
		IPAddress:  client.IP,
		UserAgent:  client.UserAgent,
		OccurredAt: now,
	})

	if err != nil {
		return errors.Join(ErrTokenReuse, fmt.Errorf("%w: revoking family: %w", ErrPersistence, err))
	}
	return ErrTokenReuse
}

// RevokeToken revokes a single token. Revoking an already revoked token is
// a no-op; an unknown id yields ErrTokenInvalid.
func (s *TokenRotationService) RevokeToken(ctx context.Context, tokenID string, reason RevokeReason) error {
	changed, err := s.store.Revoke(ctx, tokenID, reason, s.now())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if changed {
		return nil
	}
	if _, err := s.store.FindByID(ctx, tokenID); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// RevokeTokenFamily revokes every unrevoked token in family and returns how
// many were revoked.
func (s *TokenRotationService) RevokeTokenFamily(ctx context.Context, family string, reason RevokeReason) (int64, error) {
	now := s.now()
	n, err := s.store.RevokeFamily(ctx, family, reason, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if n > 0 {
		s.events.Record(ctx, SecurityEvent{
			Type:       EventFamilyRevoked,
			Family:     family,
			Reason:     reason,
			Revoked:    n,
			OccurredAt: now,
		})
	}
	return n, nil
}

// ValidateRefreshToken looks a token up without changing any state.
// It returns the record whatever its state; callers inspect IsActive.
func (s *TokenRotationService) ValidateRefreshToken(ctx context.Context, value string) (*RefreshToken, error) {
	if value == "" {
		return nil, ErrTokenInvalid
	}
	token, err := s.store.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return token, nil
}

// Prune deletes tokens that expired more than retention ago.
func (s *TokenRotationService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return n, nil
}

func (s *TokenRotationService) newToken(userID, family string, rotation int, client ClientInfo, now time.Time) (*RefreshToken, error) {
	value, err := newTokenValue(s.cfg.TokenBytes)
	if err != nil {
		return nil, err
	}
	return &RefreshToken{
		ID:            uuid.NewString(),
		Value:         value,
		TokenHash:     HashToken(value),
		UserID:        userID,
		Family:        family,
		RotationCount: rotation,
		ExpiresAt:     now.Add(s.cfg.RefreshTokenTTL),
		IPAddress:     client.IP,
		UserAgent:     client.UserAgent,
		CreatedAt:     now,
	}, nil
}

// newTokenValue returns n random bytes, base64url encoded.
func newTokenValue(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
