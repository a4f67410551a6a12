package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/DenisZakharchuk/onward-sub002/internal/ids"
)

// Password length bounds, in characters.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// TokenTypeBearer is the token_type reported with issued access tokens.
const TokenTypeBearer = "Bearer"

// ServiceConfig holds AuthenticationService settings.
type ServiceConfig struct {
	AccessTokenTTL time.Duration
	// DefaultRole is assigned on registration when a role of that name exists.
	DefaultRole string
}

// ServiceDeps holds the collaborators of a Service.
type ServiceDeps struct {
	Users    UserRepository
	Tokens   RefreshTokenStore
	RBAC     RBACRepository
	Resolver *RolePermissionResolver
	Rotation *TokenRotationService
	Hasher   *PasswordHasher
	Issuer   AccessTokenIssuer
	Events   EventRecorder // optional
	Logger   *slog.Logger
	Config   ServiceConfig
}

// Service is the authentication service: login, refresh, logout and
// authorisation checks, plus account lifecycle operations.
type Service struct {
	users    UserRepository
	tokens   RefreshTokenStore
	rbac     RBACRepository
	resolver *RolePermissionResolver
	rotation *TokenRotationService
	hasher   *PasswordHasher
	issuer   AccessTokenIssuer
	events   EventRecorder
	logger   *slog.Logger
	cfg      ServiceConfig
	now      func() time.Time

	// dummyHash is verified against when the email is unknown so the
	// response time does not reveal whether an account exists.
	dummyHash string
}

// NewService validates deps and creates the service.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Users == nil || deps.Tokens == nil || deps.RBAC == nil {
		return nil, fmt.Errorf("auth service: users, tokens and rbac repositories are required")
	}
	if deps.Resolver == nil || deps.Rotation == nil || deps.Hasher == nil || deps.Issuer == nil {
		return nil, fmt.Errorf("auth service: resolver, rotation, hasher and issuer are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("auth service: logger is required")
	}
	if deps.Config.AccessTokenTTL <= 0 {
		return nil, fmt.Errorf("auth service: access token TTL must be positive")
	}

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("auth service: generating dummy password: %w", err)
	}
	dummy, err := deps.Hasher.HashPassword(hex.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("auth service: hashing dummy password: %w", err)
	}

	events := deps.Events
	if events == nil {
		events = nopRecorder{}
	}

	return &Service{
		users:     deps.Users,
		tokens:    deps.Tokens,
		rbac:      deps.RBAC,
		resolver:  deps.Resolver,
		rotation:  deps.Rotation,
		hasher:    deps.Hasher,
		issuer:    deps.Issuer,
		events:    events,
		logger:    deps.Logger,
		cfg:       deps.Config,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Login authenticates email and password and starts a new token family.
//
// Unknown email and wrong password both yield ErrAuthenticationFailed.
// A disabled account yields ErrAccountDisabled.
func (s *Service) Login(ctx context.Context, email, password string, client ClientInfo) (_ *LoginResponse, err error) {
	ctx, span := tracer.Start(ctx, "Service.Login")
	defer func() { endSpan(span, err) }()

	email = normaliseEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.VerifyPassword(password, s.dummyHash)
			s.loginFailed(ctx, "", email, client)
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("%w: finding user: %w", ErrPersistence, err)
	}
	span.SetAttributes(attribute.String("auth.user_id", user.ID))

	if !user.IsActive {
		s.hasher.VerifyPassword(password, user.PasswordHash)
		s.loginFailed(ctx, user.ID, email, client)
		return nil, ErrAccountDisabled
	}
	if !s.hasher.VerifyPassword(password, user.PasswordHash) {
		s.loginFailed(ctx, user.ID, email, client)
		return nil, ErrAuthenticationFailed
	}

	s.maybeRehash(ctx, user, password)

	principal, err := s.resolver.Load(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	access, err := s.issuer.Mint(user.ID, principal.Roles, principal.Permissions, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("minting access token: %w", err)
	}
	refresh, err := s.rotation.IssueFamily(ctx, user.ID, client)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "family", refresh.Family, "ip", client.IP)
	s.events.Record(ctx, SecurityEvent{
		Type:       EventLoginSucceeded,
		UserID:     user.ID,
		Email:      user.Email,
		Family:     refresh.Family,
		TokenID:    refresh.ID,
		IPAddress:  client.IP,
		UserAgent:  client.UserAgent,
		OccurredAt: s.now(),
	})

	return &LoginResponse{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  access,
		RefreshToken: refresh.Value,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL / time.Second),
	}, nil
}

func (s *Service) loginFailed(ctx context.Context, userID, email string, client ClientInfo) {
	s.logger.Info("login failed", "user_id", userID, "ip", client.IP)
	s.events.Record(ctx, SecurityEvent{
		Type:       EventLoginFailed,
		UserID:     userID,
		Email:      email,
		IPAddress:  client.IP,
		UserAgent:  client.UserAgent,
		OccurredAt: s.now(),
	})
}

// maybeRehash upgrades a hash made with outdated parameters. Failure is
// logged and does not fail the login.
func (s *Service) maybeRehash(ctx context.Context, user *User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		s.logger.Error("rehashing password", "user_id", user.ID, "error", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		s.logger.Error("storing rehashed password", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	s.logger.Info("password hash upgraded", "user_id", user.ID)
}

// Refresh rotates refreshToken and returns a new token pair whose access
// token carries the user's current roles and permissions.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*LoginResponse, error) {
	rot, err := s.rotation.RefreshToken(ctx, refreshToken, client)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		UserID:       rot.User.ID,
		Email:        rot.User.Email,
		AccessToken:  rot.AccessToken,
		RefreshToken: rot.Successor.Value,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(rot.ExpiresIn / time.Second),
	}, nil
}

// Logout revokes every active token family of userID.
func (s *Service) Logout(ctx context.Context, userID string) (err error) {
	ctx, span := tracer.Start(ctx, "Service.Logout")
	defer func() { endSpan(span, err) }()

	families, err := s.activeFamilies(ctx, userID)
	if err != nil {
		return err
	}
	var revoked int64
	for _, family := range families {
		n, err := s.rotation.RevokeTokenFamily(ctx, family, RevokeLogout)
		if err != nil {
			return err
		}
		revoked += n
	}

	s.logger.Info("user logged out", "user_id", userID, "families", len(families), "revoked", revoked)
	s.events.Record(ctx, SecurityEvent{
		Type:       EventLogout,
		UserID:     userID,
		Reason:     RevokeLogout,
		Revoked:    revoked,
		OccurredAt: s.now(),
	})
	return nil
}

// activeFamilies returns the distinct families with an active token.
func (s *Service) activeFamilies(ctx context.Context, userID string) ([]string, error) {
	tokens, err := s.tokens.FindActiveByUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: listing active tokens: %w", ErrPersistence, err)
	}
	seen := make(map[string]struct{}, len(tokens))
	families := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t.Family]; ok {
			continue
		}
		seen[t.Family] = struct{}{}
		families = append(families, t.Family)
	}
	return families, nil
}

// Authorize reports whether userID holds resource:action. Resolution
// failures deny.
func (s *Service) Authorize(ctx context.Context, userID, resource, action string) bool {
	return s.resolver.UserHasPermission(ctx, userID, resource, action)
}

// RegisterRequest holds the fields of a new account.
type RegisterRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// Register creates an active account and assigns the default role.
// A duplicate email yields ErrValidation wrapping ErrEmailExists.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email, err := validateEmail(req.Email)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrValidation)
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, fmt.Errorf("%w: %w", ErrValidation, ErrEmailExists)
		}
		return nil, fmt.Errorf("%w: creating user: %w", ErrPersistence, err)
	}

	if s.cfg.DefaultRole != "" {
		if err := s.GrantRole(ctx, user.ID, s.cfg.DefaultRole); err != nil {
			if !errors.Is(err, ErrRoleNotFound) {
				return nil, err
			}
			s.logger.Warn("default role not found, user has no roles",
				"user_id", user.ID, "role", s.cfg.DefaultRole)
		}
	}

	s.logger.Info("user registered", "user_id", user.ID)
	s.events.Record(ctx, SecurityEvent{
		Type:       EventUserRegistered,
		UserID:     user.ID,
		Email:      user.Email,
		OccurredAt: s.now(),
	})
	return user, nil
}

// GrantRole assigns the named role to userID.
func (s *Service) GrantRole(ctx context.Context, userID, roleName string) error {
	role, err := s.rbac.GetRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return err
		}
		return fmt.Errorf("%w: finding role: %w", ErrPersistence, err)
	}
	if err := s.rbac.AssignRole(ctx, userID, role.ID); err != nil {
		return fmt.Errorf("%w: assigning role: %w", ErrPersistence, err)
	}
	s.resolver.Invalidate(userID)
	return nil
}

// ChangePassword replaces the password of userID after verifying the
// current one, then revokes every token family of the user.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string, client ClientInfo) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrAuthenticationFailed
		}
		return fmt.Errorf("%w: finding user: %w", ErrPersistence, err)
	}
	if !user.IsActive {
		return ErrAccountDisabled
	}
	if !s.hasher.VerifyPassword(current, user.PasswordHash) {
		return ErrAuthenticationFailed
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	hash, err := s.hasher.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	// Sessions go first so a failed write never leaves the new password
	// alongside live refresh tokens.
	now := s.now()
	revoked, err := s.tokens.RevokeAllForUser(ctx, userID, RevokePasswordChanged, now)
	if err != nil {
		return fmt.Errorf("%w: revoking tokens: %w", ErrPersistence, err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("%w: storing password: %w", ErrPersistence, err)
	}

	s.logger.Info("password changed", "user_id", userID, "revoked", revoked, "ip", client.IP)
	s.events.Record(ctx, SecurityEvent{
		Type:       EventPasswordChanged,
		UserID:     userID,
		Reason:     RevokePasswordChanged,
		Revoked:    revoked,
		IPAddress:  client.IP,
		UserAgent:  client.UserAgent,
		OccurredAt: now,
	})
	return nil
}

// SetActive enables or disables userID. Disabling revokes all tokens.
func (s *Service) SetActive(ctx context.Context, userID string, active bool) error {
	if err := s.users.SetActive(ctx, userID, active); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("%w: updating user: %w", ErrPersistence, err)
	}
	s.resolver.Invalidate(userID)
	if active {
		s.logger.Info("user enabled", "user_id", userID)
		return nil
	}

	now := s.now()
	revoked, err := s.tokens.RevokeAllForUser(ctx, userID, RevokeAccountDisabled, now)
	if err != nil {
		return fmt.Errorf("%w: revoking tokens: %w", ErrPersistence, err)
	}
	s.logger.Info("user disabled", "user_id", userID, "revoked", revoked)
	s.events.Record(ctx, SecurityEvent{
		Type:       EventAccountDisabled,
		UserID:     userID,
		Reason:     RevokeAccountDisabled,
		Revoked:    revoked,
		OccurredAt: now,
	})
	return nil
}

// Sessions lists the active token families of userID, newest first.
func (s *Service) Sessions(ctx context.Context, userID string) ([]Session, error) {
	tokens, err := s.tokens.FindActiveByUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: listing active tokens: %w", ErrPersistence, err)
	}

	byFamily := make(map[string]Session, len(tokens))
	for _, t := range tokens {
		if prev, ok := byFamily[t.Family]; ok && prev.RotationCount >= t.RotationCount {
			continue
		}
		started := t.CreatedAt
		if ts, ok := ids.Time(t.Family); ok {
			started = ts
		}
		byFamily[t.Family] = Session{
			Family:        t.Family,
			TokenID:       t.ID,
			RotationCount: t.RotationCount,
			IPAddress:     t.IPAddress,
			UserAgent:     t.UserAgent,
			StartedAt:     started,
			LastUsedAt:    t.CreatedAt,
			ExpiresAt:     t.ExpiresAt,
		}
	}

	sessions := make([]Session, 0, len(byFamily))
	for _, sess := range byFamily {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastUsedAt.After(sessions[j].LastUsedAt)
	})
	return sessions, nil
}

// RevokeSession revokes one family owned by userID. A family that does
// not exist or belongs to someone else yields ErrTokenInvalid.
func (s *Service) RevokeSession(ctx context.Context, userID, family string) error {
	tokens, err := s.tokens.FindByFamily(ctx, family)
	if err != nil {
		return fmt.Errorf("%w: finding family: %w", ErrPersistence, err)
	}
	if len(tokens) == 0 || tokens[0].UserID != userID {
		return ErrTokenInvalid
	}

	revoked, err := s.rotation.RevokeTokenFamily(ctx, family, RevokeSessionRevoked)
	if err != nil {
		return err
	}
	s.events.Record(ctx, SecurityEvent{
		Type:       EventSessionRevoked,
		UserID:     userID,
		Family:     family,
		Reason:     RevokeSessionRevoked,
		Revoked:    revoked,
		OccurredAt: s.now(),
	})
	return nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(raw string) (string, error) {
	email := normaliseEmail(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return email, nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if n > MaxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d characters", ErrValidation, MaxPasswordLength)
	}
	return nil
}
