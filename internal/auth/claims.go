package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultAccessTTL is used when Mint is called without a TTL.
const defaultAccessTTL = 15 * time.Minute

// AccessTokenIssuer signs short-lived bearer tokens carrying identity and
// authorisation claims.
type AccessTokenIssuer interface {
	Mint(userID string, roles, permissions []string, ttl time.Duration) (string, error)
}

// Claims extends JWT standard claims with the resolved roles and permissions.
type Claims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the token carries the named permission.
func (c *Claims) HasPermission(name string) bool {
	return slices.Contains(c.Permissions, name)
}

// JWTIssuer mints and parses HS256 access tokens.
// Access tokens are validated by signature only (no DB hit).
type JWTIssuer struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewJWTIssuer creates an issuer. issuer and audience are optional; when set
// they are written into minted tokens and required when parsing.
func NewJWTIssuer(secret, issuer, audience string) *JWTIssuer {
	return &JWTIssuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// Mint creates a signed access token for userID.
func (j *JWTIssuer) Mint(userID string, roles, permissions []string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("minting access token: empty subject")
	}
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}

	now := j.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Roles:       nonNil(roles),
		Permissions: nonNil(permissions),
	}
	if j.audience != "" {
		claims.Audience = jwt.ClaimStrings{j.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Parse validates and parses an access token, returning its claims.
// It checks the signature, expiry, issuer, audience and subject.
func (j *JWTIssuer) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	if j.audience != "" {
		opts = append(opts, jwt.WithAudience(j.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
