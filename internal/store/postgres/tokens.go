package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
)

var _ auth.RefreshTokenStore = (*TokenRepository)(nil)

const tokenColumns = `id, token_hash, user_id, family, rotation_count, expires_at,
	revoked_at, revoke_reason, replaced_by_token_id, ip_address, user_agent, created_at`

// TokenRepository implements auth.RefreshTokenStore on PostgreSQL.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a PostgreSQL refresh token store.
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func insertToken(ctx context.Context, ex execer, t *auth.RefreshToken) error {
	_, err := ex.ExecContext(ctx, `
		insert into refresh_tokens (id, token_hash, user_id, family, rotation_count, expires_at,
			ip_address, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.TokenHash, t.UserID, t.Family, t.RotationCount, t.ExpiresAt.UTC(),
		t.IPAddress, t.UserAgent, t.CreatedAt.UTC())
	if isForeignKeyViolation(err) {
		return auth.ErrUserNotFound
	}
	return err
}

// Create inserts a newly issued refresh token.
func (r *TokenRepository) Create(ctx context.Context, token *auth.RefreshToken) error {
	if err := insertToken(ctx, r.db, token); err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// FindByValue looks a token up by its plaintext value.
func (r *TokenRepository) FindByValue(ctx context.Context, value string) (*auth.RefreshToken, error) {
	return scanToken(r.db.QueryRowContext(ctx,
		`select `+tokenColumns+` from refresh_tokens where token_hash = $1`, auth.HashToken(value)))
}

// FindByID looks a token up by ID.
func (r *TokenRepository) FindByID(ctx context.Context, id string) (*auth.RefreshToken, error) {
	return scanToken(r.db.QueryRowContext(ctx,
		`select `+tokenColumns+` from refresh_tokens where id = $1`, id))
}

// FindByFamily returns every token of a family in rotation order.
func (r *TokenRepository) FindByFamily(ctx context.Context, family string) ([]auth.RefreshToken, error) {
	return r.list(ctx,
		`select `+tokenColumns+` from refresh_tokens where family = $1 order by rotation_count`, family)
}

// FindActiveByUser returns the user's unrevoked, unexpired tokens, newest first.
func (r *TokenRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]auth.RefreshToken, error) {
	return r.list(ctx, `
		select `+tokenColumns+` from refresh_tokens
		where user_id = $1 and revoked_at is null and expires_at > $2
		order by created_at desc
	`, userID, now.UTC())
}

// Rotate inserts successor and marks predecessor as rotated into it in one
// transaction. ErrRotationConflict means the predecessor was already revoked.
func (r *TokenRepository) Rotate(ctx context.Context, predecessor, successor *auth.RefreshToken, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if err := insertToken(ctx, tx, successor); err != nil {
		return fmt.Errorf("creating successor token: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		update refresh_tokens set revoked_at = $1, revoke_reason = $2, replaced_by_token_id = $3
		where id = $4 and revoked_at is null
	`, now.UTC(), string(auth.RevokeRotated), successor.ID, predecessor.ID)
	if err != nil {
		return fmt.Errorf("revoking predecessor token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return auth.ErrRotationConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}

	revokedAt := now.UTC()
	predecessor.RevokedAt = &revokedAt
	predecessor.RevokeReason = auth.RevokeRotated
	predecessor.ReplacedByTokenID = successor.ID
	return nil
}

// Revoke marks one token revoked, reporting false if it already was.
func (r *TokenRepository) Revoke(ctx context.Context, id string, reason auth.RevokeReason, now time.Time) (bool, error) {
	n, err := r.exec(ctx, `
		update refresh_tokens set revoked_at = $1, revoke_reason = $2
		where id = $3 and revoked_at is null
	`, now.UTC(), string(reason), id)
	if err != nil {
		return false, fmt.Errorf("revoking token: %w", err)
	}
	return n > 0, nil
}

// RevokeFamily revokes every unrevoked token in a family.
func (r *TokenRepository) RevokeFamily(ctx context.Context, family string, reason auth.RevokeReason, now time.Time) (int64, error) {
	n, err := r.exec(ctx, `
		update refresh_tokens set revoked_at = $1, revoke_reason = $2
		where family = $3 and revoked_at is null
	`, now.UTC(), string(reason), family)
	if err != nil {
		return 0, fmt.Errorf("revoking token family: %w", err)
	}
	return n, nil
}

// RevokeAllForUser revokes every unrevoked token of a user.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, reason auth.RevokeReason, now time.Time) (int64, error) {
	n, err := r.exec(ctx, `
		update refresh_tokens set revoked_at = $1, revoke_reason = $2
		where user_id = $3 and revoked_at is null
	`, now.UTC(), string(reason), userID)
	if err != nil {
		return 0, fmt.Errorf("revoking all tokens for user: %w", err)
	}
	return n, nil
}

// DeleteExpired removes tokens that expired at or before the cutoff.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.exec(ctx, `delete from refresh_tokens where expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	return n, nil
}

func (r *TokenRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *TokenRepository) list(ctx context.Context, query string, args ...any) ([]auth.RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := []auth.RefreshToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating refresh tokens: %w", err)
	}
	return tokens, nil
}

func scanToken(s scanner) (*auth.RefreshToken, error) {
	var (
		t                  auth.RefreshToken
		revokedAt          sql.NullTime
		reason, replacedBy sql.NullString
	)
	err := s.Scan(&t.ID, &t.TokenHash, &t.UserID, &t.Family, &t.RotationCount, &t.ExpiresAt,
		&revokedAt, &reason, &replacedBy, &t.IPAddress, &t.UserAgent, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrTokenNotFound
		}
		return nil, fmt.Errorf("scanning refresh token: %w", err)
	}

	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	if revokedAt.Valid {
		at := revokedAt.Time.UTC()
		t.RevokedAt = &at
	}
	t.RevokeReason = auth.RevokeReason(reason.String)
	t.ReplacedByTokenID = replacedBy.String
	return &t, nil
}
