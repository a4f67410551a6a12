package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// RefreshTokenStore is the persistence contract for refresh-token records.
//
// Rotate is the only write that may consume an active token. It must
// insert the successor and revoke the predecessor in one transaction, and
// report ErrRotationConflict when the predecessor was already revoked.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByValue(ctx context.Context, value string) (*RefreshToken, error)
	FindByID(ctx context.Context, id string) (*RefreshToken, error)
	FindByFamily(ctx context.Context, family string) ([]RefreshToken, error)
	FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]RefreshToken, error)
	Rotate(ctx context.Context, predecessor, successor *RefreshToken, now time.Time) error
	Revoke(ctx context.Context, id string, reason RevokeReason, now time.Time) (bool, error)
	RevokeFamily(ctx context.Context, family string, reason RevokeReason, now time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string, reason RevokeReason, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw tokens are never stored, only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

const tokenColumns = `id, token_hash, user_id, family, rotation_count, expires_at,
	revoked_at, revoke_reason, replaced_by_token_id, ip_address, user_agent, created_at`

// SQLiteTokenRepository implements RefreshTokenStore using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed refresh token store.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, ex execer, t *RefreshToken) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token_hash, user_id, family, rotation_count, expires_at,
			revoked_at, revoke_reason, replaced_by_token_id, ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, ?, ?)`,
		t.ID, t.TokenHash, t.UserID, t.Family, t.RotationCount, formatTime(t.ExpiresAt),
		t.IPAddress, t.UserAgent, formatTime(t.CreatedAt),
	)
	return err
}

// Create inserts a newly issued refresh token.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	if err := insertToken(ctx, r.db, token); err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

// FindByValue looks a token up by its plaintext value.
func (r *SQLiteTokenRepository) FindByValue(ctx context.Context, value string) (*RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token_hash = ?", HashToken(value))
	return scanToken(row)
}

// FindByID looks a token up by its ID.
func (r *SQLiteTokenRepository) FindByID(ctx context.Context, id string) (*RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE id = ?", id)
	return scanToken(row)
}

// FindByFamily returns every token of a family in rotation order.
func (r *SQLiteTokenRepository) FindByFamily(ctx context.Context, family string) ([]RefreshToken, error) {
	return r.list(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE family = ? ORDER BY rotation_count ASC", family)
}

// FindActiveByUser returns the user's unrevoked, unexpired tokens, newest first.
func (r *SQLiteTokenRepository) FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]RefreshToken, error) {
	return r.list(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens
		 WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC`, userID, formatTime(now))
}

// Rotate atomically inserts successor and marks predecessor as rotated into it.
// The predecessor update is conditional on it still being unrevoked; if another
// rotation or revocation won the race the transaction is rolled back and
// ErrRotationConflict is returned.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, predecessor, successor *RefreshToken, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if err := insertToken(ctx, tx, successor); err != nil {
		return fmt.Errorf("creating successor token: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?, revoke_reason = ?, replaced_by_token_id = ?
		 WHERE id = ? AND revoked_at IS NULL`,
		formatTime(now), string(RevokeRotated), successor.ID, predecessor.ID)
	if err != nil {
		return fmt.Errorf("revoking predecessor token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrRotationConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}

	revokedAt := now.UTC()
	predecessor.RevokedAt = &revokedAt
	predecessor.RevokeReason = RevokeRotated
	predecessor.ReplacedByTokenID = successor.ID
	return nil
}

// Revoke marks a single token as revoked. It reports false when the token
// was already revoked or does not exist.
func (r *SQLiteTokenRepository) Revoke(ctx context.Context, id string, reason RevokeReason, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ?, revoke_reason = ? WHERE id = ? AND revoked_at IS NULL",
		formatTime(now), string(reason), id)
	if err != nil {
		return false, fmt.Errorf("revoking token: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n > 0, nil
}

// RevokeFamily revokes every unrevoked token in a family.
func (r *SQLiteTokenRepository) RevokeFamily(ctx context.Context, family string, reason RevokeReason, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ?, revoke_reason = ? WHERE family = ? AND revoked_at IS NULL",
		formatTime(now), string(reason), family)
	if err != nil {
		return 0, fmt.Errorf("revoking token family: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// RevokeAllForUser revokes every unrevoked token of a user.
// Used when changing password or disabling the account.
func (r *SQLiteTokenRepository) RevokeAllForUser(ctx context.Context, userID string, reason RevokeReason, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ?, revoke_reason = ? WHERE user_id = ? AND revoked_at IS NULL",
		formatTime(now), string(reason), userID)
	if err != nil {
		return 0, fmt.Errorf("revoking all tokens for user: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

// DeleteExpired removes tokens that expired before the cutoff.
// Rotation links into deleted rows are cleared by the foreign key.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

func (r *SQLiteTokenRepository) list(ctx context.Context, query string, args ...any) ([]RefreshToken, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := []RefreshToken{}
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

func scanToken(s scanner) (*RefreshToken, error) {
	var t RefreshToken
	var expiresAt, createdAt string
	var revokedAt, reason, replacedBy sql.NullString

	err := s.Scan(&t.ID, &t.TokenHash, &t.UserID, &t.Family, &t.RotationCount, &expiresAt,
		&revokedAt, &reason, &replacedBy, &t.IPAddress, &t.UserAgent, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("scanning refresh token: %w", err)
	}

	t.ExpiresAt = parseTime(expiresAt)
	t.CreatedAt = parseTime(createdAt)
	t.RevokedAt = parseNullTime(revokedAt)
	t.RevokeReason = RevokeReason(reason.String)
	t.ReplacedByTokenID = replacedBy.String
	return &t, nil
}
