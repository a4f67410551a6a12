package auth

import (
	"errors"
	"testing"
	"time"
)

func TestHashToken(t *testing.T) {
	h1 := HashToken("some-token")
	h2 := HashToken("some-token")
	h3 := HashToken("other-token")

	if h1 != h2 {
		t.Error("HashToken() should be deterministic")
	}
	if h1 == h3 {
		t.Error("HashToken() should differ for different inputs")
	}
	if len(h1) != 64 {
		t.Errorf("HashToken() length = %d, want 64", len(h1))
	}
}

func TestTokenRepository_CreateAndFind(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := t.Context()
	user := seedTestUser(t, db, "find@example.com")

	expires := time.Now().UTC().Add(time.Hour)
	created := seedTestToken(t, db, user.ID, "fam-1", "value-1", expires)

	byValue, err := repo.FindByValue(ctx, "value-1")
	if err != nil {
		t.Fatalf("FindByValue() error = %v", err)
	}
	if byValue.ID != created.ID || byValue.Family != "fam-1" || byValue.UserID != user.ID {
		t.Errorf("FindByValue() = %+v", byValue)
	}
	if byValue.TokenHash != HashToken("value-1") {
		t.Error("stored hash should be the SHA-256 of the value")
	}
	if byValue.Value != "" {
		t.Error("stored tokens should not carry the plaintext value")
	}
	if byValue.IsRevoked() {
		t.Error("new token should not be revoked")
	}
	if !byValue.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", byValue.ExpiresAt, expires)
	}

	byID, err := repo.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if byID.TokenHash != byValue.TokenHash {
		t.Error("FindByID() and FindByValue() should return the same row")
	}

	if _, err := repo.FindByValue(ctx, "unknown"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("FindByValue(unknown) error = %v, want ErrTokenNotFound", err)
	}
	if _, err := repo.FindByID(ctx, "unknown"); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("FindByID(unknown) error = %v, want ErrTokenNotFound", err)
	}
}

func TestTokenRepository_DuplicateHashRejected(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	user := seedTestUser(t, db, "dup@example.com")
	seedTestToken(t, db, user.ID, "fam-1", "same", time.Now().Add(time.Hour))

	dup := &RefreshToken{
		ID:        "rt-other",
		TokenHash: HashToken("same"),
		UserID:    user.ID,
		Family:    "fam-2",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := repo.Create(t.Context(), dup); err == nil {
		t.Fatal("Create() with a duplicate token hash should fail")
	}
}

func TestTokenRepository_Rotate(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := t.Context()
	user := seedTestUser(t, db, "rotate@example.com")

	now := time.Now().UTC()
	pred := seedTestToken(t, db, user.ID, "fam-1", "t0", now.Add(time.Hour))

	succ := &RefreshToken{
		ID:            "rt-t1",
		TokenHash:     HashToken("t1"),
		UserID:        user.ID,
		Family:        "fam-1",
		RotationCount: 1,
		ExpiresAt:     now.Add(time.Hour),
		CreatedAt:     now,
	}
	if err := repo.Rotate(ctx, pred, succ, now); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if !pred.IsRevoked() || pred.ReplacedByTokenID != succ.ID {
		t.Error("Rotate() should update the in-memory predecessor")
	}

	stored, err := repo.FindByID(ctx, pred.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if !stored.IsRevoked() {
		t.Error("predecessor should be revoked")
	}
	if stored.RevokeReason != RevokeRotated {
		t.Errorf("RevokeReason = %q, want %q", stored.RevokeReason, RevokeRotated)
	}
	if stored.ReplacedByTokenID != succ.ID {
		t.Errorf("ReplacedByTokenID = %q, want %q", stored.ReplacedByTokenID, succ.ID)
	}

	next, err := repo.FindByValue(ctx, "t1")
	if err != nil {
		t.Fatalf("FindByValue(successor) error = %v", err)
	}
	if next.RotationCount != 1 || next.IsRevoked() {
		t.Errorf("successor = %+v, want active with rotation 1", next)
	}
}

func TestTokenRepository_Rotate_Conflict(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := t.Context()
	user := seedTestUser(t, db, "conflict@example.com")

	now := time.Now().UTC()
	seedTestToken(t, db, user.ID, "fam-1", "t0", now.Add(time.Hour))

	// Two callers read the token while it is still active.
	first, err := repo.FindByValue(ctx, "t0")
	if err != nil {
		t.Fatalf("FindByValue() error = %v", err)
	}
	second, err := repo.FindByValue(ctx, "t0")
	if err != nil {
		t.Fatalf("FindByValue() error = %v", err)
	}

	winner := &RefreshToken{ID: "rt-a", TokenHash: HashToken("a"), UserID: user.ID, Family: "fam-1",
		RotationCount: 1, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	loser := &RefreshToken{ID: "rt-b", TokenHash: HashToken("b"), UserID: user.ID, Family: "fam-1",
		RotationCount: 1, ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	if err := repo.Rotate(ctx, first, winner, now); err != nil {
		t.Fatalf("Rotate(first) error = %v", err)
	}
	if err := repo.Rotate(ctx, second, loser, now); !errors.Is(err, ErrRotationConflict) {
		t.Fatalf("Rotate(second) error = %v, want ErrRotationConflict", err)
	}
	if second.IsRevoked() {
		t.Error("a failed rotation should not touch the in-memory predecessor")
	}

	// The losing successor must have been rolled back.
	if _, err := repo.FindByID(ctx, loser.ID); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("FindByID(loser) error = %v, want ErrTokenNotFound", err)
	}
	family, err := repo.FindByFamily(ctx, "fam-1")
	if err != nil {
		t.Fatalf("FindByFamily() error = %v", err)
	}
	if len(family) != 2 {
		t.Errorf("family size = %d, want 2", len(family))
	}
}

func TestTokenRepository_Revoke(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := t.Context()
	user := seedTestUser(t, db, "revoke@example.com")
	tok := seedTestToken(t, db, user.ID, "fam-1", "v", time.Now().Add(time.Hour))

	changed, err := repo.Revoke(ctx, tok.ID, RevokeAdmin, time.Now())
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if !changed {
		t.Error("first Revoke() should report a change")
	}

	changed, err = repo.Revoke(ctx, tok.ID, RevokeLogout, time.Now())
	if err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}
	if changed {
		t.Error("second Revoke() should be a no-op")
	}

	stored, err := repo.FindByID(ctx, tok.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if stored.RevokeReason != RevokeAdmin {
		t.Errorf("RevokeReason = %q, want the first reason %q", stored.RevokeReason, RevokeAdmin)
	}
}

func TestTokenRepository_RevokeFamily(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := t.Context()
	user := seedTestUser(t, db, "family@example.com")

	exp := time.Now().Add(time.Hour)
	seedTestToken(t, db, user.ID, "fam-a", "a1", exp)
	seedTestToken(t, db, user.ID, "fam-a", "a2", exp)
	other := seedTestToken(t, db, user.ID, "fam-b", "b1", exp)

	n, err := repo.RevokeFamily(ctx, "fam-a", RevokeReuseDetected, time.Now())
	if err != nil {
		t.Fatalf("RevokeFamily() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RevokeFamily() = %d, want 2", n)
	}

	n, err = repo.RevokeFamily(ctx, "fam-a", RevokeReuseDetected, time.Now())
	if err != nil {
		t.Fatalf("second RevokeFamily() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second RevokeFamily() = %d, want 0", n)
	}

	stored, err := repo.FindByID(ctx, other.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if stored.IsRevoked() {
		t.Error("tokens of other families should be untouched")
	}
}

func TestTokenRepository_FindActiveByUser(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := t.Context()
	alice := seedTestUser(t, db, "alice@example.com")
	bob := seedTestUser(t, db, "bob@example.com")

	now := time.Now().UTC()
	seedTestToken(t, db, alice.ID, "fam-1", "active", now.Add(time.Hour))
	seedTestToken(t, db, alice.ID, "fam-2", "expired", now.Add(-time.Minute))
	revoked := seedTestToken(t, db, alice.ID, "fam-3", "revoked", now.Add(time.Hour))
	seedTestToken(t, db, bob.ID, "fam-4", "bobs", now.Add(time.Hour))

	if _, err := repo.Revoke(ctx, revoked.ID, RevokeAdmin, now); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	active, err := repo.FindActiveByUser(ctx, alice.ID, now)
	if err != nil {
		t.Fatalf("FindActiveByUser() error = %v", err)
	}
	if len(active) != 1 || active[0].Family != "fam-1" {
		t.Errorf("FindActiveByUser() = %+v, want only fam-1", active)
	}
}

func TestTokenRepository_RevokeAllForUser(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := t.Context()
	alice := seedTestUser(t, db, "alice@example.com")
	bob := seedTestUser(t, db, "bob@example.com")

	exp := time.Now().Add(time.Hour)
	seedTestToken(t, db, alice.ID, "fam-1", "a1", exp)
	seedTestToken(t, db, alice.ID, "fam-2", "a2", exp)
	seedTestToken(t, db, bob.ID, "fam-3", "b1", exp)

	n, err := repo.RevokeAllForUser(ctx, alice.ID, RevokePasswordChanged, time.Now())
	if err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RevokeAllForUser() = %d, want 2", n)
	}

	active, err := repo.FindActiveByUser(ctx, bob.ID, time.Now())
	if err != nil {
		t.Fatalf("FindActiveByUser() error = %v", err)
	}
	if len(active) != 1 {
		t.Errorf("bob's tokens should be untouched, got %d active", len(active))
	}
}

func TestTokenRepository_DeleteExpired(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	ctx := t.Context()
	user := seedTestUser(t, db, "prune@example.com")

	now := time.Now().UTC()
	seedTestToken(t, db, user.ID, "fam-1", "old", now.Add(-48*time.Hour))
	seedTestToken(t, db, user.ID, "fam-1", "recent", now.Add(-time.Hour))
	keep := seedTestToken(t, db, user.ID, "fam-2", "live", now.Add(time.Hour))

	n, err := repo.DeleteExpired(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", n)
	}
	if _, err := repo.FindByID(ctx, keep.ID); err != nil {
		t.Errorf("live token should survive pruning: %v", err)
	}
}

func TestRefreshToken_IsExpired(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := &RefreshToken{ExpiresAt: at}

	if tok.IsExpired(at.Add(-time.Nanosecond)) {
		t.Error("token should be valid before its expiry")
	}
	if !tok.IsExpired(at) {
		t.Error("token should be expired at the expiry instant")
	}
	if !tok.IsActive(at.Add(-time.Second)) {
		t.Error("unrevoked unexpired token should be active")
	}
	revokedAt := at.Add(-time.Hour)
	tok.RevokedAt = &revokedAt
	if tok.IsActive(at.Add(-time.Second)) {
		t.Error("revoked token should not be active")
	}
}
