package auth

import (
	"testing"
	"time"
)

// ─── Password hashing (Argon2id, intentionally slow) ────────────────

func BenchmarkHashPassword(b *testing.B) {
	h := NewPasswordHasher(DefaultHashParams())
	for b.Loop() {
		h.HashPassword("correct-horse-battery-staple") //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	h := NewPasswordHasher(DefaultHashParams())
	hash, err := h.HashPassword("correct-horse-battery-staple")
	if err != nil {
		b.Fatalf("HashPassword: %v", err)
	}

	for b.Loop() {
		h.VerifyPassword("correct-horse-battery-staple", hash)
	}
}

// ─── Access tokens (per-request hot path) ───────────────────────────

func BenchmarkMint(b *testing.B) {
	issuer := NewJWTIssuer(testJWTSecret, "onward", "onward-api")
	perms := []string{"users:read", "sessions:read", "sessions:revoke"}

	for b.Loop() {
		issuer.Mint("usr-bench", []string{"user"}, perms, 15*time.Minute) //nolint:errcheck // benchmark
	}
}

func BenchmarkParse(b *testing.B) {
	issuer := NewJWTIssuer(testJWTSecret, "onward", "onward-api")
	token, err := issuer.Mint("usr-bench", []string{"user"}, []string{"sessions:read"}, 15*time.Minute)
	if err != nil {
		b.Fatalf("Mint: %v", err)
	}

	for b.Loop() {
		issuer.Parse(token) //nolint:errcheck // benchmark
	}
}

// ─── Refresh tokens ─────────────────────────────────────────────────

func BenchmarkNewTokenValue(b *testing.B) {
	for b.Loop() {
		newTokenValue(32) //nolint:errcheck // benchmark
	}
}

func BenchmarkHashToken(b *testing.B) {
	value, err := newTokenValue(32)
	if err != nil {
		b.Fatalf("newTokenValue: %v", err)
	}

	for b.Loop() {
		HashToken(value)
	}
}
