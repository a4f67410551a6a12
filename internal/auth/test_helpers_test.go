package auth

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/database"
	_ "github.com/DenisZakharchuk/onward-sub002/migrations"
)

const testPassword = "correct-horse-battery"

// testDB creates a temporary SQLite database with the embedded migrations
// applied. The database file is removed when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// A file is used so WAL mode works (in-memory doesn't support it)
	db, err := database.Open(database.Config{
		Driver:      database.DriverSQLite,
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

// testHashParams keeps Argon2id cheap so tests stay fast.
func testHashParams() HashParams {
	return HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// seedTestUser inserts an active user with testPassword and returns it.
func seedTestUser(t *testing.T, db *sql.DB, email string) *User {
	t.Helper()

	hash, err := NewPasswordHasher(testHashParams()).HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := &User{
		Email:        email,
		FullName:     email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := NewUserRepository(db).Create(t.Context(), user); err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	return user
}

// seedTestToken inserts an active token for userID with the given value.
func seedTestToken(t *testing.T, db *sql.DB, userID, family, value string, expiresAt time.Time) *RefreshToken {
	t.Helper()

	token := &RefreshToken{
		ID:        "rt-" + value,
		Value:     value,
		TokenHash: HashToken(value),
		UserID:    userID,
		Family:    family,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := NewTokenRepository(db).Create(t.Context(), token); err != nil {
		t.Fatalf("creating test token: %v", err)
	}
	return token
}

// eventLog captures recorded security events.
type eventLog struct {
	mu     sync.Mutex
	events []SecurityEvent
}

func (l *eventLog) Record(_ context.Context, ev SecurityEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(typ EventType) []SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []SecurityEvent
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// testEnv wires the auth components over one test database.
type testEnv struct {
	db       *sql.DB
	users    *SQLiteUserRepository
	tokens   *SQLiteTokenRepository
	rbac     *SQLiteRBACRepository
	resolver *RolePermissionResolver
	issuer   *JWTIssuer
	rotation *TokenRotationService
	service  *Service
	events   *eventLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testDB(t)
	env := &testEnv{
		db:     db,
		users:  NewUserRepository(db),
		tokens: NewTokenRepository(db),
		rbac:   NewRBACRepository(db),
		issuer: NewJWTIssuer(testJWTSecret, "onward", "onward-api"),
		events: &eventLog{},
	}
	env.resolver = NewRolePermissionResolver(env.rbac, testLogger(), 0)

	if err := SeedRBAC(t.Context(), env.rbac, testLogger()); err != nil {
		t.Fatalf("SeedRBAC() error = %v", err)
	}

	rotation, err := NewTokenRotationService(RotationDeps{
		Store:    env.tokens,
		Users:    env.users,
		Resolver: env.resolver,
		Issuer:   env.issuer,
		Events:   env.events,
		Logger:   testLogger(),
		Config: RotationConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
			TokenBytes:      32,
		},
	})
	if err != nil {
		t.Fatalf("NewTokenRotationService() error = %v", err)
	}
	env.rotation = rotation

	svc, err := NewService(ServiceDeps{
		Users:    env.users,
		Tokens:   env.tokens,
		RBAC:     env.rbac,
		Resolver: env.resolver,
		Rotation: rotation,
		Hasher:   NewPasswordHasher(testHashParams()),
		Issuer:   env.issuer,
		Events:   env.events,
		Logger:   testLogger(),
		Config:   ServiceConfig{AccessTokenTTL: 15 * time.Minute, DefaultRole: RoleUser},
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	env.service = svc
	return env
}

// login signs an existing user in with testPassword.
func (e *testEnv) login(t *testing.T, email string) *LoginResponse {
	t.Helper()
	resp, err := e.service.Login(t.Context(), email, testPassword, ClientInfo{IP: "192.0.2.10", UserAgent: "test"})
	if err != nil {
		t.Fatalf("Login(%s) error = %v", email, err)
	}
	return resp
}
