package database

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed testdata/sqlite/*.sql
var testMigrationsFS embed.FS

// useTestMigrations points MigrationsFS at fsys for the duration of the test.
func useTestMigrations(t *testing.T, fsys fs.FS) {
	t.Helper()
	orig := MigrationsFS
	MigrationsFS = fsys
	t.Cleanup(func() { MigrationsFS = orig })
}

func testdataMigrations(t *testing.T) fs.FS {
	t.Helper()
	sub, err := fs.Sub(testMigrationsFS, "testdata")
	if err != nil {
		t.Fatalf("fs.Sub() error = %v", err)
	}
	return sub
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	useTestMigrations(t, testdataMigrations(t))

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if !tableExists(t, db, "test_users") || !tableExists(t, db, "test_sessions") {
		t.Fatal("migrated tables not created")
	}

	statuses, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(statuses))
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %d (%s) not applied", s.Version, s.Name)
		}
	}

	// Running again should be idempotent
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrateDown verifies that only the latest migration is rolled back.
func TestMigrateDown(t *testing.T) {
	useTestMigrations(t, testdataMigrations(t))

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_sessions") {
		t.Error("table test_sessions should have been dropped")
	}
	if !tableExists(t, db, "test_users") {
		t.Error("table test_users should still exist")
	}

	statuses, err := db.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if !statuses[0].Applied || statuses[1].Applied {
		t.Errorf("unexpected status after rollback: %+v", statuses)
	}
}

// TestMigrateDown_NothingApplied verifies rollback on a fresh database is a no-op.
func TestMigrateDown_NothingApplied(t *testing.T) {
	useTestMigrations(t, testdataMigrations(t))

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.MigrateDown(context.Background()); err != nil {
		t.Fatalf("MigrateDown() on fresh database error = %v", err)
	}
}

// TestMigrateNoMigrations verifies behaviour with no migrations.
func TestMigrateNoMigrations(t *testing.T) {
	useTestMigrations(t, fstest.MapFS{})

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	err := db.Migrate(context.Background())
	if !errors.Is(err, goose.ErrNoMigrations) {
		t.Fatalf("Migrate() error = %v, want ErrNoMigrations", err)
	}
}

// TestMigrateNilFS verifies an unset MigrationsFS is reported.
func TestMigrateNilFS(t *testing.T) {
	useTestMigrations(t, nil)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); !errors.Is(err, goose.ErrNoMigrations) {
		t.Fatalf("Migrate() error = %v, want ErrNoMigrations", err)
	}
}

// TestGetMigrationStatus verifies status reporting before anything is applied.
func TestGetMigrationStatus(t *testing.T) {
	useTestMigrations(t, testdataMigrations(t))

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	statuses, err := db.GetMigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(statuses))
	}
	if statuses[0].Version != 1 || statuses[0].Name != "00001_create_test_users.sql" {
		t.Errorf("statuses[0] = %+v", statuses[0])
	}
	for _, s := range statuses {
		if s.Applied {
			t.Errorf("migration %d should be pending", s.Version)
		}
	}
}
