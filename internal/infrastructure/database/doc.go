// Package database provides SQLite and PostgreSQL connectivity for the
// onward auth service.
//
// This package manages:
//   - SQLite connections with WAL mode and immediate write transactions
//   - PostgreSQL connections through the pgx stdlib driver
//   - Schema migrations via goose, one migration set per driver
//   - Connection pooling and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - SQLite file permissions are set to 0600 (owner read/write only)
//   - Refresh tokens are stored as SHA-256 digests, never in plaintext
//
// Usage:
//
//	db, err := database.Open(database.Config{Driver: "sqlite", Path: "./data/onward.db", WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Migrations are additive. Each file carries goose Up and Down sections,
// and the SQLite and PostgreSQL sets keep identical version numbers.
package database
