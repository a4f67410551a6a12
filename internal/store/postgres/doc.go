// Package postgres implements the auth and audit repositories on
// PostgreSQL through database/sql and the pgx stdlib driver.
//
// The schema is the one applied by the postgres goose migrations. Rotation
// relies on PostgreSQL re-checking the WHERE clause of a conditional UPDATE
// after a concurrent writer commits, so the losing refresh affects no rows.
package postgres
