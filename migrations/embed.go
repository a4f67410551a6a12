// Package migrations embeds the goose SQL migrations into the binary.
//
// Each driver has its own directory with matching version numbers:
// sqlite/ and postgres/. Importing this package registers them with
// the database package.
package migrations

import (
	"embed"

	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
}
