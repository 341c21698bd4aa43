// Package migrations embeds the SQL schema for accounts, sessions and the
// activity log. Importing it registers the files with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/homey-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
