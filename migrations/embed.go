// Package migrations embeds the SQL migration files into the sfcd binary
// and registers them with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
