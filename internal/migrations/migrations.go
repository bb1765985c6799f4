package migrations

import "github.com/uptrace/bun/migrate"

// Migrations collects every schema migration. Files register themselves in
// init using the "<version>_<name>.go" naming convention bun expects.
var Migrations = migrate.NewMigrations()
