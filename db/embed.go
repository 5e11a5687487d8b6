package db

import "embed"

// MigrationsFS holds the SQL migrations applied on startup and in tests.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
