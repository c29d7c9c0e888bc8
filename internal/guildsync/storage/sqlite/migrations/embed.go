// Package migrations embeds the guildsync SQLite schema files.
package migrations

import "embed"

// FS contains the SQL migration files applied at startup.
//
//go:embed *.sql
var FS embed.FS
