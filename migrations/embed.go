// Package migrations embeds the registry schema into the binary.
package migrations

import "embed"

// FS holds the numbered SQL migrations applied by database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
