package migrations

import "embed"

// FS contains embedded SQLite migrations for auction storage.
//
//go:embed *.sql
var FS embed.FS
