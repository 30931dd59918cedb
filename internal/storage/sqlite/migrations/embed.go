package migrations

import "embed"

// FS contains embedded SQLite migrations for attune storage.
//
//go:embed *.sql
var FS embed.FS
