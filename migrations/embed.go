// Package migrations embeds the schema migrations applied by cmd/migrate.
package migrations

import "embed"

// FS holds NNNN_name.up.sql / NNNN_name.down.sql pairs.
//
//go:embed *.sql
var FS embed.FS
