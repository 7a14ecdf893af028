// Package migrations embeds the SQL migration files applied by goose
// at store initialization.
package migrations

import "embed"

// FS contains all SQL migration files.
//
//go:embed *.sql
var FS embed.FS
