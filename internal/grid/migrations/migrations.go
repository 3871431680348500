// Package migrations embeds the goose migrations for the SQL grid backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
