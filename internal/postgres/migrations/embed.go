// Package migrations embeds the SQL migration files executed by goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
