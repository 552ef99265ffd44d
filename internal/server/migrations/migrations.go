// Package migrations embeds the goose SQL migrations of the membership schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
