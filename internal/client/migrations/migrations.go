// Package migrations embeds the client Local Store schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
