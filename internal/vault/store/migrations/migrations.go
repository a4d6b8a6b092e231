// Package migrations embeds the store schema migrations applied by
// goose when a vault namespace is opened.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
