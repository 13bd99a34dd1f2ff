// Package migrations embeds the SQL schema for the Postgres credential store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
