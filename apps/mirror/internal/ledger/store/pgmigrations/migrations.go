// Package pgmigrations embeds the SQL migrations for the Postgres ledger.
package pgmigrations

import "embed"

// FS holds the *.sql migration files.
//
//go:embed *.sql
var FS embed.FS
