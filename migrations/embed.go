// Package migrations carries the SQLite schema scripts applied at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
