// Package migrations carries the embedded SQL schema migrations applied by
// goose on startup and by the standalone migrate command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
