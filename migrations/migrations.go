// Package migrations carries the loyalty store schema inside the daemon binary.
package migrations

import "embed"

// FS holds the ordered SQL migration files.
//
//go:embed *.sql
var FS embed.FS
