// Package migrations holds the schema migrations compiled into pgist.
// Importing it registers the Go migrations; FS serves every migration file
// for discovery and for SQL migrations.
package migrations

import "embed"

// FS holds the migration files of this package.
//
//go:embed *.go *.sql
var FS embed.FS
