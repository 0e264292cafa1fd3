// Package migrations holds the report store schema, embedded into the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
