// Package schema embeds the sqlite migrations for the VFS snapshot
// database so golang-migrate can drive them without touching the host
// filesystem, using the same //go:embed db/schema.sql approach.
package schema

import "embed"

//go:embed *.sql
var FS embed.FS
