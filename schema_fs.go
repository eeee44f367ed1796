package webhookguard

import (
	"embed"
	"io/fs"
)

// The migration tree carries the postgres DDL at its root and the sqlite
// variant under sqlite/.
//
//go:embed data/sql/migrations
var schemaFS embed.FS

// SchemaFS returns the embedded webhook guard schema migrations.
func SchemaFS() fs.FS {
	return schemaFS
}
