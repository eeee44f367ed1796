// Package migrations hands the embedded webhook guard schema to a host's
// migration runner, one dialect at a time. The guard ships exactly two
// dialects: postgres DDL at the tree root and a sqlite variant beneath it.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	webhookguard "github.com/goliatone/go-webhook-guard"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const treeRoot = "data/sql/migrations"

// Set holds the per-dialect migration filesystems, each rooted at its own
// *.up.sql / *.down.sql files.
type Set struct {
	Postgres fs.FS
	SQLite   fs.FS
}

// Load splits the embedded tree into per-dialect filesystems and refuses a
// tree with no up migrations, which would leave a fresh database without
// the attempts and claims tables.
func Load() (Set, error) {
	root, err := fs.Sub(webhookguard.SchemaFS(), treeRoot)
	if err != nil {
		return Set{}, fmt.Errorf("migrations: embedded tree missing %s: %w", treeRoot, err)
	}
	sqlite, err := fs.Sub(root, "sqlite")
	if err != nil {
		return Set{}, fmt.Errorf("migrations: embedded tree missing sqlite variant: %w", err)
	}

	set := Set{Postgres: root, SQLite: sqlite}
	for dialect, fsys := range map[string]fs.FS{DialectPostgres: root, DialectSQLite: sqlite} {
		matches, err := fs.Glob(fsys, "*.up.sql")
		if err != nil {
			return Set{}, fmt.Errorf("migrations: scan %s migrations: %w", dialect, err)
		}
		if len(matches) == 0 {
			return Set{}, fmt.Errorf("migrations: no %s up migrations embedded", dialect)
		}
	}
	return set, nil
}

// ForDialect returns the filesystem for one dialect.
func (s Set) ForDialect(dialect string) (fs.FS, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectPostgres:
		return s.Postgres, nil
	case DialectSQLite:
		return s.SQLite, nil
	default:
		return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
	}
}

// ApplyFunc receives one dialect's migrations, typically forwarding them to
// go-persistence-bun's RegisterSQLMigrations.
type ApplyFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// Apply invokes fn once per requested dialect, defaulting to both. A host
// normally applies only the dialect its database speaks.
func Apply(ctx context.Context, fn ApplyFunc, dialects ...string) error {
	if fn == nil {
		return fmt.Errorf("migrations: apply function is required")
	}
	set, err := Load()
	if err != nil {
		return err
	}
	if len(dialects) == 0 {
		dialects = []string{DialectPostgres, DialectSQLite}
	}
	for _, dialect := range dialects {
		fsys, err := set.ForDialect(dialect)
		if err != nil {
			return err
		}
		if err := fn(ctx, strings.ToLower(strings.TrimSpace(dialect)), fsys); err != nil {
			return fmt.Errorf("migrations: apply %s: %w", dialect, err)
		}
	}
	return nil
}
