package migrations

import (
	"context"
	"errors"
	"io/fs"
	"testing"
)

func TestLoad_ExposesBothDialects(t *testing.T) {
	set, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for dialect, fsys := range map[string]fs.FS{DialectPostgres: set.Postgres, DialectSQLite: set.SQLite} {
		if fsys == nil {
			t.Fatalf("missing %s filesystem", dialect)
		}
		matches, err := fs.Glob(fsys, "*.up.sql")
		if err != nil {
			t.Fatalf("glob %s: %v", dialect, err)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s up migrations, got none", dialect)
		}
	}
}

func TestSet_ForDialect(t *testing.T) {
	set, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := set.ForDialect(" Postgres "); err != nil {
		t.Fatalf("expected dialect lookup to normalize, got %v", err)
	}
	if _, err := set.ForDialect("mysql"); err == nil {
		t.Fatalf("expected unknown dialect to fail")
	}
}

func TestApply_InvokesRequestedDialectsOnly(t *testing.T) {
	var dialects []string
	err := Apply(context.Background(), func(_ context.Context, dialect string, fsys fs.FS) error {
		if fsys == nil {
			t.Fatalf("nil filesystem for %s", dialect)
		}
		dialects = append(dialects, dialect)
		return nil
	}, DialectSQLite)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(dialects) != 1 || dialects[0] != DialectSQLite {
		t.Fatalf("expected only sqlite, got %v", dialects)
	}
}

func TestApply_DefaultsToBothDialects(t *testing.T) {
	seen := map[string]bool{}
	err := Apply(context.Background(), func(_ context.Context, dialect string, _ fs.FS) error {
		seen[dialect] = true
		return nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !seen[DialectPostgres] || !seen[DialectSQLite] {
		t.Fatalf("expected both dialects applied, got %v", seen)
	}
}

func TestApply_PropagatesCallbackFailure(t *testing.T) {
	cause := errors.New("runner rejected migrations")
	err := Apply(context.Background(), func(context.Context, string, fs.FS) error {
		return cause
	}, DialectSQLite)
	if !errors.Is(err, cause) {
		t.Fatalf("expected callback failure to propagate, got %v", err)
	}
}

func TestApply_RequiresCallback(t *testing.T) {
	if err := Apply(context.Background(), nil); err == nil {
		t.Fatalf("expected nil apply function to fail")
	}
}
