package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	defaultPingTimeout = 5 * time.Second
)

// ConnectionConfig satisfies the go-persistence-bun config contract for the
// two drivers this module ships migrations for.
type ConnectionConfig struct {
	Driver         string
	DSN            string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (c ConnectionConfig) GetDebug() bool {
	return c.Debug
}

func (c ConnectionConfig) GetDriver() string {
	return strings.TrimSpace(c.Driver)
}

func (c ConnectionConfig) GetServer() string {
	return strings.TrimSpace(c.DSN)
}

func (c ConnectionConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout > 0 {
		return c.PingTimeout
	}
	return defaultPingTimeout
}

func (c ConnectionConfig) GetOtelIdentifier() string {
	if identifier := strings.TrimSpace(c.OtelIdentifier); identifier != "" {
		return identifier
	}
	return "go-webhook-guard"
}

// Connect opens the database and wraps it in a persistence client with the
// dialect matching the driver.
func Connect(cfg ConnectionConfig) (*persistence.Client, error) {
	driver := cfg.GetDriver()
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if cfg.GetServer() == "" {
		return nil, fmt.Errorf("sqlstore: connection dsn is required")
	}

	sqlDB, err := sql.Open(driver, cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite serializes writers anyway; a single conn avoids lock errors.
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	return client, nil
}

func dialectFor(driver string) (schema.Dialect, error) {
	switch driver {
	case DriverPostgres:
		return pgdialect.New(), nil
	case DriverSQLite:
		return sqlitedialect.New(), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}
