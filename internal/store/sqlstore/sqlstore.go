// Package sqlstore implements the relational store with goqu over
// database/sql. SQLite (glebarez/go-sqlite) and PostgreSQL (pgx) are
// supported.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	// Registers the goqu dialects. Without these imports goqu.Dialect
	// silently falls back to the default dialect.
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/logging"
	"github.com/agentstation/crmsync/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the database and tables.
type Config struct {
	Driver      string       `yaml:"driver" json:"driver"`
	DSN         string       `yaml:"dsn" json:"-"`
	Tables      store.Tables `yaml:"tables" json:"tables"`
	SourceOrder string       `yaml:"source_order" json:"source_order"`
	// Bootstrap creates the store's own tables when missing.
	Bootstrap bool `yaml:"bootstrap" json:"bootstrap"`
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	switch c.Driver {
	case "", DriverSQLite:
		c.Driver = DriverSQLite
	case DriverPostgres, "pgx":
		c.Driver = DriverPostgres
	default:
		return errors.NewConfigError("sqlstore", fmt.Sprintf("unsupported driver %q", c.Driver), nil)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return errors.NewConfigError("sqlstore", "DSN is required", nil)
	}
	if c.SourceOrder == "" {
		c.SourceOrder = "id"
	}
	c.Tables = c.Tables.WithDefaults()
	return nil
}

// driverAndDialect maps a driver to its database/sql name and goqu dialect.
func (c *Config) driverAndDialect() (string, string) {
	if c.Driver == DriverPostgres {
		return "pgx", "postgres"
	}
	return "sqlite", "sqlite3"
}

// Store is a goqu-backed implementation of store.Store.
type Store struct {
	cfg   Config
	rawDB *sql.DB
	db    *goqu.Database
}

// Open connects to the database and optionally bootstraps the tables.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	driver, dialect := cfg.driverAndDialect()

	rawDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, errors.WrapResource("open", "store", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and serialises writers.
		rawDB.SetMaxOpenConns(1)
	}
	if err := rawDB.PingContext(ctx); err != nil {
		_ = rawDB.Close()
		return nil, errors.WrapResource("connect", "store", cfg.Driver, err)
	}

	s := &Store{cfg: cfg, rawDB: rawDB, db: goqu.New(dialect, rawDB)}
	if cfg.Bootstrap {
		if err := s.bootstrap(ctx); err != nil {
			_ = rawDB.Close()
			return nil, err
		}
	}
	return s, nil
}

// DB returns the goqu handle, for seeding source and store tables.
func (s *Store) DB() *goqu.Database {
	return s.db
}

// Tables returns the table names in use.
func (s *Store) Tables() store.Tables {
	return s.cfg.Tables
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.rawDB.Close()
}

const schemaSQL = `
create table if not exists %[1]s (
    id text primary key,
    data text not null,
    synced_at text not null
);
create table if not exists %[2]s (
    identification_key text primary key,
    attributes text not null,
    sources text not null,
    data_hash text not null,
    created_at text not null,
    updated_at text not null
);
create table if not exists %[3]s (
    id text primary key,
    name text not null
);
create table if not exists %[4]s (
    id text primary key,
    run_id text not null,
    source text not null,
    processed bigint not null default 0,
    inserted bigint not null default 0,
    updated bigint not null default 0,
    unchanged bigint not null default 0,
    excluded bigint not null default 0,
    errors bigint not null default 0,
    elapsed_ms bigint not null default 0,
    started_at text not null,
    finished_at text not null,
    message text not null default ''
)`

func (s *Store) bootstrap(ctx context.Context) error {
	t := s.cfg.Tables
	ddl := fmt.Sprintf(schemaSQL, t.Records, t.Masters, t.Stores, t.Log)
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.WrapResource("bootstrap", "store", s.cfg.Driver, err)
		}
	}
	logging.FromContext(ctx).Debug().
		Str("driver", s.cfg.Driver).
		Str("records_table", t.Records).
		Msg("Store tables ready")
	return nil
}

func persistErr(op, table, id string, err error) error {
	return errors.NewPersistenceError(op, table, id, 0, err)
}
