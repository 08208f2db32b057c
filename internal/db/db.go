package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed schema_postgres.sql
var schemaPostgres string

//go:embed schema_sqlite.sql
var schemaSQLite string

// Dialect selects driver-specific SQL.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to Postgres or SQLite. For SQLite, url is a file path or
// ":memory:"; the pool is limited to one connection so every transaction is
// a single writer.
func Open(ctx context.Context, driver, url string) (*DB, error) {
	var (
		dialect Dialect
		conn    *sql.DB
		err     error
	)
	switch Dialect(driver) {
	case Postgres:
		dialect = Postgres
		conn, err = sql.Open("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
	case SQLite:
		dialect = SQLite
		conn, err = sql.Open("sqlite", sqliteDSN(url))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: conn, Dialect: dialect}, nil
}

// sqliteDSN applies pragmas on every new connection and makes BeginTx issue
// BEGIN IMMEDIATE so the write lock is taken before validation reads.
func sqliteDSN(path string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
		"_time_format=sqlite",
	}
	if path != ":memory:" {
		params = append(params, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	prefix := ""
	if !strings.HasPrefix(path, "file:") {
		prefix = "file:"
	}
	return prefix + path + sep + strings.Join(params, "&")
}

// Migrate creates missing tables and indexes.
func (d *DB) Migrate(ctx context.Context) error {
	schema := schemaPostgres
	if d.Dialect == SQLite {
		schema = schemaSQLite
	}
	if _, err := d.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Rebind rewrites $N placeholders to SQLite's ?N form.
func (d *DB) Rebind(query string) string {
	if d.Dialect != SQLite {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?$1")
}

// InTx runs fn inside a transaction, rolling back on error or panic.
func (d *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
