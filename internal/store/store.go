package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/ggmueller/marten/internal/mapping"
)

// DriverName is the database/sql driver the store registers: go-sqlite3 with
// the document functions installed on every connection.
const DriverName = "sqlite3_marten"

// Schema is the only schema a SQLite database has.
const Schema = "main"

var registerOnce sync.Once

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(DriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("jsonb_build_object", jsonbBuildObject, true)
			},
		})
	})
}

// Store is the SQLite document database.
type Store struct {
	conn
	db *sql.DB
}

var _ Executor = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	registerDriver()

	// Open database (creates file if doesn't exist)
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	return &Store{conn: conn{q: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InTx implements Executor.
func (s *Store) InTx(ctx context.Context, fn func(tx Executor) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&txConn{conn{q: tx}}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// conn implements everything but InTx on top of a queryer.
type conn struct {
	q queryer
}

// Query implements Executor.
func (c conn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return rows, nil
}

// Exec implements Executor.
func (c conn) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := c.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// ApplyDDL implements Executor. go-sqlite3 runs every statement of a script.
func (c conn) ApplyDDL(ctx context.Context, ddl string) error {
	if _, err := c.q.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("apply ddl: %w", err)
	}
	return nil
}

// DefaultSchema implements Executor.
func (c conn) DefaultSchema() string { return Schema }

// TableNames implements Executor.
func (c conn) TableNames(ctx context.Context, schema string) ([]string, error) {
	if err := checkSchema(schema); err != nil {
		return nil, err
	}
	rows, err := c.q.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

// TableSchema implements Executor.
func (c conn) TableSchema(ctx context.Context, schema, table string) (*mapping.TableDefinition, error) {
	if err := checkSchema(schema); err != nil {
		return nil, err
	}
	rows, err := c.q.QueryContext(ctx,
		`SELECT name, type, pk FROM pragma_table_info($1) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", table, err)
	}
	defer rows.Close()

	def := &mapping.TableDefinition{Name: table}
	for rows.Next() {
		var name, typ string
		var pk int
		if err := rows.Scan(&name, &typ, &pk); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		def.Columns = append(def.Columns, mapping.TableColumn{Name: name, Type: typ})
		if pk == 1 {
			def.PrimaryKey = name
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s: %w", table, err)
	}
	if len(def.Columns) == 0 {
		return nil, nil
	}
	return def, nil
}

// Explain implements Executor with EXPLAIN QUERY PLAN, one detail per line.
func (c conn) Explain(ctx context.Context, query string, args ...any) (string, error) {
	rows, err := c.q.QueryContext(ctx, "EXPLAIN QUERY PLAN "+query, args...)
	if err != nil {
		return "", fmt.Errorf("explain: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var id, parent, notUsed int
		var detail string
		if err := rows.Scan(&id, &parent, &notUsed, &detail); err != nil {
			return "", fmt.Errorf("scan plan: %w", err)
		}
		lines = append(lines, detail)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate plan: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

func checkSchema(schema string) error {
	if schema != "" && schema != Schema {
		return fmt.Errorf("sqlite has no schema %q, use %q", schema, Schema)
	}
	return nil
}

// txConn is a conn bound to a transaction.
type txConn struct {
	conn
}

// InTx joins the running transaction.
func (t *txConn) InTx(ctx context.Context, fn func(tx Executor) error) error {
	return fn(t)
}
