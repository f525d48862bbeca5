// Package pgstore is the PostgreSQL storage collaborator, built on a pgx
// connection pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ggmueller/marten/internal/config"
	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/store"
)

// Store wraps pgxpool with the document store operations.
type Store struct {
	querier
	pool *pgxpool.Pool
	log  *slog.Logger
}

var _ store.Executor = (*Store)(nil)

// Open creates a connection pool from the options and verifies it.
func Open(ctx context.Context, opts *config.StoreOptions, log *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(opts.Pool.MaxConns)
	poolConfig.MinConns = int32(opts.Pool.MinConns)
	poolConfig.MaxConnLifetime = opts.Pool.MaxLifetime
	poolConfig.MaxConnIdleTime = opts.Pool.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected", "host", poolConfig.ConnConfig.Host, "db", poolConfig.ConnConfig.Database)

	return &Store{querier: querier{db: pool}, pool: pool, log: log}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.log.Info("closing database connection pool")
	s.pool.Close()
}

// Health checks database health.
func (s *Store) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return s.pool.Ping(ctx)
}

// InTx implements store.Executor.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Executor) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&txQuerier{querier{db: tx}})
	})
}

// db is satisfied by *pgxpool.Pool and pgx.Tx.
type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// querier implements everything but InTx on top of a pool or transaction.
type querier struct {
	db db
}

// rows adapts pgx.Rows, whose Close returns nothing.
type rows struct {
	pgx.Rows
}

func (r rows) Close() error {
	r.Rows.Close()
	return nil
}

// Query implements store.Executor.
func (q querier) Query(ctx context.Context, sql string, args ...any) (store.Rows, error) {
	r, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return rows{r}, nil
}

// Exec implements store.Executor.
func (q querier) Exec(ctx context.Context, sql string, args ...any) error {
	if _, err := q.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// ApplyDDL implements store.Executor. Without arguments pgx uses the simple
// protocol, which runs every statement of the script.
func (q querier) ApplyDDL(ctx context.Context, ddl string) error {
	if _, err := q.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply ddl: %w", err)
	}
	return nil
}

// DefaultSchema implements store.Executor.
func (q querier) DefaultSchema() string { return mapping.DefaultSchema }

// TableNames implements store.Executor.
func (q querier) TableNames(ctx context.Context, schema string) ([]string, error) {
	r, err := q.db.Query(ctx, `
		select table_name from information_schema.tables
		where table_schema = $1 and table_type = 'BASE TABLE'
		order by table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	names, err := pgx.CollectRows(r, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect tables: %w", err)
	}
	return names, nil
}

// TableSchema implements store.Executor.
func (q querier) TableSchema(ctx context.Context, schema, table string) (*mapping.TableDefinition, error) {
	r, err := q.db.Query(ctx, `
		select column_name, data_type from information_schema.columns
		where table_schema = $1 and table_name = $2
		order by ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s.%s: %w", schema, table, err)
	}
	columns, err := pgx.CollectRows(r, func(row pgx.CollectableRow) (mapping.TableColumn, error) {
		var c mapping.TableColumn
		err := row.Scan(&c.Name, &c.Type)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect columns of %s.%s: %w", schema, table, err)
	}
	if len(columns) == 0 {
		return nil, nil
	}

	pk, err := q.primaryKey(ctx, schema+"."+table)
	if err != nil {
		return nil, err
	}
	return &mapping.TableDefinition{Name: table, PrimaryKey: pk, Columns: columns}, nil
}

func (q querier) primaryKey(ctx context.Context, qualified string) (string, error) {
	r, err := q.db.Query(ctx, `
		select a.attname
		from pg_index i
		join pg_attribute a on a.attrelid = i.indrelid and a.attnum = any(i.indkey)
		where i.indrelid = $1::regclass and i.indisprimary`, qualified)
	if err != nil {
		return "", fmt.Errorf("primary key of %s: %w", qualified, err)
	}
	names, err := pgx.CollectRows(r, pgx.RowTo[string])
	if err != nil {
		return "", fmt.Errorf("primary key of %s: %w", qualified, err)
	}
	if len(names) == 0 {
		return "", nil
	}
	return strings.Join(names, ","), nil
}

// Explain implements store.Executor with the JSON plan format.
func (q querier) Explain(ctx context.Context, sql string, args ...any) (string, error) {
	r, err := q.db.Query(ctx, "explain (format json) "+sql, args...)
	if err != nil {
		return "", fmt.Errorf("explain: %w", err)
	}
	plan, err := pgx.CollectExactlyOneRow(r, pgx.RowTo[string])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("explain: %w", err)
	}
	return plan, nil
}

// txQuerier is a querier bound to a transaction.
type txQuerier struct {
	querier
}

// InTx joins the running transaction.
func (t *txQuerier) InTx(ctx context.Context, fn func(tx store.Executor) error) error {
	return fn(t)
}
