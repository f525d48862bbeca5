package store

import (
	"context"

	"github.com/ggmueller/marten/internal/mapping"
)

// Rows is a result cursor. *sql.Rows satisfies it.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Executor runs commands against a document database.
//
// Errors from the underlying driver are wrapped with %w and never retried.
type Executor interface {
	// Query runs a command returning rows. Callers close the rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// Exec runs a command without rows.
	Exec(ctx context.Context, sql string, args ...any) error

	// InTx runs fn in a transaction, committing when fn returns nil.
	// The Executor passed to fn is bound to the transaction; nested InTx
	// calls on it join the outer transaction.
	InTx(ctx context.Context, fn func(tx Executor) error) error

	// TableNames lists the tables of a schema.
	TableNames(ctx context.Context, schema string) ([]string, error)

	// TableSchema introspects a table. It returns nil without error when the
	// table does not exist.
	TableSchema(ctx context.Context, schema, table string) (*mapping.TableDefinition, error)

	// ApplyDDL runs a DDL script of one or more statements.
	ApplyDDL(ctx context.Context, ddl string) error

	// Explain returns the database's plan for a command.
	Explain(ctx context.Context, sql string, args ...any) (string, error)

	// DefaultSchema is the schema document tables go to when none is configured.
	DefaultSchema() string
}
