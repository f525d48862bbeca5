// Package store defines the storage collaborator the document pipeline
// executes against, and its SQLite implementation.
//
// Executor is the whole boundary: run a query, run a statement, run a
// transaction, introspect tables, apply DDL and explain a query. The
// pipeline never touches database/sql or pgx directly.
//
// # SQLite
//
// The SQLite store accepts the same PostgreSQL-dialect commands the
// translator emits:
//
//   - $n placeholders bind by position (they are numbered in order of first use)
//   - the ->> operator is native JSON extraction
//   - jsonb_build_object is registered as a connection function
//   - the schema is always "main"
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - one open connection: a transaction owns the database while it runs
package store
