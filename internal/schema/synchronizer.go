// Package schema keeps document tables in line with their mappings.
//
// Ensure is the whole decision procedure: fail on ambiguous aliases, build a
// missing table, leave a matching table alone and apply the AutoCreate policy
// to a mismatched one. Repeated calls against an unchanged database issue no
// DDL.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ggmueller/marten/internal/docerr"
	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/metrics"
	"github.com/ggmueller/marten/internal/store"
)

// Result is the outcome of Ensure.
type Result int

const (
	// Unchanged means the table already matched; no DDL was issued.
	Unchanged Result = iota
	// Built means the table was created, or dropped and recreated.
	Built
	// Updated means missing columns were added to an existing table.
	Updated
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case Unchanged:
		return "unchanged"
	case Built:
		return "built"
	case Updated:
		return "updated"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// AutoCreate is the policy for missing and mismatched tables.
type AutoCreate int

const (
	// All creates missing tables and drops and recreates mismatched ones.
	All AutoCreate = iota
	// CreateOrUpdate creates missing tables and appends missing columns.
	// Any other difference is a SCHEMA_MISMATCH.
	CreateOrUpdate
	// CreateOnly creates missing tables. Any difference is a SCHEMA_MISMATCH.
	CreateOnly
	// None never issues DDL.
	None
)

// String returns the config spelling.
func (a AutoCreate) String() string {
	switch a {
	case All:
		return "all"
	case CreateOrUpdate:
		return "create_or_update"
	case CreateOnly:
		return "create_only"
	case None:
		return "none"
	}
	return fmt.Sprintf("AutoCreate(%d)", int(a))
}

// ParseAutoCreate parses the config spelling of a policy.
func ParseAutoCreate(s string) (AutoCreate, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return All, nil
	case "create_or_update":
		return CreateOrUpdate, nil
	case "create_only":
		return CreateOnly, nil
	case "none":
		return None, nil
	}
	return 0, fmt.Errorf("unknown auto_create policy %q", s)
}

// Synchronizer compares mappings with the live schema and applies DDL.
// It is safe for concurrent use; callers are expected to Ensure each type
// once and cache the result.
type Synchronizer struct {
	registry *mapping.Registry
	exec     store.Executor
	policy   AutoCreate
	log      *slog.Logger
	metrics  *metrics.Collectors
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithPolicy sets the AutoCreate policy.
func WithPolicy(p AutoCreate) Option {
	return func(s *Synchronizer) { s.policy = p }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Synchronizer) { s.log = log }
}

// WithMetrics records outcomes on the collectors.
func WithMetrics(c *metrics.Collectors) Option {
	return func(s *Synchronizer) { s.metrics = c }
}

// New creates a synchronizer for the registry's mappings.
func New(registry *mapping.Registry, exec store.Executor, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		registry: registry,
		exec:     exec,
		policy:   All,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the AutoCreate policy in effect.
func (s *Synchronizer) Policy() AutoCreate { return s.policy }

// Ensure makes the table of m match the mapping, or fails.
func (s *Synchronizer) Ensure(ctx context.Context, m *mapping.DocumentMapping) (Result, error) {
	result, err := s.ensure(ctx, m)
	if s.metrics != nil {
		label := result.String()
		if err != nil {
			label = metrics.Fail
		}
		s.metrics.SchemaEnsureTotal.WithLabelValues(label).Inc()
	}
	return result, err
}

func (s *Synchronizer) ensure(ctx context.Context, m *mapping.DocumentMapping) (Result, error) {
	if err := s.registry.AssertNoDuplicateAliases(); err != nil {
		return Unchanged, err
	}
	root := m.Root()
	return s.ensureTable(ctx, root.Name, root.Schema, root.ToTable())
}

// EnsureHiLo makes sure the HiLo table exists.
func (s *Synchronizer) EnsureHiLo(ctx context.Context) (Result, error) {
	return s.ensureTable(ctx, HiLoTable, s.registry.Schema(), HiLoDefinition())
}

func (s *Synchronizer) ensureTable(ctx context.Context, document, schemaName string, expected *mapping.TableDefinition) (Result, error) {
	actual, err := s.exec.TableSchema(ctx, schemaName, expected.Name)
	if err != nil {
		return Unchanged, fmt.Errorf("introspect %s.%s: %w", schemaName, expected.Name, err)
	}

	if actual == nil {
		if s.policy == None {
			return Unchanged, &docerr.Error{
				Code:         docerr.CodeSchemaMismatch,
				Message:      fmt.Sprintf("table %s.%s does not exist and auto_create is none", schemaName, expected.Name),
				DocumentType: document,
			}
		}
		if err := s.exec.ApplyDDL(ctx, CreateTable(schemaName, expected)); err != nil {
			return Unchanged, fmt.Errorf("create %s.%s: %w", schemaName, expected.Name, err)
		}
		s.log.Info("document table built", "document", document, "table", expected.Name)
		return Built, nil
	}

	if expected.Equal(actual) {
		s.log.Debug("document table unchanged", "document", document, "table", expected.Name)
		return Unchanged, nil
	}

	problems := diff(expected, actual)
	switch s.policy {
	case All:
		ddl := DropTable(schemaName, expected.Name) + CreateTable(schemaName, expected)
		if err := s.exec.ApplyDDL(ctx, ddl); err != nil {
			return Unchanged, fmt.Errorf("rebuild %s.%s: %w", schemaName, expected.Name, err)
		}
		s.log.Warn("document table rebuilt", "document", document, "table", expected.Name, "changes", problems)
		return Built, nil

	case CreateOrUpdate:
		if cols, ok := missingTrailing(expected, actual); ok {
			var ddl strings.Builder
			for _, c := range cols {
				ddl.WriteString(AddColumn(schemaName, expected.Name, c))
			}
			if err := s.exec.ApplyDDL(ctx, ddl.String()); err != nil {
				return Unchanged, fmt.Errorf("update %s.%s: %w", schemaName, expected.Name, err)
			}
			s.log.Info("document table updated", "document", document, "table", expected.Name, "added", len(cols))
			return Updated, nil
		}
	}

	return Unchanged, &docerr.Error{
		Code:         docerr.CodeSchemaMismatch,
		Message:      fmt.Sprintf("table %s.%s differs from its mapping: %s", schemaName, expected.Name, strings.Join(problems, "; ")),
		DocumentType: document,
	}
}

// EnsureAll ensures every registered mapping concurrently. Results are keyed
// by mapping name. The alias check runs once, before any table is touched.
func (s *Synchronizer) EnsureAll(ctx context.Context) (map[string]Result, error) {
	if err := s.registry.AssertNoDuplicateAliases(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	results := make(map[string]Result)

	g, ctx := errgroup.WithContext(ctx)
	for _, m := range s.registry.AllDocumentMappings() {
		g.Go(func() error {
			r, err := s.Ensure(ctx, m)
			if err != nil {
				return err
			}
			mu.Lock()
			results[m.Name] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// DocumentTables lists the existing mt_doc_ tables of the registry schema.
func (s *Synchronizer) DocumentTables(ctx context.Context) ([]string, error) {
	names, err := s.SchemaTableNames(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, mapping.TablePrefix) {
			out = append(out, n)
		}
	}
	return out, nil
}

// SchemaTableNames lists every table of the registry schema.
func (s *Synchronizer) SchemaTableNames(ctx context.Context) ([]string, error) {
	names, err := s.exec.TableNames(ctx, s.registry.Schema())
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

// ToDDL renders the create statements of every registered mapping and the
// HiLo table.
func (s *Synchronizer) ToDDL() string {
	return ToDDL(s.registry)
}

// WriteDDL writes ToDDL to a file.
func (s *Synchronizer) WriteDDL(path string) error {
	if err := os.WriteFile(path, []byte(s.ToDDL()), 0o644); err != nil {
		return fmt.Errorf("write ddl: %w", err)
	}
	return nil
}

// ToDDL renders the create statements of a registry without a database.
func ToDDL(registry *mapping.Registry) string {
	var sb strings.Builder
	for _, m := range registry.AllDocumentMappings() {
		sb.WriteString(CreateTable(m.Schema, m.ToTable()))
		sb.WriteString("\n")
	}
	sb.WriteString(CreateTable(registry.Schema(), HiLoDefinition()))
	return sb.String()
}
