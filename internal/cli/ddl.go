package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ggmueller/marten/internal/config"
	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/schema"
	"github.com/ggmueller/marten/internal/store"
)

// DDLOptions holds flags for the ddl command.
type DDLOptions struct {
	*RootOptions
	Output string // output file path
	Schema string // overrides the configured schema
}

// DocumentTable describes the table of one declared document.
type DocumentTable struct {
	Name    string   `json:"name"`
	Alias   string   `json:"alias"`
	Table   string   `json:"table"`
	IDKind  string   `json:"id_kind"`
	Columns []string `json:"columns"`
}

// DDLResult is the json payload of the ddl command.
type DDLResult struct {
	Documents []DocumentTable `json:"documents"`
	DDL       string          `json:"ddl"`
	Output    string          `json:"output,omitempty"`
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DDLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ddl <specs-dir>",
		Short: "Print the create statements of declared documents",
		Long: `Compile CUE document declarations and print the DDL that creates their
tables and the HiLo sequence table. No database is opened; the schema comes
from --schema, the store options, or the driver default.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "database schema of the tables")

	return cmd
}

func runDDL(opts *DDLOptions, specsDir string, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)

	loadResult, validationErrs, err := ValidateSpecsDir(specsDir)
	if err != nil {
		return loadFailure(p, err)
	}
	if len(validationErrs) > 0 {
		return p.Invalid(validationErrs)
	}

	schemaName := opts.Schema
	if schemaName == "" {
		storeOpts, err := opts.storeOptions()
		if err != nil {
			return p.Fail(ExitCommandError, ErrCodeConfig, err)
		}
		schemaName = defaultSchema(storeOpts)
	}
	p.Debugf("Rendering %d document(s) into schema %s", len(loadResult.Documents), schemaName)

	registry := mapping.NewRegistry(schemaName)
	for _, d := range loadResult.Documents {
		registry.Declare(d)
	}
	if err := registry.Freeze(); err != nil {
		return p.Fail(ExitCommandError, ErrCodeGeneric, err)
	}

	result := DDLResult{
		Documents: documentTables(registry),
		DDL:       schema.ToDDL(registry),
		Output:    opts.Output,
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(result.DDL), 0o644); err != nil {
			return p.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Errorf("writing output file: %w", err))
		}
	}

	return p.Result(result, func(w io.Writer) {
		if opts.Output != "" {
			fmt.Fprintf(w, "✓ Wrote DDL for %d document(s) to %s\n", len(result.Documents), opts.Output)
			return
		}
		fmt.Fprint(w, result.DDL)
	})
}

// defaultSchema is the configured schema or the driver's default.
func defaultSchema(opts *config.StoreOptions) string {
	if opts.Schema != "" {
		return opts.Schema
	}
	if opts.Driver == config.DriverPostgres {
		return mapping.DefaultSchema
	}
	return store.Schema
}

func documentTables(registry *mapping.Registry) []DocumentTable {
	var tables []DocumentTable
	for _, m := range registry.AllDocumentMappings() {
		t := DocumentTable{
			Name:   m.Name,
			Alias:  m.Alias,
			Table:  m.QualifiedTableName(),
			IDKind: m.IDKind.String(),
		}
		for _, c := range m.Columns() {
			t.Columns = append(t.Columns, c.Name)
		}
		tables = append(tables, t)
	}
	return tables
}
