package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// TablesOptions holds flags for the tables command.
type TablesOptions struct {
	*RootOptions
	All bool // include tables without the document prefix
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "tables",
		Short:         "List the document tables of the configured store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "list every table of the schema")

	return cmd
}

func runTables(opts *TablesOptions, cmd *cobra.Command) error {
	p := newPrinter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	storeOpts, err := opts.storeOptions()
	if err != nil {
		return p.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	ds, err := openStore(ctx, opts.RootOptions, cmd, storeOpts, nil)
	if err != nil {
		return p.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	defer ds.Close()

	list := ds.Schema().DocumentTables
	if opts.All {
		list = ds.Schema().SchemaTableNames
	}
	tables, err := list(ctx)
	if err != nil {
		return p.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	if tables == nil {
		tables = []string{}
	}

	return p.Result(tables, func(w io.Writer) {
		if len(tables) == 0 {
			fmt.Fprintf(w, "No tables in schema %s\n", ds.Registry().Schema())
			return
		}
		for _, t := range tables {
			fmt.Fprintln(w, t)
		}
	})
}
