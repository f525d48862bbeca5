package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ggmueller/marten"
	"github.com/ggmueller/marten/internal/config"
	"github.com/ggmueller/marten/internal/logger"
	"github.com/ggmueller/marten/internal/mapping"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // store options file
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the marten CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "marten",
		Short: "marten - JSON documents on PostgreSQL and SQLite",
		Long: `Manage the tables of a marten document store.

Document types are declared in CUE files:

  document: Invoice: {
    id: "int64"
    duplicate: CustomerId: int
  }

Store options are read from the --config YAML file and MARTEN_* environment
variables.`,
		SilenceErrors: true, // main prints errors that commands did not report
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "store options file (YAML)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  opts.Format,
		Out:     cmd.OutOrStdout(),
		Log:     cmd.ErrOrStderr(),
		Verbose: opts.Verbose,
	}
}

// storeOptions loads the store options named by --config.
func (o *RootOptions) storeOptions() (*config.StoreOptions, error) {
	return config.Load(o.Config)
}

// openStore opens the configured store with the given declarations. Logs go
// to the command's error stream; --verbose lowers the level to debug.
func openStore(ctx context.Context, opts *RootOptions, cmd *cobra.Command, storeOpts *config.StoreOptions, decls []mapping.Declaration) (*marten.DocumentStore, error) {
	level := storeOpts.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	log := logger.New(level, storeOpts.Log.Format, cmd.ErrOrStderr())

	return marten.Open(ctx, storeOpts, func(r *marten.Registry) {
		for _, d := range decls {
			r.Declare(d)
		}
	}, marten.WithLogger(log))
}
