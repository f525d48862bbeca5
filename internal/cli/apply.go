package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

// ApplyResult is the schema outcome of one declared document.
type ApplyResult struct {
	Document string `json:"document"`
	Table    string `json:"table"`
	Result   string `json:"result"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <specs-dir>",
		Short: "Create or update the tables of declared documents",
		Long: `Compile CUE document declarations and ensure their tables exist in the
configured store, following its auto_create policy. Tables are ensured
concurrently; the alias check runs before any table is touched.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runApply(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	p := newPrinter(opts, cmd)
	ctx := cmd.Context()

	loadResult, validationErrs, err := ValidateSpecsDir(specsDir)
	if err != nil {
		return loadFailure(p, err)
	}
	if len(validationErrs) > 0 {
		return p.Invalid(validationErrs)
	}

	storeOpts, err := opts.storeOptions()
	if err != nil {
		return p.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	p.Debugf("Applying %d document(s) to %s store (auto_create=%s)",
		len(loadResult.Documents), storeOpts.Driver, storeOpts.AutoCreate)

	ds, err := openStore(ctx, opts, cmd, storeOpts, loadResult.Documents)
	if err != nil {
		return p.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	defer ds.Close()

	results, err := ds.Schema().EnsureAll(ctx)
	if err != nil {
		return p.Fail(ExitCommandError, ErrCodeDatabase, err)
	}

	var applied []ApplyResult
	for _, m := range ds.Registry().AllDocumentMappings() {
		applied = append(applied, ApplyResult{
			Document: m.Name,
			Table:    m.QualifiedTableName(),
			Result:   results[m.Name].String(),
		})
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i].Document < applied[j].Document })

	return p.Result(applied, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Applied %d document(s)\n\n", len(applied))
		for _, a := range applied {
			fmt.Fprintf(w, "  %s: %s (%s)\n", a.Document, a.Table, a.Result)
		}
	})
}
