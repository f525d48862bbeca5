package cli

import (
	"errors"
	"fmt"
	"io"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/ggmueller/marten/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Documents int                        `json:"documents"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate document declarations",
		Long: `Validate the CUE document declarations of a directory.

Checks syntax, field types, id kinds and column types, then checks the
declarations together: aliases must be unique, duplicated columns must not
collide, and subclasses must belong to exactly one document. No database is
opened.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	p := newPrinter(opts, cmd)

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)

	if loadResult == nil && len(loadErrors) > 0 {
		return loadFailure(p, loadErrors[0])
	}

	p.Debugf("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	for _, d := range loadResult.Documents {
		p.Debugf("Validating document: %s", d.Name)
	}

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    getLineFromCuePos(loadErr.Pos),
			})
			continue
		}
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "load",
			Message: err.Error(),
			Code:    ErrCodeGeneric,
		})
	}
	validationErrors = append(validationErrors, compiler.Validate(loadResult.Documents)...)

	if len(validationErrors) > 0 {
		return p.Invalid(validationErrors)
	}

	documents := len(loadResult.Documents)
	return p.Result(ValidationResult{Valid: true, Documents: documents}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %d document(s) valid\n", documents)
	})
}

// ValidateSpecsDir loads and validates a directory. Callers outside the
// validate command use it as a gate before touching a database.
func ValidateSpecsDir(specsDir string) (*LoadResult, []compiler.ValidationError, error) {
	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return loadResult, nil, loadErrors[0]
	}
	return loadResult, compiler.Validate(loadResult.Documents), nil
}

// getLineFromCuePos extracts line number from a token.Pos.
func getLineFromCuePos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// loadFailure reports an error that stopped loading before any declaration
// was compiled. It is a command error, not a validation failure.
func loadFailure(p *Printer, err error) error {
	code := ErrCodeGeneric
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code = loadErr.Code
	}
	return p.Fail(ExitCommandError, code, err)
}
