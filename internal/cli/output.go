package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ggmueller/marten/internal/compiler"
	"github.com/ggmueller/marten/internal/docerr"
)

// Exit codes of the marten command.
const (
	ExitSuccess      = 0 // Command succeeded
	ExitFailure      = 1 // Declarations failed validation
	ExitCommandError = 2 // Bad path, bad store options, store or schema failure
)

// ExitError is returned by a command that already reported its failure. It
// carries the process exit code and the reported error code.
type ExitError struct {
	Exit int    // ExitFailure or ExitCommandError
	Code string // E001..E010 or a declaration code (E1xx)
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Exit
	}
	return ExitFailure
}

// Response is the envelope of every --format json output.
type Response struct {
	Status string         `json:"status"`          // "ok" or "error"
	Data   any            `json:"data,omitempty"`  // command payload
	Error  *ResponseError `json:"error,omitempty"` // set when Status is "error"
}

// ResponseError describes why a command failed. Store failures carry the
// pipeline error kind and the document involved.
type ResponseError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Kind     string `json:"kind,omitempty"`     // e.g. SCHEMA_MISMATCH
	Document string `json:"document,omitempty"` // document type name
}

// Printer writes command results as text for people or as a JSON envelope.
type Printer struct {
	Format  string
	Out     io.Writer
	Log     io.Writer // verbose output; kept off Out so JSON stays parseable
	Verbose bool
}

// JSON reports whether output is the JSON envelope.
func (p *Printer) JSON() bool { return p.Format == "json" }

// Result prints a successful result: data as the JSON envelope, or whatever
// text writes.
func (p *Printer) Result(data any, text func(w io.Writer)) error {
	if p.JSON() {
		return p.encode(Response{Status: "ok", Data: data})
	}
	text(p.Out)
	return nil
}

// Fail reports err under code and returns the ExitError the command exits
// with.
func (p *Printer) Fail(exit int, code string, err error) error {
	re := describe(code, err)
	if p.JSON() {
		_ = p.encode(Response{Status: "error", Error: re})
	} else {
		fmt.Fprintf(p.Out, "Error [%s]: %s\n", re.Code, re.Message)
		if p.Verbose && re.Kind != "" {
			fmt.Fprintf(p.Out, "  kind: %s, document: %s\n", re.Kind, re.Document)
		}
	}
	return &ExitError{Exit: exit, Code: code, Err: err}
}

// Invalid reports declaration errors. The command exits with ExitFailure.
func (p *Printer) Invalid(errs []compiler.ValidationError) error {
	exit := &ExitError{
		Exit: ExitFailure,
		Code: errs[0].Code,
		Err:  fmt.Errorf("validation failed with %d error(s)", len(errs)),
	}

	if p.JSON() {
		if err := p.encode(Response{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &ResponseError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return exit
	}

	fmt.Fprintln(p.Out, "✗ Validation failed")
	fmt.Fprintln(p.Out)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(p.Out, "line %d\n", err.Line)
		}
		fmt.Fprintf(p.Out, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exit
}

// Debugf writes a line in verbose mode only.
func (p *Printer) Debugf(format string, args ...any) {
	if !p.Verbose {
		return
	}
	w := p.Log
	if w == nil {
		w = p.Out
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func (p *Printer) encode(v any) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe builds the reported form of err. Load errors report their own
// message; pipeline errors add their kind and document.
func describe(code string, err error) *ResponseError {
	re := &ResponseError{Code: code, Message: err.Error()}

	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		re.Message = loadErr.Message
	}
	var de *docerr.Error
	if errors.As(err, &de) {
		re.Kind = string(de.Code)
		re.Document = de.DocumentType
	}
	return re
}
