package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/ggmueller/marten/internal/compiler"
	"github.com/ggmueller/marten/internal/mapping"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the document declarations found in a directory.
type LoadResult struct {
	Documents []mapping.Declaration
	CUEValue  cue.Value
	FileCount int
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs loads and compiles the document declarations of a directory.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadSpecs(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	docsVal := value.LookupPath(cue.ParsePath("document"))
	if docsVal.Exists() {
		iter, iterErr := docsVal.Fields()
		if iterErr != nil {
			return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating documents: %v", iterErr)}}
		}
		for iter.Next() {
			decl, compileErr := compiler.CompileDocument(iter.Value())
			if compileErr != nil {
				errs = append(errs, convertCompileError(compileErr, "document."+iter.Label()))
				if mode == LoadModeFailFast {
					return result, errs
				}
				continue
			}
			result.Documents = append(result.Documents, *decl)
		}
	}

	if len(result.Documents) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoDocuments, Message: "no documents found in specs"})
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", context, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeNoDocuments = "E008" // No document declarations
	ErrCodeConfig      = "E009" // Store options could not be loaded
	ErrCodeDatabase    = "E010" // Database connection or schema error

	// Declaration errors
	ErrCodeInvalidAlias    = compiler.ErrInvalidAlias
	ErrCodeInvalidColumn   = compiler.ErrInvalidColumnType
	ErrCodeInvalidDocument = "E110"
	ErrCodeInvalidID       = "E111"
	ErrCodeInvalidDup      = "E112"
	ErrCodeInvalidSubClass = "E113"
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "document":
		return ErrCodeInvalidDocument
	case field == "alias":
		return ErrCodeInvalidAlias
	case field == "id":
		return ErrCodeInvalidID
	case field == "type":
		return ErrCodeInvalidColumn
	case field == "subclasses":
		return ErrCodeInvalidSubClass
	case field == "duplicate", strings.HasPrefix(field, "duplicate."):
		return ErrCodeInvalidDup
	default:
		return ErrCodeGeneric
	}
}
