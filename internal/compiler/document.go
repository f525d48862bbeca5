package compiler

import (
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/ggmueller/marten/internal/mapping"
)

// CompileDocument parses a CUE value into a mapping declaration.
//
// The CUE value should be the document struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`document: Invoice: { id: "int64" }`)
//	decl, err := CompileDocument(v.LookupPath(cue.ParsePath("document.Invoice")))
//
// Recognized fields:
//
//	alias:      string                  // table suffix, defaults to the lower-cased name
//	id:         "string" | "int" | "int64" | "uuid"
//	duplicate:  { <Member>: <type> | { type: <type>, column?: string, key?: string } }
//	subclasses: [...string]
//
// A duplicate type is either a CUE kind (string, int, bool, float) or a
// string naming a column type ("uuid", "timestamp", "bigint", ...).
func CompileDocument(v cue.Value) (*mapping.Declaration, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   "document",
			Message: "document must be a struct",
			Pos:     v.Pos(),
		}
	}

	decl := &mapping.Declaration{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		decl.Name = labels[len(labels)-1].String()
	}
	if decl.Name == "" {
		return nil, &CompileError{Field: "document", Message: "document name is required", Pos: v.Pos()}
	}

	if err := rejectUnknownFields(v); err != nil {
		return nil, err
	}

	alias, err := optionalString(v, "alias")
	if err != nil {
		return nil, err
	}
	decl.Alias = alias

	id, err := optionalString(v, "id")
	if err != nil {
		return nil, err
	}
	decl.IDKind, err = mapping.ParseIDKind(id)
	if err != nil {
		return nil, &CompileError{
			Field:   "id",
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath("id")).Pos(),
		}
	}

	decl.Duplicates, err = parseDuplicates(v)
	if err != nil {
		return nil, err
	}

	decl.SubClasses, err = parseSubClasses(v)
	if err != nil {
		return nil, err
	}

	return decl, nil
}

var knownFields = map[string]bool{
	"alias":      true,
	"id":         true,
	"duplicate":  true,
	"subclasses": true,
}

func rejectUnknownFields(v cue.Value) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if !knownFields[iter.Label()] {
			return &CompileError{
				Field:   "document",
				Message: fmt.Sprintf("unknown field %q", iter.Label()),
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a string", field),
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// parseDuplicates extracts duplicated members in declaration order.
func parseDuplicates(v cue.Value) ([]mapping.DuplicatedField, error) {
	dupVal := v.LookupPath(cue.ParsePath("duplicate"))
	if !dupVal.Exists() {
		return nil, nil
	}

	iter, err := dupVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var dups []mapping.DuplicatedField
	for iter.Next() {
		member := iter.Label()
		fv := iter.Value()
		d := mapping.DuplicatedField{Member: member}

		if fv.IncompleteKind() == cue.StructKind {
			typeVal := fv.LookupPath(cue.ParsePath("type"))
			if !typeVal.Exists() {
				return nil, &CompileError{
					Field:   "duplicate." + member,
					Message: "duplicate type is required",
					Pos:     fv.Pos(),
				}
			}
			d.ColumnType, err = columnType(typeVal)
			if err != nil {
				return nil, err
			}
			if d.Column, err = optionalString(fv, "column"); err != nil {
				return nil, err
			}
			if d.JSONKey, err = optionalString(fv, "key"); err != nil {
				return nil, err
			}
		} else {
			d.ColumnType, err = columnType(fv)
			if err != nil {
				return nil, err
			}
		}
		dups = append(dups, d)
	}
	return dups, nil
}

// columnTypes are the named column types accepted in duplicate declarations.
var columnTypes = map[string]string{
	"string":                   "character varying",
	"varchar":                  "character varying",
	"character varying":        "character varying",
	"text":                     "text",
	"int":                      "integer",
	"integer":                  "integer",
	"int64":                    "bigint",
	"bigint":                   "bigint",
	"bool":                     "boolean",
	"boolean":                  "boolean",
	"uuid":                     "uuid",
	"time":                     "timestamp with time zone",
	"timestamp":                "timestamp with time zone",
	"timestamp with time zone": "timestamp with time zone",
	"float":                    "double precision",
	"double precision":         "double precision",
	"real":                     "real",
}

// columnType converts a CUE type or a named type to a column type.
func columnType(v cue.Value) (string, error) {
	if v.IsConcrete() {
		name, err := v.String()
		if err != nil {
			return "", &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("duplicate type must be a CUE type or a type name, got %v", v),
				Pos:     v.Pos(),
			}
		}
		t, ok := columnTypes[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return "", &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("unknown column type %q (known: %s)", name, strings.Join(knownColumnTypes(), ", ")),
				Pos:     v.Pos(),
			}
		}
		return t, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return "character varying", nil
	case cue.IntKind:
		return "bigint", nil
	case cue.BoolKind:
		return "boolean", nil
	case cue.FloatKind, cue.NumberKind:
		return "double precision", nil
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func knownColumnTypes() []string {
	names := make([]string, 0, len(columnTypes))
	for name := range columnTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseSubClasses(v cue.Value) ([]string, error) {
	scVal := v.LookupPath(cue.ParsePath("subclasses"))
	if !scVal.Exists() {
		return nil, nil
	}

	iter, err := scVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "subclasses",
			Message: "subclasses must be a list of document names",
			Pos:     scVal.Pos(),
		}
	}

	var names []string
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "subclasses",
				Message: "subclass names must be strings",
				Pos:     iter.Value().Pos(),
			}
		}
		names = append(names, name)
	}
	return names, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
