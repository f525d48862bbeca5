package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ggmueller/marten/internal/mapping"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidName            = "E101" // document or subclass name is not an identifier
	ErrInvalidAlias           = "E102" // alias is not a valid table suffix
	ErrDuplicateAlias         = "E103" // two documents resolve to the same table
	ErrInvalidColumnType      = "E104" // unknown duplicate column type
	ErrDuplicateName          = "E105" // duplicate document, member, column or subclass
	ErrReservedColumn         = "E106" // duplicate column collides with a document column
	ErrSubClassIsDocument     = "E107" // subclass is also declared as a document
	ErrSubClassTwoParents     = "E108" // subclass appears under two documents
	ErrDuplicateDiscriminator = "E109" // two hierarchy members share a discriminator alias
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var (
	namePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
	aliasPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

var reservedColumns = map[string]bool{
	mapping.IDColumn:           true,
	mapping.DataColumn:         true,
	mapping.LastModifiedColumn: true,
	mapping.VersionColumn:      true,
	mapping.DocumentTypeColumn: true,
}

// Validate checks a set of declarations as they would be registered
// together. Returns all errors found (does not fail-fast).
func Validate(decls []mapping.Declaration) []ValidationError {
	var errs []ValidationError

	names := make(map[string]bool)
	tables := make(map[string][]string)
	parents := make(map[string]string)

	for _, d := range decls {
		field := "document." + d.Name
		if names[d.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate document name: %q", d.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[d.Name] = true

		errs = append(errs, validateDeclaration(d)...)

		alias := aliasOf(d)
		tables[alias] = append(tables[alias], d.Name)

		for _, sc := range d.SubClasses {
			if p, ok := parents[sc]; ok && p != d.Name {
				errs = append(errs, ValidationError{
					Field:   field + ".subclasses",
					Message: fmt.Sprintf("subclass %q already belongs to %q", sc, p),
					Code:    ErrSubClassTwoParents,
				})
				continue
			}
			parents[sc] = d.Name
		}
	}

	for _, d := range decls {
		for _, sc := range d.SubClasses {
			if names[sc] {
				errs = append(errs, ValidationError{
					Field:   "document." + d.Name + ".subclasses",
					Message: fmt.Sprintf("subclass %q is also declared as a document", sc),
					Code:    ErrSubClassIsDocument,
				})
			}
		}
	}

	aliases := make([]string, 0, len(tables))
	for alias := range tables {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if owners := tables[alias]; len(owners) > 1 {
			errs = append(errs, ValidationError{
				Field:   "alias",
				Message: fmt.Sprintf("alias %q is used by %s", alias, strings.Join(owners, ", ")),
				Code:    ErrDuplicateAlias,
			})
		}
	}

	return errs
}

// validateDeclaration checks one declaration in isolation.
func validateDeclaration(d mapping.Declaration) []ValidationError {
	var errs []ValidationError
	field := "document." + d.Name

	if !namePattern.MatchString(d.Name) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid document name: %q", d.Name),
			Code:    ErrInvalidName,
		})
	}

	if d.Alias != "" && !aliasPattern.MatchString(d.Alias) {
		errs = append(errs, ValidationError{
			Field:   field + ".alias",
			Message: fmt.Sprintf("alias %q must match %s", d.Alias, aliasPattern),
			Code:    ErrInvalidAlias,
		})
	}

	members := make(map[string]bool)
	columns := make(map[string]bool)
	for _, dup := range d.Duplicates {
		dupField := fmt.Sprintf("%s.duplicate.%s", field, dup.Member)
		if members[dup.Member] {
			errs = append(errs, ValidationError{
				Field:   dupField,
				Message: fmt.Sprintf("member %q is declared twice", dup.Member),
				Code:    ErrDuplicateName,
			})
		}
		members[dup.Member] = true

		if !isValidColumnType(dup.ColumnType) {
			errs = append(errs, ValidationError{
				Field:   dupField,
				Message: fmt.Sprintf("invalid column type: %q", dup.ColumnType),
				Code:    ErrInvalidColumnType,
			})
		}

		column := dup.Column
		if column == "" {
			column = mapping.ColumnName(dup.Member)
		}
		if reservedColumns[column] {
			errs = append(errs, ValidationError{
				Field:   dupField,
				Message: fmt.Sprintf("column %q is reserved", column),
				Code:    ErrReservedColumn,
			})
		} else if columns[column] {
			errs = append(errs, ValidationError{
				Field:   dupField,
				Message: fmt.Sprintf("column %q is used twice", column),
				Code:    ErrDuplicateName,
			})
		}
		columns[column] = true
	}

	discriminators := map[string]string{aliasOf(d): d.Name}
	for _, sc := range d.SubClasses {
		scField := field + ".subclasses"
		if !namePattern.MatchString(sc) {
			errs = append(errs, ValidationError{
				Field:   scField,
				Message: fmt.Sprintf("invalid subclass name: %q", sc),
				Code:    ErrInvalidName,
			})
			continue
		}
		alias := mapping.DefaultAlias(sc)
		if owner, ok := discriminators[alias]; ok {
			code := ErrDuplicateDiscriminator
			if owner == sc {
				code = ErrDuplicateName
			}
			errs = append(errs, ValidationError{
				Field:   scField,
				Message: fmt.Sprintf("subclass %q has the same discriminator %q as %q", sc, alias, owner),
				Code:    code,
			})
			continue
		}
		discriminators[alias] = sc
	}

	return errs
}

func aliasOf(d mapping.Declaration) string {
	if d.Alias != "" {
		return d.Alias
	}
	return mapping.DefaultAlias(d.Name)
}

// isValidColumnType checks if a type is one CompileDocument can produce.
func isValidColumnType(t string) bool {
	for _, known := range columnTypes {
		if t == known {
			return true
		}
	}
	return false
}
