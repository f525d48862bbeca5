// Package docerr defines the coded errors raised by the document pipeline.
//
// Every failure that requires a configuration or schema correction is an
// *Error carrying a Code. Transport and store errors are never converted:
// they are wrapped with fmt.Errorf and stay reachable through errors.Unwrap.
package docerr

import (
	"errors"
	"fmt"
)

// Code categorizes pipeline errors.
type Code string

const (
	// CodeAmbiguousAlias indicates two or more document mappings share an alias.
	CodeAmbiguousAlias Code = "AMBIGUOUS_DOCUMENT_TYPE_ALIAS"

	// CodeUnsupportedQueryShape indicates a query description outside the closed grammar.
	CodeUnsupportedQueryShape Code = "UNSUPPORTED_QUERY_SHAPE"

	// CodeInvalidMemberKind indicates a writer was requested for a member that is
	// neither a field nor a property.
	CodeInvalidMemberKind Code = "INVALID_MEMBER_KIND"

	// CodeSchemaMismatch indicates the live table differs from the mapping and the
	// auto-create policy forbids fixing it.
	CodeSchemaMismatch Code = "SCHEMA_MISMATCH"

	// CodeNoResults indicates a Single/First query matched nothing.
	CodeNoResults Code = "NO_RESULTS"

	// CodeMultipleResults indicates a Single query matched more than one row.
	CodeMultipleResults Code = "MULTIPLE_RESULTS"

	// CodeResultTypeMismatch indicates the caller asked for a result type the plan
	// cannot produce.
	CodeResultTypeMismatch Code = "RESULT_TYPE_MISMATCH"

	// CodeMissingID indicates a document without an identity that cannot be assigned.
	CodeMissingID Code = "MISSING_ID"
)

// Error is a coded pipeline error.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// DocumentType names the document type involved, if any.
	DocumentType string

	// QueryType names the query description type involved, if any.
	QueryType string

	// Member names the document member involved, if any.
	Member string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.QueryType != "":
		return fmt.Sprintf("%s: %s (query=%s)", e.Code, e.Message, e.QueryType)
	case e.DocumentType != "" && e.Member != "":
		return fmt.Sprintf("%s: %s (document=%s, member=%s)", e.Code, e.Message, e.DocumentType, e.Member)
	case e.DocumentType != "":
		return fmt.Sprintf("%s: %s (document=%s)", e.Code, e.Message, e.DocumentType)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedQuery creates an UNSUPPORTED_QUERY_SHAPE error.
func UnsupportedQuery(format string, args ...any) *Error {
	return New(CodeUnsupportedQueryShape, format, args...)
}

// InvalidMember creates an INVALID_MEMBER_KIND error for a document member.
func InvalidMember(documentType, member, reason string) *Error {
	return &Error{
		Code:         CodeInvalidMemberKind,
		Message:      reason,
		DocumentType: documentType,
		Member:       member,
	}
}

// Is reports whether err (or anything it wraps) is an *Error with the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsAmbiguousAlias returns true for AMBIGUOUS_DOCUMENT_TYPE_ALIAS errors.
func IsAmbiguousAlias(err error) bool { return Is(err, CodeAmbiguousAlias) }

// IsUnsupportedQueryShape returns true for UNSUPPORTED_QUERY_SHAPE errors.
func IsUnsupportedQueryShape(err error) bool { return Is(err, CodeUnsupportedQueryShape) }

// IsInvalidMemberKind returns true for INVALID_MEMBER_KIND errors.
func IsInvalidMemberKind(err error) bool { return Is(err, CodeInvalidMemberKind) }

// IsNoResults returns true for NO_RESULTS errors.
func IsNoResults(err error) bool { return Is(err, CodeNoResults) }
