package marten

import (
	"context"

	"github.com/ggmueller/marten/internal/docerr"
	"github.com/ggmueller/marten/internal/queryir"
	"github.com/ggmueller/marten/internal/session"
)

type (
	// Description is implemented by compiled query types.
	Description = queryir.Description

	// QueryDef is the query a description returns from QueryIs.
	QueryDef = queryir.Query

	// Error is the coded error of the document pipeline.
	Error = docerr.Error
)

// Query runs a compiled query and converts the result to T.
func Query[T any](ctx context.Context, s *Session, q Description) (T, error) {
	return session.Query[T](ctx, s, q)
}

// QueryList runs a compiled query and converts each result to T.
func QueryList[T any](ctx context.Context, s *Session, q Description) ([]T, error) {
	return session.QueryList[T](ctx, s, q)
}

// Load returns the document of type T with id.
func Load[T any](ctx context.Context, s *Session, id any) (T, bool, error) {
	return session.Load[T](ctx, s, id)
}

// From starts a query over document type T.
func From[T any]() *queryir.Builder { return queryir.From[T]() }

// Query building blocks.
var (
	F            = queryir.F
	P            = queryir.P
	C            = queryir.C
	Eq           = queryir.Eq
	NotEq        = queryir.NotEq
	Lt           = queryir.Lt
	LtEq         = queryir.LtEq
	Gt           = queryir.Gt
	GtEq         = queryir.GtEq
	EqIgnoreCase = queryir.EqIgnoreCase
	IsNull       = queryir.Null
	NotNull      = queryir.Present
	All          = queryir.All
	As           = queryir.As
)

// Error classification.
var (
	IsAmbiguousAlias        = docerr.IsAmbiguousAlias
	IsUnsupportedQueryShape = docerr.IsUnsupportedQueryShape
	IsInvalidMemberKind     = docerr.IsInvalidMemberKind
	IsNoResults             = docerr.IsNoResults
)
