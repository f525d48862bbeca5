package queryir

import (
	"fmt"
	"reflect"
)

// Description is implemented by compiled query types. QueryIs must return
// the same query shape for every value of the type: it is called once per
// type and the result is cached.
type Description interface {
	QueryIs() *Query
}

// Predicate is a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Operand is a value position in a predicate or paging clause.
//
// This is a sealed interface - only types in this package implement it.
type Operand interface {
	operandNode()
}

// Field references a member of the queried document.
type Field struct {
	Member string
}

func (Field) operandNode() {}

// Param references a member of the query description. Its value is read
// from the description on every execution.
type Param struct {
	Member string
}

func (Param) operandNode() {}

// Const is a value fixed when the query is written. It is still bound as a
// parameter, never interpolated.
type Const struct {
	Value any
}

func (Const) operandNode() {}

// CompareOp is a binary comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq
)

// String returns the SQL spelling of the operator.
func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNotEq:
		return "!="
	case OpLt:
		return "<"
	case OpLtEq:
		return "<="
	case OpGt:
		return ">"
	case OpGtEq:
		return ">="
	}
	return fmt.Sprintf("CompareOp(%d)", int(op))
}

// Valid reports whether op is one of the defined operators.
func (op CompareOp) Valid() bool {
	return op >= OpEq && op <= OpGtEq
}

// Compare is <left> <op> <right>. Left must be a Field.
type Compare struct {
	Left  Operand
	Op    CompareOp
	Right Operand
}

func (Compare) predicateNode() {}

// EqualsIgnoreCase is a case-insensitive string equality.
type EqualsIgnoreCase struct {
	Field Field
	Right Operand
}

func (EqualsIgnoreCase) predicateNode() {}

// IsNull matches documents where the member is null or absent.
type IsNull struct {
	Field Field
}

func (IsNull) predicateNode() {}

// NotNull matches documents where the member is present and not null.
type NotNull struct {
	Field Field
}

func (NotNull) predicateNode() {}

// And requires all predicates. Nested Ands are flattened.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is representable so that descriptions using it fail with a clear
// error at plan time. No translator accepts it.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not is representable but never translated, like Or.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Ordering is one order-by key.
type Ordering struct {
	Member     string
	Descending bool
}

// ProjectionKind selects what a query returns per row.
type ProjectionKind int

const (
	// ProjectDocument returns hydrated documents.
	ProjectDocument ProjectionKind = iota
	// ProjectScalar returns one member per row.
	ProjectScalar
	// ProjectShape returns a JSON object built from several members.
	ProjectShape
	// ProjectJSON returns the raw stored JSON.
	ProjectJSON
)

// String implements fmt.Stringer.
func (k ProjectionKind) String() string {
	switch k {
	case ProjectDocument:
		return "document"
	case ProjectScalar:
		return "scalar"
	case ProjectShape:
		return "shape"
	case ProjectJSON:
		return "json"
	}
	return fmt.Sprintf("ProjectionKind(%d)", int(k))
}

// ShapeField maps a document member to a key of a projected object.
type ShapeField struct {
	As     string
	Member string
}

// Projection describes the select list.
type Projection struct {
	Kind ProjectionKind

	// Member is set for ProjectScalar.
	Member string

	// Fields is set for ProjectShape, in output order.
	Fields []ShapeField
}

// Terminal is the operator that ends a query and fixes its cardinality.
type Terminal int

const (
	ToList Terminal = iota
	First
	FirstOrDefault
	Single
	SingleOrDefault
	Count
	Any
	ToJSONArray
)

// String implements fmt.Stringer.
func (t Terminal) String() string {
	switch t {
	case ToList:
		return "ToList"
	case First:
		return "First"
	case FirstOrDefault:
		return "FirstOrDefault"
	case Single:
		return "Single"
	case SingleOrDefault:
		return "SingleOrDefault"
	case Count:
		return "Count"
	case Any:
		return "Any"
	case ToJSONArray:
		return "ToJSONArray"
	}
	return fmt.Sprintf("Terminal(%d)", int(t))
}

// Query is a complete compiled query: a document source, filters, ordering,
// paging, projection and terminal.
type Query struct {
	// Document is the queried document type. A subclass of a hierarchy
	// restricts the query to that subclass.
	Document reflect.Type

	Where      []Predicate
	OrderBy    []Ordering
	Take       Operand
	Skip       Operand
	Projection Projection
	Terminal   Terminal
}

// Predicates returns the where list with nested Ands flattened.
func (q *Query) Predicates() []Predicate {
	var out []Predicate
	var walk func(ps []Predicate)
	walk = func(ps []Predicate) {
		for _, p := range ps {
			switch v := p.(type) {
			case And:
				walk(v.Predicates)
			case *And:
				walk(v.Predicates)
			default:
				out = append(out, p)
			}
		}
	}
	walk(q.Where)
	return out
}
