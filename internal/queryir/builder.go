package queryir

import "reflect"

// F references a document member.
func F(member string) Field { return Field{Member: member} }

// P references a member of the query description.
func P(member string) Param { return Param{Member: member} }

// C wraps a constant.
func C(v any) Const { return Const{Value: v} }

// Eq is member = right.
func Eq(member string, right Operand) Compare { return Cmp(member, OpEq, right) }

// NotEq is member != right.
func NotEq(member string, right Operand) Compare { return Cmp(member, OpNotEq, right) }

// Lt is member < right.
func Lt(member string, right Operand) Compare { return Cmp(member, OpLt, right) }

// LtEq is member <= right.
func LtEq(member string, right Operand) Compare { return Cmp(member, OpLtEq, right) }

// Gt is member > right.
func Gt(member string, right Operand) Compare { return Cmp(member, OpGt, right) }

// GtEq is member >= right.
func GtEq(member string, right Operand) Compare { return Cmp(member, OpGtEq, right) }

// Cmp builds a comparison with a document member on the left.
func Cmp(member string, op CompareOp, right Operand) Compare {
	return Compare{Left: F(member), Op: op, Right: right}
}

// EqIgnoreCase is a case-insensitive member = right.
func EqIgnoreCase(member string, right Operand) EqualsIgnoreCase {
	return EqualsIgnoreCase{Field: F(member), Right: right}
}

// Null matches a null or absent member.
func Null(member string) IsNull { return IsNull{Field: F(member)} }

// Present matches a non-null member.
func Present(member string) NotNull { return NotNull{Field: F(member)} }

// All conjoins predicates.
func All(ps ...Predicate) And { return And{Predicates: ps} }

// Either builds an Or, which no translator accepts.
func Either(ps ...Predicate) Or { return Or{Predicates: ps} }

// Negate builds a Not, which no translator accepts.
func Negate(p Predicate) Not { return Not{Predicate: p} }

// As pairs a member with its key in a SelectFields projection.
func As(key, member string) ShapeField { return ShapeField{As: key, Member: member} }

// Builder assembles a Query. Every method returns the builder; the
// terminal methods return the finished Query.
type Builder struct {
	q Query
}

// From starts a query over document type T. T may be a pointer, struct or
// interface hierarchy root.
func From[T any]() *Builder {
	return FromType(reflect.TypeFor[T]())
}

// FromType is the reflect.Type form of From.
func FromType(t reflect.Type) *Builder {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return &Builder{q: Query{Document: t}}
}

// Where adds predicates. Successive calls are conjoined.
func (b *Builder) Where(ps ...Predicate) *Builder {
	b.q.Where = append(b.q.Where, ps...)
	return b
}

// OrderBy adds an ascending order key.
func (b *Builder) OrderBy(member string) *Builder {
	b.q.OrderBy = append(b.q.OrderBy, Ordering{Member: member})
	return b
}

// OrderByDescending adds a descending order key.
func (b *Builder) OrderByDescending(member string) *Builder {
	b.q.OrderBy = append(b.q.OrderBy, Ordering{Member: member, Descending: true})
	return b
}

// Take limits the number of rows.
func (b *Builder) Take(n Operand) *Builder {
	b.q.Take = n
	return b
}

// Skip skips rows.
func (b *Builder) Skip(n Operand) *Builder {
	b.q.Skip = n
	return b
}

// Select projects a single member.
func (b *Builder) Select(member string) *Builder {
	b.q.Projection = Projection{Kind: ProjectScalar, Member: member}
	return b
}

// SelectFields projects a new JSON object.
func (b *Builder) SelectFields(fields ...ShapeField) *Builder {
	b.q.Projection = Projection{Kind: ProjectShape, Fields: fields}
	return b
}

// AsJSON returns stored JSON text instead of hydrated documents.
func (b *Builder) AsJSON() *Builder {
	b.q.Projection = Projection{Kind: ProjectJSON}
	return b
}

func (b *Builder) end(t Terminal) *Query {
	q := b.q
	q.Terminal = t
	return &q
}

// ToList ends the query with a list result.
func (b *Builder) ToList() *Query { return b.end(ToList) }

// First ends the query with the first row; no rows is an error.
func (b *Builder) First() *Query { return b.end(First) }

// FirstOrDefault ends the query with the first row or the zero value.
func (b *Builder) FirstOrDefault() *Query { return b.end(FirstOrDefault) }

// Single ends the query with exactly one row.
func (b *Builder) Single() *Query { return b.end(Single) }

// SingleOrDefault ends the query with at most one row.
func (b *Builder) SingleOrDefault() *Query { return b.end(SingleOrDefault) }

// Count ends the query with the number of matching rows.
func (b *Builder) Count() *Query { return b.end(Count) }

// Any ends the query with whether any row matches.
func (b *Builder) Any() *Query { return b.end(Any) }

// ToJSONArray ends the query with the matching documents as one JSON array.
func (b *Builder) ToJSONArray() *Query {
	b.q.Projection = Projection{Kind: ProjectJSON}
	return b.end(ToJSONArray)
}
