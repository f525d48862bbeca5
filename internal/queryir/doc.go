// Package queryir provides the closed query representation that compiled
// document queries are written in.
//
// A query description is a Go type (usually a struct whose fields are the
// query's parameters) with a QueryIs method returning a *Query. The Query is
// data, not code: it is translated once per description type into SQL and
// the description's fields are read on every execution.
//
//	type UserByUsername struct{ UserName string }
//
//	func (UserByUsername) QueryIs() *queryir.Query {
//		return queryir.From[User]().
//			Where(queryir.Eq("UserName", queryir.P("UserName"))).
//			First()
//	}
//
// GRAMMAR:
//
// The grammar is closed. Everything a translator must handle is listed here:
//
//	Predicate  Compare{Field op Operand}   op ∈ =, !=, <, <=, >, >=
//	           EqualsIgnoreCase{Field, Operand}
//	           IsNull{Field}, NotNull{Field}
//	           And{Predicates}              (flattened into the where list)
//	           Or, Not                      (representable, always rejected)
//	Operand    Field{Member}                document member
//	           Param{Member}                member of the query description
//	           Const{Value}                 compile-time constant
//	Ordering   OrderBy(member), OrderByDescending(member)
//	Paging     Take(operand), Skip(operand)
//	Projection whole document, Select(member), SelectFields(...), AsJSON()
//	Terminal   ToList, First, FirstOrDefault, Single, SingleOrDefault,
//	           Count, Any, ToJSONArray
//
// SEALED INTERFACES:
//
// Predicate and Operand are sealed with marker methods so that translators
// can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Compare:
//	case EqualsIgnoreCase:
//	case IsNull, NotNull:
//	case And:
//	default:
//	    // Or, Not: unsupported
//	}
package queryir
