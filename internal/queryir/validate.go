package queryir

import (
	"fmt"
	"strings"

	"github.com/ggmueller/marten/internal/docerr"
)

// Validate checks a query against the closed grammar. It does not resolve
// member names; that needs a document mapping and happens at translation.
//
// All problems are reported together in one UNSUPPORTED_QUERY_SHAPE error.
//
// Validate is a pure function with no side effects.
func Validate(q *Query) error {
	if q == nil {
		return docerr.UnsupportedQuery("nil query")
	}

	v := &validator{}
	v.validateQuery(q)
	if len(v.problems) == 0 {
		return nil
	}
	return docerr.UnsupportedQuery("%s", strings.Join(v.problems, "; "))
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q *Query) {
	if q.Document == nil {
		v.addProblem("query has no document type")
	}

	for _, p := range q.Where {
		v.validatePredicate(p)
	}

	for _, o := range q.OrderBy {
		if o.Member == "" {
			v.addProblem("order by without member")
		}
	}

	v.validatePaging("take", q.Take)
	v.validatePaging("skip", q.Skip)
	v.validateProjection(q)
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addProblem("nil predicate")
	case Compare:
		v.validateCompare(pred)
	case *Compare:
		v.validateCompare(*pred)
	case EqualsIgnoreCase:
		v.validateField(pred.Field)
		v.validateValue(pred.Right)
	case *EqualsIgnoreCase:
		v.validateField(pred.Field)
		v.validateValue(pred.Right)
	case IsNull:
		v.validateField(pred.Field)
	case *IsNull:
		v.validateField(pred.Field)
	case NotNull:
		v.validateField(pred.Field)
	case *NotNull:
		v.validateField(pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or, *Or:
		v.addProblem("or predicates are not supported, use separate queries")
	case Not, *Not:
		v.addProblem("not predicates are not supported, use the negated operator")
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}

func (v *validator) validateCompare(c Compare) {
	if !c.Op.Valid() {
		v.addProblem("unknown operator %s", c.Op)
	}
	left, ok := c.Left.(Field)
	if !ok {
		v.addProblem("left side of %s must be a document member, got %T", c.Op, c.Left)
	} else {
		v.validateField(left)
	}
	v.validateValue(c.Right)
}

func (v *validator) validateField(f Field) {
	if f.Member == "" {
		v.addProblem("document member without name")
	}
}

// validateValue accepts parameters, constants and other document members
// on the right side.
func (v *validator) validateValue(o Operand) {
	switch op := o.(type) {
	case Param:
		if op.Member == "" {
			v.addProblem("parameter without member")
		}
	case Const:
	case Field:
		v.validateField(op)
	case nil:
		v.addProblem("missing right operand")
	default:
		v.addProblem("unknown operand type %T", o)
	}
}

func (v *validator) validatePaging(clause string, o Operand) {
	switch op := o.(type) {
	case nil:
	case Param:
		if op.Member == "" {
			v.addProblem("%s parameter without member", clause)
		}
	case Const:
		switch op.Value.(type) {
		case int, int32, int64:
		default:
			v.addProblem("%s constant must be an integer, got %T", clause, op.Value)
		}
	default:
		v.addProblem("%s must be a parameter or constant, got %T", clause, o)
	}
}

func (v *validator) validateProjection(q *Query) {
	p := q.Projection
	switch p.Kind {
	case ProjectDocument, ProjectJSON:
	case ProjectScalar:
		if p.Member == "" {
			v.addProblem("select without member")
		}
	case ProjectShape:
		if len(p.Fields) == 0 {
			v.addProblem("select fields without fields")
		}
		seen := make(map[string]bool, len(p.Fields))
		for _, f := range p.Fields {
			if f.As == "" || f.Member == "" {
				v.addProblem("select field needs a key and a member")
			}
			if seen[f.As] {
				v.addProblem("select field key %q used twice", f.As)
			}
			seen[f.As] = true
		}
	default:
		v.addProblem("unknown projection %s", p.Kind)
	}

	switch q.Terminal {
	case ToList, First, FirstOrDefault, Single, SingleOrDefault:
	case Count, Any:
		if p.Kind != ProjectDocument {
			v.addProblem("%s cannot be combined with a %s projection", q.Terminal, p.Kind)
		}
		if len(q.OrderBy) > 0 || q.Take != nil || q.Skip != nil {
			v.addProblem("%s cannot be combined with ordering or paging", q.Terminal)
		}
	case ToJSONArray:
		if p.Kind != ProjectJSON {
			v.addProblem("ToJSONArray requires a json projection")
		}
	default:
		v.addProblem("unknown terminal %s", q.Terminal)
	}

	switch q.Terminal {
	case First, FirstOrDefault, Single, SingleOrDefault:
		if q.Take != nil {
			v.addProblem("%s cannot be combined with take", q.Terminal)
		}
	}
}
