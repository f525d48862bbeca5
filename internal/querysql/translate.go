package querysql

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ggmueller/marten/internal/docerr"
	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/queryir"
)

// Cardinality tells the executor how to shape the rows of a command.
type Cardinality int

const (
	// CardinalitySingle returns one row; none is NO_RESULTS.
	CardinalitySingle Cardinality = iota
	// CardinalitySingleOrDefault returns one row or the zero value.
	CardinalitySingleOrDefault
	// CardinalityList returns every row.
	CardinalityList
	// CardinalityScalar returns the single value of a one-row aggregate.
	CardinalityScalar
	// CardinalityJSON returns the stored JSON of one row.
	CardinalityJSON
	// CardinalityJSONArray concatenates the stored JSON of all rows into one array.
	CardinalityJSONArray
	// CardinalityBoolean returns a one-row boolean aggregate.
	CardinalityBoolean
)

// String implements fmt.Stringer.
func (c Cardinality) String() string {
	switch c {
	case CardinalitySingle:
		return "Single"
	case CardinalitySingleOrDefault:
		return "SingleOrDefault"
	case CardinalityList:
		return "List"
	case CardinalityScalar:
		return "Scalar"
	case CardinalityJSON:
		return "Json"
	case CardinalityJSONArray:
		return "JsonArray"
	case CardinalityBoolean:
		return "Boolean"
	}
	return fmt.Sprintf("Cardinality(%d)", int(c))
}

// Command is a translated query: SQL with $1..$n placeholders and one
// extractor per placeholder, in placeholder order.
type Command struct {
	Template    string
	Extractors  []Extractor
	Cardinality Cardinality

	// Projection is the row shape: hydrated documents, one scalar, a JSON
	// object or stored JSON text.
	Projection queryir.ProjectionKind

	// ScalarType is the Go type of a scalar projection.
	ScalarType reflect.Type

	// Unique marks Single and SingleOrDefault: more than one row is an error.
	Unique bool

	// Required marks First and Single: no row is NO_RESULTS.
	Required bool

	// DescriptionType is the query description the extractors read from.
	DescriptionType reflect.Type

	Mapping *mapping.DocumentMapping
}

// Parameters extracts the placeholder values from a description value.
func (c *Command) Parameters(desc any) ([]any, error) {
	if c.DescriptionType != nil && desc != nil {
		t := reflect.TypeOf(desc)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t != c.DescriptionType {
			return nil, fmt.Errorf("command built for %s, got %s", c.DescriptionType, t)
		}
	}
	params := make([]any, len(c.Extractors))
	for i, e := range c.Extractors {
		v, err := e.Extract(desc)
		if err != nil {
			return nil, err
		}
		params[i] = v
	}
	return params, nil
}

// Translate turns a query into a command for the mapping's table. desc is
// the query description type that Param operands are read from; it may be
// nil for queries without parameters.
//
// Translate is a pure function: no I/O, no shared state.
func Translate(m *mapping.DocumentMapping, q *queryir.Query, desc reflect.Type) (*Command, error) {
	if err := queryir.Validate(q); err != nil {
		return nil, withQueryType(err, desc)
	}
	if m == nil {
		return nil, fmt.Errorf("translate: nil mapping")
	}
	for desc != nil && desc.Kind() == reflect.Pointer {
		desc = desc.Elem()
	}

	tr := &translation{m: m, desc: desc}
	cmd, err := tr.translate(q)
	if err != nil {
		return nil, withQueryType(err, desc)
	}
	return cmd, nil
}

// withQueryType stamps the description type onto pipeline errors.
func withQueryType(err error, desc reflect.Type) error {
	de, ok := err.(*docerr.Error)
	if !ok || desc == nil || de.QueryType != "" {
		return err
	}
	cp := *de
	cp.QueryType = desc.String()
	return &cp
}

// translation holds the state of one Translate call.
type translation struct {
	m          *mapping.DocumentMapping
	desc       reflect.Type
	extractors []Extractor
}

// bind appends an extractor and returns its placeholder.
func (t *translation) bind(e Extractor) string {
	t.extractors = append(t.extractors, e)
	return fmt.Sprintf("$%d", len(t.extractors))
}

func (t *translation) bindOperand(o queryir.Operand) (string, error) {
	switch op := o.(type) {
	case queryir.Param:
		e, err := paramExtractor(t.desc, op.Member)
		if err != nil {
			return "", err
		}
		return t.bind(e), nil
	case queryir.Const:
		return t.bind(constExtractor("const", op.Value)), nil
	}
	return "", docerr.UnsupportedQuery("operand %T cannot be bound", o)
}

// rightOperand renders the right side of a comparison. Another document
// member is located in place and binds nothing.
func (t *translation) rightOperand(o queryir.Operand) (string, error) {
	if field, ok := o.(queryir.Field); ok {
		f, err := t.m.Field(field.Member)
		if err != nil {
			return "", err
		}
		return locate(f), nil
	}
	return t.bindOperand(o)
}

func (t *translation) translate(q *queryir.Query) (*Command, error) {
	cmd := &Command{
		Projection:      q.Projection.Kind,
		DescriptionType: t.desc,
		Mapping:         t.m,
	}

	selectList, err := t.selectList(q, cmd)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("select ")
	sb.WriteString(selectList)
	sb.WriteString(" from ")
	sb.WriteString(t.m.QualifiedTableName())
	sb.WriteString(" as d")

	where, err := t.where(q)
	if err != nil {
		return nil, err
	}
	if len(where) > 0 {
		sb.WriteString(" where ")
		sb.WriteString(strings.Join(where, " and "))
	}

	if len(q.OrderBy) > 0 {
		keys := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			f, err := t.m.Field(o.Member)
			if err != nil {
				return nil, err
			}
			key := locate(f)
			if o.Descending {
				key += " desc"
			}
			keys = append(keys, key)
		}
		sb.WriteString(" order by ")
		sb.WriteString(strings.Join(keys, ", "))
	}

	limit, err := t.limit(q)
	if err != nil {
		return nil, err
	}
	if limit != "" {
		sb.WriteString(" LIMIT ")
		sb.WriteString(limit)
	}
	if q.Skip != nil {
		placeholder, err := t.bindOperand(q.Skip)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" OFFSET ")
		sb.WriteString(placeholder)
	}

	cmd.Template = sb.String()
	cmd.Extractors = t.extractors
	cmd.Cardinality = cardinality(q)
	cmd.Unique = q.Terminal == queryir.Single || q.Terminal == queryir.SingleOrDefault
	cmd.Required = q.Terminal == queryir.First || q.Terminal == queryir.Single
	return cmd, nil
}

func cardinality(q *queryir.Query) Cardinality {
	switch q.Terminal {
	case queryir.Count:
		return CardinalityScalar
	case queryir.Any:
		return CardinalityBoolean
	case queryir.ToJSONArray:
		return CardinalityJSONArray
	case queryir.ToList:
		return CardinalityList
	case queryir.First, queryir.Single:
		if q.Projection.Kind == queryir.ProjectJSON {
			return CardinalityJSON
		}
		return CardinalitySingle
	}
	if q.Projection.Kind == queryir.ProjectJSON {
		return CardinalityJSON
	}
	return CardinalitySingleOrDefault
}

func (t *translation) selectList(q *queryir.Query, cmd *Command) (string, error) {
	switch q.Terminal {
	case queryir.Count:
		return "count(*)", nil
	case queryir.Any:
		return "(count(*) > 0)", nil
	}

	switch q.Projection.Kind {
	case queryir.ProjectJSON:
		return "d." + mapping.DataColumn, nil
	case queryir.ProjectScalar:
		f, err := t.m.Field(q.Projection.Member)
		if err != nil {
			return "", err
		}
		cmd.ScalarType = f.Type
		return locate(f), nil
	case queryir.ProjectShape:
		parts := make([]string, 0, len(q.Projection.Fields))
		for _, sf := range q.Projection.Fields {
			f, err := t.m.Field(sf.Member)
			if err != nil {
				return "", err
			}
			parts = append(parts, quote(sf.As)+", "+locate(f))
		}
		return "jsonb_build_object(" + strings.Join(parts, ", ") + ")", nil
	}
	return DocumentSelectList(t.m), nil
}

// DocumentSelectList is the select list row readers expect for hydrated
// documents. Hierarchies read the discriminator right after the payload.
func DocumentSelectList(m *mapping.DocumentMapping) string {
	if m.IsHierarchy() {
		return "d.id, d.data, d.mt_doc_type, d.mt_version"
	}
	return "d.id, d.data, d.mt_version"
}

func (t *translation) where(q *queryir.Query) ([]string, error) {
	var out []string
	for _, p := range q.Predicates() {
		clause, err := t.predicate(p)
		if err != nil {
			return nil, err
		}
		out = append(out, clause)
	}
	if t.m.IsSubClass() {
		out = append(out, "d."+mapping.DocumentTypeColumn+" = "+quote(t.m.Alias))
	}
	return out, nil
}

func (t *translation) predicate(p queryir.Predicate) (string, error) {
	switch pred := p.(type) {
	case queryir.Compare:
		return t.compare(pred)
	case *queryir.Compare:
		return t.compare(*pred)
	case queryir.EqualsIgnoreCase:
		return t.equalsIgnoreCase(pred)
	case *queryir.EqualsIgnoreCase:
		return t.equalsIgnoreCase(*pred)
	case queryir.IsNull:
		return t.nullCheck(pred.Field, "is null")
	case *queryir.IsNull:
		return t.nullCheck(pred.Field, "is null")
	case queryir.NotNull:
		return t.nullCheck(pred.Field, "is not null")
	case *queryir.NotNull:
		return t.nullCheck(pred.Field, "is not null")
	}
	return "", docerr.UnsupportedQuery("predicate %T is not supported", p)
}

func (t *translation) compare(c queryir.Compare) (string, error) {
	left, ok := c.Left.(queryir.Field)
	if !ok {
		return "", docerr.UnsupportedQuery("left side of %s must be a document member", c.Op)
	}
	f, err := t.m.Field(left.Member)
	if err != nil {
		return "", err
	}
	right, err := t.rightOperand(c.Right)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", locate(f), c.Op, right), nil
}

func (t *translation) equalsIgnoreCase(e queryir.EqualsIgnoreCase) (string, error) {
	f, err := t.m.Field(e.Field.Member)
	if err != nil {
		return "", err
	}
	right, err := t.rightOperand(e.Right)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("lower(%s) = lower(%s)", locate(f), right), nil
}

func (t *translation) nullCheck(field queryir.Field, check string) (string, error) {
	f, err := t.m.Field(field.Member)
	if err != nil {
		return "", err
	}
	return rawLocator(f) + " " + check, nil
}

// limit binds the row limit. First-style terminals fetch one row, Single
// fetches two so a second match can be detected.
func (t *translation) limit(q *queryir.Query) (string, error) {
	switch q.Terminal {
	case queryir.First, queryir.FirstOrDefault:
		return t.bind(constExtractor("limit", 1)), nil
	case queryir.Single, queryir.SingleOrDefault:
		return t.bind(constExtractor("limit", 2)), nil
	}
	if q.Take != nil {
		return t.bindOperand(q.Take)
	}
	return "", nil
}

// locate returns the SQL expression for a member, cast to its column type
// when the member is not text.
func locate(f mapping.Field) string {
	raw := rawLocator(f)
	if f.Column != "" {
		return raw
	}
	if cast := castType(f.Type); cast != "" {
		return "CAST(" + raw + " as " + cast + ")"
	}
	return raw
}

func rawLocator(f mapping.Field) string {
	if f.Column != "" {
		return "d." + f.Column
	}
	return "d." + mapping.DataColumn + " ->> " + quote(f.JSONKey)
}

// castType is the cast applied to ->> text. Strings and uuids compare as
// text.
func castType(t reflect.Type) string {
	if t == nil {
		return ""
	}
	colType, ok := mapping.ColumnTypeFor(t)
	if !ok {
		return ""
	}
	switch colType {
	case "character varying", "uuid":
		return ""
	}
	return colType
}

// quote renders a SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
