package queryir

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	Id       string
	UserName string
	Age      int
}

type userByName struct {
	Name string
}

func (userByName) QueryIs() *Query {
	return From[*user]().Where(Eq("UserName", P("Name"))).First()
}

func TestBuilder_SimpleQuery(t *testing.T) {
	var d Description = userByName{}
	q := d.QueryIs()

	assert.Equal(t, reflect.TypeFor[user](), q.Document)
	assert.Equal(t, First, q.Terminal)
	assert.Equal(t, ProjectDocument, q.Projection.Kind)
	require.Len(t, q.Where, 1)
	assert.Equal(t, Compare{Left: Field{"UserName"}, Op: OpEq, Right: Param{"Name"}}, q.Where[0])
}

func TestBuilder_WhereCallsAreConjoined(t *testing.T) {
	q := From[user]().
		Where(Gt("Age", C(18))).
		Where(All(NotEq("UserName", C("admin")), Present("Id"))).
		OrderBy("UserName").
		OrderByDescending("Age").
		Skip(P("Offset")).
		Take(C(10)).
		ToList()

	preds := q.Predicates()
	require.Len(t, preds, 3)
	assert.Equal(t, Gt("Age", C(18)), preds[0])
	assert.Equal(t, NotEq("UserName", C("admin")), preds[1])
	assert.Equal(t, Present("Id"), preds[2])

	assert.Equal(t, []Ordering{{Member: "UserName"}, {Member: "Age", Descending: true}}, q.OrderBy)
	assert.Equal(t, Param{"Offset"}, q.Skip)
	assert.Equal(t, Const{10}, q.Take)
}

func TestBuilder_TerminalsDoNotShareState(t *testing.T) {
	b := From[user]().Where(Eq("UserName", P("Name")))
	first := b.First()
	count := b.Count()

	assert.Equal(t, First, first.Terminal)
	assert.Equal(t, Count, count.Terminal)
}

func TestBuilder_Projections(t *testing.T) {
	q := From[user]().Select("UserName").ToList()
	assert.Equal(t, Projection{Kind: ProjectScalar, Member: "UserName"}, q.Projection)

	q = From[user]().SelectFields(As("Name", "UserName"), As("Years", "Age")).ToList()
	assert.Equal(t, ProjectShape, q.Projection.Kind)
	assert.Equal(t, []ShapeField{{"Name", "UserName"}, {"Years", "Age"}}, q.Projection.Fields)

	q = From[user]().AsJSON().First()
	assert.Equal(t, ProjectJSON, q.Projection.Kind)

	q = From[user]().ToJSONArray()
	assert.Equal(t, ProjectJSON, q.Projection.Kind)
	assert.Equal(t, ToJSONArray, q.Terminal)
}

func TestCompareOp_String(t *testing.T) {
	tests := map[CompareOp]string{
		OpEq: "=", OpNotEq: "!=", OpLt: "<", OpLtEq: "<=", OpGt: ">", OpGtEq: ">=",
	}
	for op, want := range tests {
		assert.Equal(t, want, op.String())
		assert.True(t, op.Valid())
	}
	assert.False(t, CompareOp(42).Valid())
	assert.Equal(t, "CompareOp(42)", CompareOp(42).String())
}

func TestSealedPredicates(t *testing.T) {
	preds := []Predicate{
		Eq("A", C(1)), EqIgnoreCase("A", P("B")), Null("A"), Present("A"),
		All(), Either(), Negate(Null("A")),
	}
	for _, p := range preds {
		switch p.(type) {
		case Compare, EqualsIgnoreCase, IsNull, NotNull, And, Or, Not:
		default:
			t.Fatalf("unexpected predicate type %T", p)
		}
	}
}
