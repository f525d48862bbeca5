package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmueller/marten/internal/docerr"
)

func TestValidate_Accepts(t *testing.T) {
	tests := []struct {
		name string
		q    *Query
	}{
		{"first", From[user]().Where(Eq("UserName", P("Name"))).First()},
		{"all operators", From[user]().Where(
			Eq("Age", C(1)), NotEq("Age", C(1)), Lt("Age", C(1)),
			LtEq("Age", C(1)), Gt("Age", C(1)), GtEq("Age", C(1)),
		).ToList()},
		{"member to member", From[user]().Where(Eq("Age", F("Id")), EqIgnoreCase("UserName", F("UserName"))).ToList()},
		{"ignore case", From[user]().Where(EqIgnoreCase("UserName", P("Name"))).Single()},
		{"nulls", From[user]().Where(Null("UserName"), Present("Age")).ToList()},
		{"nested and", From[user]().Where(All(All(Eq("Age", C(1))))).ToList()},
		{"paging", From[user]().OrderBy("Age").Skip(P("Skip")).Take(C(int64(5))).ToList()},
		{"count", From[user]().Where(Gt("Age", C(1))).Count()},
		{"any", From[user]().Any()},
		{"scalar", From[user]().Select("UserName").ToList()},
		{"shape", From[user]().SelectFields(As("Name", "UserName")).FirstOrDefault()},
		{"json", From[user]().AsJSON().SingleOrDefault()},
		{"json array", From[user]().OrderBy("UserName").ToJSONArray()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.NoError(t, Validate(tc.q))
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		q       *Query
		message string
	}{
		{"nil", nil, "nil query"},
		{"no document", &Query{}, "no document type"},
		{"or", From[user]().Where(Either(Eq("Age", C(1)), Eq("Age", C(2)))).ToList(), "or predicates"},
		{"not", From[user]().Where(Negate(Null("Age"))).ToList(), "not predicates"},
		{"unknown operator", From[user]().Where(Cmp("Age", CompareOp(9), C(1))).ToList(), "unknown operator"},
		{"param on left", From[user]().Where(Compare{Left: P("Name"), Op: OpEq, Right: C("x")}).ToList(), "left side"},
		{"unnamed right member", From[user]().Where(Eq("Age", F(""))).ToList(), "document member without name"},
		{"missing right", From[user]().Where(Eq("Age", nil)).ToList(), "missing right operand"},
		{"float take", From[user]().Take(C(1.5)).ToList(), "take constant must be an integer"},
		{"count with order", From[user]().OrderBy("Age").Count(), "ordering or paging"},
		{"any with projection", From[user]().Select("Age").Any(), "cannot be combined with a scalar projection"},
		{"first with take", From[user]().Take(C(3)).First(), "cannot be combined with take"},
		{"duplicate shape key", From[user]().SelectFields(As("A", "Age"), As("A", "Id")).ToList(), "used twice"},
		{"empty select", From[user]().Select("").ToList(), "select without member"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.q)
			require.Error(t, err)
			assert.True(t, docerr.IsUnsupportedQueryShape(err))
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	q := From[user]().Where(Either(), Negate(nil)).Take(C("ten")).ToList()

	err := Validate(q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "or predicates")
	assert.Contains(t, err.Error(), "not predicates")
	assert.Contains(t, err.Error(), "take constant")
}
