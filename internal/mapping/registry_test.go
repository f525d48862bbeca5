package mapping

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmueller/marten/internal/docerr"
)

type User struct {
	Id        uuid.UUID
	UserName  string
	FirstName string `json:"first_name"`
	LastName  string
	Age       int
	Internal  bool
	Secret    string `json:"-"`
}

type Target struct {
	Id     int64
	Color  string
	Number int32
}

type Squad interface{ SquadName() string }

type FootballTeam struct {
	Id      string
	Name    string
	Stadium string
}

func (f *FootballTeam) SquadName() string { return f.Name }

type BaseballTeam struct {
	Id   string
	Name string
	Park string
}

func (b *BaseballTeam) SquadName() string { return b.Name }

func frozen(t *testing.T, configure func(r *Registry)) *Registry {
	t.Helper()
	r := NewRegistry("")
	configure(r)
	require.NoError(t, r.Freeze())
	return r
}

func TestDefaultAlias(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"User", "user"},
		{"FootballTeam", "footballteam"},
		{"Box[int]", "box_int"},
		{"ÄPFEL", "pfel"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, DefaultAlias(tc.in))
		})
	}
}

func TestMappingFor_Defaults(t *testing.T) {
	r := frozen(t, func(r *Registry) { For[User](r) })

	m, err := r.MappingFor(reflect.TypeFor[*User]())
	require.NoError(t, err)

	assert.Equal(t, "user", m.Alias)
	assert.Equal(t, "mt_doc_user", m.TableName())
	assert.Equal(t, "public.mt_doc_user", m.QualifiedTableName())
	assert.Equal(t, "Id", m.IDMember)
	assert.Equal(t, IDUUID, m.IDKind)
	assert.False(t, m.IsHierarchy())

	again, err := r.MappingFor(reflect.TypeFor[User]())
	require.NoError(t, err)
	assert.Same(t, m, again)
}

func TestMappingFor_UnconfiguredTypeGetsDefault(t *testing.T) {
	r := frozen(t, func(r *Registry) {})

	m, err := r.MappingFor(reflect.TypeFor[Target]())
	require.NoError(t, err)
	assert.Equal(t, IDInt64, m.IDKind)
	assert.Len(t, r.AllDocumentMappings(), 1)
}

func TestMappingFor_BeforeFreeze(t *testing.T) {
	r := NewRegistry("")
	For[User](r)

	_, err := r.MappingFor(reflect.TypeFor[User]())
	assert.Error(t, err)
}

func TestColumns(t *testing.T) {
	r := frozen(t, func(r *Registry) {
		For[User](r).Duplicate("UserName", "Age")
	})
	m, err := r.MappingFor(reflect.TypeFor[User]())
	require.NoError(t, err)

	assert.Equal(t, []TableColumn{
		{"id", "uuid"},
		{"data", "jsonb"},
		{"mt_last_modified", "timestamp with time zone"},
		{"mt_version", "uuid"},
		{"user_name", "character varying"},
		{"age", "bigint"},
	}, m.Columns())
	assert.Equal(t, "id", m.ToTable().PrimaryKey)
}

func TestHierarchy(t *testing.T) {
	r := frozen(t, func(r *Registry) {
		For[Squad](r).
			AddSubClass(reflect.TypeFor[FootballTeam](), "").
			AddSubClass(reflect.TypeFor[*BaseballTeam](), "baseball")
	})

	root, err := r.MappingFor(reflect.TypeFor[Squad]())
	require.NoError(t, err)
	assert.True(t, root.IsHierarchy())
	assert.Equal(t, "mt_doc_squad", root.TableName())
	assert.Equal(t, IDString, root.IDKind)

	cols := root.Columns()
	assert.Equal(t, TableColumn{"mt_doc_type", "character varying"}, cols[4])

	sub, err := r.MappingFor(reflect.TypeFor[BaseballTeam]())
	require.NoError(t, err)
	assert.True(t, sub.IsSubClass())
	assert.Equal(t, "baseball", sub.Alias)
	assert.Equal(t, "public.mt_doc_squad", sub.QualifiedTableName())

	typ, ok := root.TypeFor("footballteam")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[FootballTeam](), typ)

	alias, ok := sub.AliasFor(reflect.TypeFor[*BaseballTeam]())
	require.True(t, ok)
	assert.Equal(t, "baseball", alias)

	_, ok = root.TypeFor("hockey")
	assert.False(t, ok)
}

func TestHierarchy_SubClassMustImplementRoot(t *testing.T) {
	r := NewRegistry("")
	For[Squad](r).AddSubClass(reflect.TypeFor[User](), "")

	assert.Error(t, r.Freeze())
}

func TestHierarchy_DuplicateDiscriminator(t *testing.T) {
	tests := map[string]func(r *Registry){
		"two subclasses": func(r *Registry) {
			For[Squad](r).
				AddSubClass(reflect.TypeFor[FootballTeam](), "team").
				AddSubClass(reflect.TypeFor[BaseballTeam](), "team")
		},
		"subclass uses root alias": func(r *Registry) {
			For[Target](r).AddSubClass(reflect.TypeFor[User](), "target")
		},
	}
	for name, configure := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry("")
			configure(r)

			err := r.Freeze()
			require.Error(t, err)
			assert.True(t, docerr.IsAmbiguousAlias(err))
			assert.Contains(t, err.Error(), "configure an explicit alias")
		})
	}
}

func TestField(t *testing.T) {
	r := frozen(t, func(r *Registry) {
		For[User](r).Duplicate("LastName")
	})
	m, err := r.MappingFor(reflect.TypeFor[User]())
	require.NoError(t, err)

	tests := []struct {
		member string
		want   Field
	}{
		{"Id", Field{Member: "Id", Column: "id", IsID: true, Type: reflect.TypeFor[uuid.UUID]()}},
		{"UserName", Field{Member: "UserName", JSONKey: "UserName", Type: reflect.TypeFor[string]()}},
		{"FirstName", Field{Member: "FirstName", JSONKey: "first_name", Type: reflect.TypeFor[string]()}},
		{"LastName", Field{Member: "LastName", JSONKey: "LastName", Column: "last_name", Type: reflect.TypeFor[string]()}},
		{"Age", Field{Member: "Age", JSONKey: "Age", Type: reflect.TypeFor[int]()}},
	}
	for _, tc := range tests {
		t.Run(tc.member, func(t *testing.T) {
			got, err := m.Field(tc.member)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err = m.Field("Secret")
	assert.True(t, docerr.IsUnsupportedQueryShape(err))
	_, err = m.Field("Nope")
	assert.True(t, docerr.IsUnsupportedQueryShape(err))
}

func TestAssertNoDuplicateAliases(t *testing.T) {
	r := frozen(t, func(r *Registry) {
		For[User](r)
		For[Target](r).Alias("user")
		For[FootballTeam](r)
	})

	err := r.AssertNoDuplicateAliases()
	require.Error(t, err)
	assert.True(t, docerr.IsAmbiguousAlias(err))
	assert.Contains(t, err.Error(), "user (mapping.User, mapping.Target)")

	ok := frozen(t, func(r *Registry) {
		For[User](r)
		For[Target](r)
	})
	assert.NoError(t, ok.AssertNoDuplicateAliases())
}

func TestDeclare(t *testing.T) {
	r := NewRegistry("main")
	m := r.Declare(Declaration{
		Name:       "Invoice",
		IDKind:     IDInt,
		Duplicates: []DuplicatedField{{Member: "CustomerId", ColumnType: "integer"}},
	})
	require.NoError(t, r.Freeze())

	assert.Equal(t, "main.mt_doc_invoice", m.QualifiedTableName())
	assert.Equal(t, TableColumn{"customer_id", "integer"}, m.Columns()[4])

	got, ok := r.Declared("Invoice")
	require.True(t, ok)
	assert.Same(t, m, got)
}

func TestTableDefinition_Equal(t *testing.T) {
	a := &TableDefinition{Name: "mt_doc_user", PrimaryKey: "id", Columns: []TableColumn{
		{"id", "uuid"}, {"data", "jsonb"}, {"mt_last_modified", "timestamp with time zone"},
	}}
	b := &TableDefinition{Name: "MT_DOC_USER", PrimaryKey: "id", Columns: []TableColumn{
		{"id", "UUID"}, {"data", "JSONB"}, {"mt_last_modified", "timestamp   WITH time zone"},
	}}
	assert.True(t, a.Equal(b))

	c := &TableDefinition{Name: "mt_doc_user", PrimaryKey: "id", Columns: a.Columns[:2]}
	assert.False(t, a.Equal(c))

	d := &TableDefinition{Name: "mt_doc_user", PrimaryKey: "", Columns: a.Columns}
	assert.False(t, a.Equal(d))

	var nilDef *TableDefinition
	assert.False(t, a.Equal(nilDef))
	assert.True(t, nilDef.Equal(nil))
}

func TestIDKind(t *testing.T) {
	for _, k := range []IDKind{IDString, IDInt, IDInt64, IDUUID} {
		parsed, err := ParseIDKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseIDKind("decimal")
	assert.Error(t, err)

	assert.Equal(t, "integer", IDInt.ColumnType())
	assert.Equal(t, "character varying", IDString.ColumnType())
}
