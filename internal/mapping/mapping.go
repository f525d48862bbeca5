package mapping

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ggmueller/marten/internal/docerr"
)

// Table and column naming.
const (
	TablePrefix   = "mt_doc_"
	DefaultSchema = "public"

	IDColumn           = "id"
	DataColumn         = "data"
	LastModifiedColumn = "mt_last_modified"
	VersionColumn      = "mt_version"
	DocumentTypeColumn = "mt_doc_type"
)

// DuplicatedField is a JSON member that is also kept in its own column so it
// can be indexed and queried without reaching into the payload.
type DuplicatedField struct {
	Member     string
	JSONKey    string
	Column     string
	ColumnType string
}

// SubClass is a member of a document hierarchy. All subclasses share the
// parent's table; Alias is written to mt_doc_type.
type SubClass struct {
	DocumentType reflect.Type
	Name         string
	Alias        string
}

// DocumentMapping is the mapping of one document type to its table.
//
// Subclass mappings returned by Registry.MappingFor have Parent set; they
// share the parent's table and identity and carry their own discriminator
// alias.
type DocumentMapping struct {
	// DocumentType is the mapped struct or interface type. Nil for mappings
	// declared without a Go type.
	DocumentType reflect.Type

	Name   string
	Alias  string
	Schema string

	IDMember string
	IDKind   IDKind

	// VersionMember receives mt_version on load and save when set.
	VersionMember string

	Duplicates []DuplicatedField
	SubClasses []SubClass

	// Parent is the hierarchy root of a subclass mapping.
	Parent *DocumentMapping

	discriminators map[string]reflect.Type
}

// Root returns the hierarchy root, or m itself.
func (m *DocumentMapping) Root() *DocumentMapping {
	if m.Parent != nil {
		return m.Parent
	}
	return m
}

// IsHierarchy reports whether the mapping's table stores several types.
func (m *DocumentMapping) IsHierarchy() bool {
	return len(m.Root().SubClasses) > 0
}

// IsSubClass reports whether this is a subclass view of a hierarchy.
func (m *DocumentMapping) IsSubClass() bool {
	return m.Parent != nil
}

// TableName is mt_doc_<alias> of the hierarchy root.
func (m *DocumentMapping) TableName() string {
	return TablePrefix + m.Root().Alias
}

// QualifiedTableName is <schema>.<table>.
func (m *DocumentMapping) QualifiedTableName() string {
	return m.Root().Schema + "." + m.TableName()
}

// String implements fmt.Stringer.
func (m *DocumentMapping) String() string {
	return fmt.Sprintf("%s -> %s", m.Name, m.QualifiedTableName())
}

// TypeFor resolves a discriminator alias to its concrete Go type.
func (m *DocumentMapping) TypeFor(alias string) (reflect.Type, bool) {
	t, ok := m.Root().discriminators[alias]
	return t, ok
}

// AliasFor returns the discriminator written for a concrete type.
func (m *DocumentMapping) AliasFor(t reflect.Type) (string, bool) {
	t, _ = structOf(t)
	root := m.Root()
	for _, sc := range root.SubClasses {
		if sc.DocumentType == t {
			return sc.Alias, true
		}
	}
	if root.DocumentType == t && t != nil && t.Kind() == reflect.Struct {
		return root.Alias, true
	}
	return "", false
}

// Columns returns the expected columns in table order.
func (m *DocumentMapping) Columns() []TableColumn {
	root := m.Root()
	cols := []TableColumn{
		{Name: IDColumn, Type: root.IDKind.ColumnType()},
		{Name: DataColumn, Type: "jsonb"},
		{Name: LastModifiedColumn, Type: "timestamp with time zone"},
		{Name: VersionColumn, Type: "uuid"},
	}
	if root.IsHierarchy() {
		cols = append(cols, TableColumn{Name: DocumentTypeColumn, Type: "character varying"})
	}
	for _, d := range root.Duplicates {
		cols = append(cols, TableColumn{Name: d.Column, Type: d.ColumnType})
	}
	return cols
}

// ToTable returns the table definition the mapping expects.
func (m *DocumentMapping) ToTable() *TableDefinition {
	return &TableDefinition{
		Name:       m.TableName(),
		PrimaryKey: IDColumn,
		Columns:    m.Columns(),
	}
}

// Field resolves a document member for querying. The identity member and
// duplicated members resolve to their own columns; everything else must be a
// JSON-serialized struct field.
func (m *DocumentMapping) Field(member string) (Field, error) {
	root := m.Root()
	if member == root.IDMember {
		f := Field{Member: member, Column: IDColumn, IsID: true}
		f.Type, _ = m.memberType(member)
		return f, nil
	}
	for _, d := range root.Duplicates {
		if d.Member == member {
			t, _ := m.memberType(member)
			return Field{Member: member, JSONKey: d.JSONKey, Type: t, Column: d.Column}, nil
		}
	}
	for _, t := range m.searchTypes() {
		f, key, ok := jsonField(t, member)
		if ok {
			return Field{Member: member, JSONKey: key, Type: f.Type}, nil
		}
	}
	return Field{}, docerr.UnsupportedQuery("document %s has no queryable member %q", m.Name, member)
}

func (m *DocumentMapping) memberType(member string) (reflect.Type, bool) {
	for _, t := range m.searchTypes() {
		if mt, ok := memberType(t, member); ok {
			return mt, true
		}
	}
	return nil, false
}

// searchTypes lists the concrete struct types whose members are visible to
// queries against m: the type itself, or every subclass for an interface root.
func (m *DocumentMapping) searchTypes() []reflect.Type {
	if st, ok := structOf(m.DocumentType); ok {
		return []reflect.Type{st}
	}
	var out []reflect.Type
	for _, sc := range m.Root().SubClasses {
		out = append(out, sc.DocumentType)
	}
	return out
}

// ConcreteTypes lists the struct types stored in the mapping's table.
func (m *DocumentMapping) ConcreteTypes() []reflect.Type {
	var out []reflect.Type
	root := m.Root()
	if st, ok := structOf(root.DocumentType); ok {
		out = append(out, st)
	}
	for _, sc := range root.SubClasses {
		out = append(out, sc.DocumentType)
	}
	return out
}

// subClassMapping derives the view of a hierarchy member.
func (m *DocumentMapping) subClassMapping(sc SubClass) *DocumentMapping {
	return &DocumentMapping{
		DocumentType:  sc.DocumentType,
		Name:          sc.Name,
		Alias:         sc.Alias,
		Schema:        m.Schema,
		IDMember:      m.IDMember,
		IDKind:        m.IDKind,
		VersionMember: m.VersionMember,
		Duplicates:    m.Duplicates,
		Parent:        m,
	}
}

// resolveIdentity finds the id member and kind. An explicit member name is
// honored; otherwise Id and ID are tried. Every concrete type stored in the
// table must agree on name and kind.
func (m *DocumentMapping) resolveIdentity() error {
	types := m.ConcreteTypes()
	if len(types) == 0 {
		return fmt.Errorf("document %s: %s has no concrete types", m.Name, m.DocumentType)
	}

	candidates := []string{"Id", "ID"}
	if m.IDMember != "" {
		candidates = []string{m.IDMember}
	}

	var name string
	var idType reflect.Type
	for _, c := range candidates {
		if t, ok := memberType(types[0], c); ok {
			name, idType = c, t
			break
		}
	}
	if name == "" {
		return &docerr.Error{Code: docerr.CodeMissingID, Message: "no identity member found", DocumentType: m.Name}
	}

	kind, ok := IDKindOf(idType)
	if !ok {
		return fmt.Errorf("document %s: id member %s has unsupported type %s", m.Name, name, idType)
	}
	for _, t := range types[1:] {
		other, ok := memberType(t, name)
		if !ok {
			return &docerr.Error{Code: docerr.CodeMissingID, Message: "subclass " + t.String() + " has no identity member " + name, DocumentType: m.Name}
		}
		if k, _ := IDKindOf(other); k != kind {
			return fmt.Errorf("document %s: subclass %s id kind %s differs from %s", m.Name, t, k, kind)
		}
	}

	m.IDMember = name
	m.IDKind = kind
	return nil
}

// resolveDuplicates fills JSON keys and column types of duplicated members.
func (m *DocumentMapping) resolveDuplicates() error {
	for i := range m.Duplicates {
		d := &m.Duplicates[i]
		if m.DocumentType == nil {
			if d.Column == "" {
				d.Column = ColumnName(d.Member)
			}
			if d.JSONKey == "" {
				d.JSONKey = d.Member
			}
			continue
		}
		var found bool
		for _, t := range m.searchTypes() {
			f, key, ok := jsonField(t, d.Member)
			if !ok {
				continue
			}
			colType, ok := ColumnTypeFor(f.Type)
			if !ok {
				return fmt.Errorf("document %s: duplicated member %s has unsupported type %s", m.Name, d.Member, f.Type)
			}
			d.JSONKey = key
			if d.ColumnType == "" {
				d.ColumnType = colType
			}
			found = true
			break
		}
		if !found {
			return fmt.Errorf("document %s: duplicated member %s is not a serialized field", m.Name, d.Member)
		}
		if d.Column == "" {
			d.Column = ColumnName(d.Member)
		}
	}
	return nil
}

// buildDiscriminators fills the alias -> type dispatch table. Every stored
// type of a hierarchy needs its own discriminator.
func (m *DocumentMapping) buildDiscriminators() error {
	m.discriminators = make(map[string]reflect.Type, len(m.SubClasses)+1)
	if st, ok := structOf(m.DocumentType); ok {
		m.discriminators[m.Alias] = st
	}
	for _, sc := range m.SubClasses {
		if other, ok := m.discriminators[sc.Alias]; ok {
			msg := fmt.Sprintf("subclass %s uses discriminator %q of %s, configure an explicit alias",
				sc.DocumentType, sc.Alias, other)
			return &docerr.Error{Code: docerr.CodeAmbiguousAlias, Message: msg, DocumentType: m.Name}
		}
		m.discriminators[sc.Alias] = sc.DocumentType
	}
	return nil
}

// validSubClass reports whether a subclass type can be stored under m.
func (m *DocumentMapping) validSubClass(t reflect.Type) error {
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("document %s: subclass %s is not a struct", m.Name, t)
	}
	if m.DocumentType != nil && m.DocumentType.Kind() == reflect.Interface &&
		!reflect.PointerTo(t).Implements(m.DocumentType) {
		return fmt.Errorf("document %s: subclass %s does not implement %s", m.Name, t, m.DocumentType)
	}
	return nil
}

// typeName is the Go-qualified name used in errors and logs.
func typeName(t reflect.Type) string {
	name := t.String()
	return strings.TrimPrefix(name, "*")
}
