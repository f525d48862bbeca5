package mapping

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ggmueller/marten/internal/docerr"
)

var lower = cases.Lower(language.Und)

// DefaultAlias derives an alias from a type name: lower-cased, with anything
// outside [a-z0-9_] replaced so the result is a valid table suffix.
func DefaultAlias(name string) string {
	name = lower.String(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

// Registry owns every DocumentMapping of a store.
//
// Configuration (For, Declare) happens before Freeze. After Freeze mappings
// are immutable and MappingFor may be called from any goroutine; a type that
// was never configured gets a default mapping on first lookup.
type Registry struct {
	schema string

	mu       sync.Mutex
	frozen   bool
	roots    map[reflect.Type]*DocumentMapping
	declared map[string]*DocumentMapping
	order    []*DocumentMapping
	errs     []error

	resolved sync.Map // reflect.Type -> *DocumentMapping
}

// NewRegistry creates a registry placing tables in schema ("public" when empty).
func NewRegistry(schema string) *Registry {
	if schema == "" {
		schema = DefaultSchema
	}
	return &Registry{
		schema:   schema,
		roots:    make(map[reflect.Type]*DocumentMapping),
		declared: make(map[string]*DocumentMapping),
	}
}

// Schema returns the database schema tables live in.
func (r *Registry) Schema() string { return r.schema }

// Builder configures one document mapping.
type Builder struct {
	r *Registry
	m *DocumentMapping
}

// For returns the builder for document type T, creating its mapping on first
// use. T may be a struct, a pointer to a struct, or an interface used as a
// hierarchy root.
func For[T any](r *Registry) *Builder {
	return r.ForType(reflect.TypeFor[T]())
}

// ForType is the reflect.Type form of For.
func (r *Registry) ForType(t reflect.Type) *Builder {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if r.frozen {
		r.errs = append(r.errs, fmt.Errorf("mapping for %s configured after freeze", t))
		return &Builder{r: r, m: &DocumentMapping{}}
	}
	m, ok := r.roots[t]
	if !ok {
		m = newMapping(t, r.schema)
		r.roots[t] = m
		r.order = append(r.order, m)
	}
	return &Builder{r: r, m: m}
}

func newMapping(t reflect.Type, schema string) *DocumentMapping {
	return &DocumentMapping{
		DocumentType: t,
		Name:         typeName(t),
		Alias:        DefaultAlias(t.Name()),
		Schema:       schema,
	}
}

// Alias overrides the table alias.
func (b *Builder) Alias(alias string) *Builder {
	b.m.Alias = alias
	return b
}

// Identity names the id member. Without it Id and then ID are tried.
func (b *Builder) Identity(member string) *Builder {
	b.m.IDMember = member
	return b
}

// Version names the member that receives mt_version.
func (b *Builder) Version(member string) *Builder {
	b.m.VersionMember = member
	return b
}

// Duplicate keeps members in their own columns next to the payload.
func (b *Builder) Duplicate(members ...string) *Builder {
	for _, member := range members {
		b.m.Duplicates = append(b.m.Duplicates, DuplicatedField{Member: member})
	}
	return b
}

// AddSubClass adds a hierarchy member. An empty alias defaults to the
// lower-cased type name.
func (b *Builder) AddSubClass(t reflect.Type, alias string) *Builder {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if alias == "" {
		alias = DefaultAlias(t.Name())
	}
	b.m.SubClasses = append(b.m.SubClasses, SubClass{DocumentType: t, Name: typeName(t), Alias: alias})
	return b
}

// Mapping returns the mapping being configured.
func (b *Builder) Mapping() *DocumentMapping { return b.m }

// Declaration describes a document mapping without a Go type, as loaded from
// document spec files.
type Declaration struct {
	Name       string
	Alias      string
	IDKind     IDKind
	Duplicates []DuplicatedField
	SubClasses []string
}

// Declare registers a mapping from a declaration.
func (r *Registry) Declare(d Declaration) *DocumentMapping {
	r.mu.Lock()
	defer r.mu.Unlock()

	alias := d.Alias
	if alias == "" {
		alias = DefaultAlias(d.Name)
	}
	m := &DocumentMapping{
		Name:       d.Name,
		Alias:      alias,
		Schema:     r.schema,
		IDMember:   "Id",
		IDKind:     d.IDKind,
		Duplicates: append([]DuplicatedField(nil), d.Duplicates...),
	}
	for _, sc := range d.SubClasses {
		m.SubClasses = append(m.SubClasses, SubClass{Name: sc, Alias: DefaultAlias(sc)})
	}
	if r.frozen {
		r.errs = append(r.errs, fmt.Errorf("declaration %s added after freeze", d.Name))
		return m
	}
	r.declared[d.Name] = m
	r.order = append(r.order, m)
	return m
}

// Freeze validates and completes every configured mapping. It is idempotent;
// later calls return the first result.
//
// Alias uniqueness is not checked here: see AssertNoDuplicateAliases.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.Join(r.errs...)
	}
	r.frozen = true

	for _, m := range r.order {
		if err := complete(m); err != nil {
			r.errs = append(r.errs, err)
		}
	}
	return errors.Join(r.errs...)
}

func complete(m *DocumentMapping) error {
	if m.DocumentType != nil {
		for _, sc := range m.SubClasses {
			if err := m.validSubClass(sc.DocumentType); err != nil {
				return err
			}
		}
		if err := m.resolveIdentity(); err != nil {
			return err
		}
		if err := m.buildDiscriminators(); err != nil {
			return err
		}
	}
	return m.resolveDuplicates()
}

// MappingFor returns the mapping of t. Subclasses resolve to a view of their
// hierarchy; unknown types get a default mapping that is added to the
// registry.
func (r *Registry) MappingFor(t reflect.Type) (*DocumentMapping, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if v, ok := r.resolved.Load(t); ok {
		return v.(*DocumentMapping), nil
	}

	m, err := r.resolve(t)
	if err != nil {
		return nil, err
	}
	actual, _ := r.resolved.LoadOrStore(t, m)
	return actual.(*DocumentMapping), nil
}

func (r *Registry) resolve(t reflect.Type) (*DocumentMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.roots[t]; ok {
		if !r.frozen {
			return nil, fmt.Errorf("mapping for %s requested before freeze", t)
		}
		return m, nil
	}
	for _, root := range r.roots {
		for _, sc := range root.SubClasses {
			if sc.DocumentType == t {
				if !r.frozen {
					return nil, fmt.Errorf("mapping for %s requested before freeze", t)
				}
				return root.subClassMapping(sc), nil
			}
		}
	}

	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("no document mapping for %s", t)
	}
	m := newMapping(t, r.schema)
	if err := complete(m); err != nil {
		return nil, err
	}
	r.roots[t] = m
	r.order = append(r.order, m)
	return m, nil
}

// Declared returns a mapping registered through Declare.
func (r *Registry) Declared(name string) (*DocumentMapping, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.declared[name]
	return m, ok
}

// AllDocumentMappings returns every root mapping in registration order.
func (r *Registry) AllDocumentMappings() []*DocumentMapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*DocumentMapping(nil), r.order...)
}

// AssertNoDuplicateAliases fails with AMBIGUOUS_DOCUMENT_TYPE_ALIAS when two
// registered mappings share an alias. The message lists every offending
// alias with the types that claim it.
func (r *Registry) AssertNoDuplicateAliases() error {
	byAlias := make(map[string][]string)
	for _, m := range r.AllDocumentMappings() {
		byAlias[m.Alias] = append(byAlias[m.Alias], m.Name)
	}

	var dups []string
	for alias, names := range byAlias {
		if len(names) > 1 {
			dups = append(dups, fmt.Sprintf("%s (%s)", alias, strings.Join(names, ", ")))
		}
	}
	if len(dups) == 0 {
		return nil
	}
	sort.Strings(dups)
	return docerr.New(docerr.CodeAmbiguousAlias,
		"document types share an alias, configure an explicit alias for: %s", strings.Join(dups, "; "))
}
