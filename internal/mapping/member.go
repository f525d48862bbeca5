package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stoewer/go-strcase"
)

// IDKind is the identity strategy of a document type, derived from the Go
// type of its id member.
type IDKind int

const (
	// IDString ids are assigned by the caller.
	IDString IDKind = iota
	// IDInt ids are 32-bit integers assigned from a HiLo sequence.
	IDInt
	// IDInt64 ids are 64-bit integers assigned from a HiLo sequence.
	IDInt64
	// IDUUID ids are version 7 UUIDs assigned on store.
	IDUUID
)

// String returns the kind name used in declarations and logs.
func (k IDKind) String() string {
	switch k {
	case IDString:
		return "string"
	case IDInt:
		return "int"
	case IDInt64:
		return "int64"
	case IDUUID:
		return "uuid"
	}
	return fmt.Sprintf("IDKind(%d)", int(k))
}

// ColumnType is the SQL type of the id column.
func (k IDKind) ColumnType() string {
	switch k {
	case IDInt:
		return "integer"
	case IDInt64:
		return "bigint"
	case IDUUID:
		return "uuid"
	}
	return "character varying"
}

// ParseIDKind parses the names returned by IDKind.String.
func ParseIDKind(s string) (IDKind, error) {
	switch strings.ToLower(s) {
	case "", "string":
		return IDString, nil
	case "int", "int32", "integer":
		return IDInt, nil
	case "int64", "bigint", "long":
		return IDInt64, nil
	case "uuid", "guid":
		return IDUUID, nil
	}
	return 0, fmt.Errorf("unknown id kind %q", s)
}

var (
	uuidType = reflect.TypeFor[uuid.UUID]()
	timeType = reflect.TypeFor[time.Time]()
)

// IDKindOf maps a Go type to an identity strategy.
func IDKindOf(t reflect.Type) (IDKind, bool) {
	if t == uuidType {
		return IDUUID, true
	}
	switch t.Kind() {
	case reflect.String:
		return IDString, true
	case reflect.Int32:
		return IDInt, true
	case reflect.Int, reflect.Int64:
		return IDInt64, true
	}
	return 0, false
}

// ColumnTypeFor maps a Go member type to the SQL type used for duplicated
// columns and casts of JSON members. It reports false for types that are
// stored only as JSON text.
func ColumnTypeFor(t reflect.Type) (string, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case uuidType:
		return "uuid", true
	case timeType:
		return "timestamp with time zone", true
	}
	switch t.Kind() {
	case reflect.String:
		return "character varying", true
	case reflect.Bool:
		return "boolean", true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return "integer", true
	case reflect.Int, reflect.Int64, reflect.Uint32, reflect.Uint, reflect.Uint64:
		return "bigint", true
	case reflect.Float32:
		return "real", true
	case reflect.Float64:
		return "double precision", true
	}
	return "", false
}

// ColumnName is the column name for a duplicated member.
func ColumnName(member string) string {
	return strcase.SnakeCase(member)
}

// JSONKey returns the key encoding/json uses for a struct field and whether
// the field is serialized at all.
func JSONKey(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return f.Name, true
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return "", false
	}
	if name == "" {
		return f.Name, true
	}
	return name, true
}

// Field describes how a document member is located in a row.
type Field struct {
	// Member is the Go member name.
	Member string

	// JSONKey is the key inside the data column. Empty for the id member.
	JSONKey string

	// Type is the Go type of the member.
	Type reflect.Type

	// Column is set when the member lives in its own column: "id" for the
	// identity member, or the duplicated column name.
	Column string

	// IsID marks the identity member.
	IsID bool
}

// structOf dereferences pointers and reports whether t is a struct.
func structOf(t reflect.Type) (reflect.Type, bool) {
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t, t.Kind() == reflect.Struct
}

// memberType finds the Go type of a field or getter named member on t.
// Fields win over methods.
func memberType(t reflect.Type, member string) (reflect.Type, bool) {
	st, ok := structOf(t)
	if !ok {
		return nil, false
	}
	if f, ok := st.FieldByName(member); ok {
		return f.Type, true
	}
	if m, ok := reflect.PointerTo(st).MethodByName(member); ok {
		// receiver counts as the first input
		if m.Type.NumIn() == 1 && m.Type.NumOut() == 1 {
			return m.Type.Out(0), true
		}
	}
	return nil, false
}

// jsonField resolves a serialized struct field named member on t.
func jsonField(t reflect.Type, member string) (reflect.StructField, string, bool) {
	st, ok := structOf(t)
	if !ok {
		return reflect.StructField{}, "", false
	}
	f, ok := st.FieldByName(member)
	if !ok {
		return reflect.StructField{}, "", false
	}
	key, ok := JSONKey(f)
	return f, key, ok
}
