package storage

import (
	"fmt"
	"reflect"
	"sync"
	"unicode"
	"unicode/utf8"
	"unsafe"

	"github.com/google/uuid"

	"github.com/ggmueller/marten/internal/docerr"
)

// WriterKind is how a Writer reaches its member.
type WriterKind int

const (
	// FieldWriter assigns an exported field.
	FieldWriter WriterKind = iota
	// UnexportedFieldWriter writes an unexported field through its offset.
	UnexportedFieldWriter
	// PropertyWriter calls a SetX method.
	PropertyWriter
	// BackingFieldWriter writes the field behind a getter-only property.
	BackingFieldWriter
)

// String implements fmt.Stringer.
func (k WriterKind) String() string {
	switch k {
	case FieldWriter:
		return "field"
	case UnexportedFieldWriter:
		return "unexported field"
	case PropertyWriter:
		return "property"
	case BackingFieldWriter:
		return "backing field"
	}
	return fmt.Sprintf("WriterKind(%d)", int(k))
}

// Writer sets one member of one struct type. It is built once per
// (type, member) and holds everything it needs to skip reflection lookups
// on later calls.
type Writer struct {
	Type   reflect.Type
	Member string
	Kind   WriterKind

	// target is the type values are converted to before set runs.
	target reflect.Type
	set    func(doc reflect.Value, v reflect.Value) error
}

// Set writes value into doc, which must be a non-nil pointer to Type.
func (w *Writer) Set(doc any, value any) error {
	pv := reflect.ValueOf(doc)
	if pv.Kind() != reflect.Pointer || pv.IsNil() || pv.Elem().Type() != w.Type {
		return fmt.Errorf("write %s.%s: want *%s, got %T", w.Type, w.Member, w.Type, doc)
	}
	v, err := convert(value, w.target)
	if err != nil {
		return fmt.Errorf("write %s.%s: %w", w.Type, w.Member, err)
	}
	if err := w.set(pv, v); err != nil {
		return fmt.Errorf("write %s.%s: %w", w.Type, w.Member, err)
	}
	return nil
}

// WriterCache holds synthesized writers keyed by (type, member). It is safe
// for concurrent use; a writer that loses a race is discarded.
type WriterCache struct {
	writers sync.Map // writerKey -> *Writer
}

type writerKey struct {
	t      reflect.Type
	member string
}

// NewWriterCache creates an empty cache.
func NewWriterCache() *WriterCache {
	return &WriterCache{}
}

// WriterFor returns the cached writer for a member, synthesizing it on first
// use. Failures are not cached.
func (c *WriterCache) WriterFor(t reflect.Type, member string) (*Writer, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	key := writerKey{t: t, member: member}
	if w, ok := c.writers.Load(key); ok {
		return w.(*Writer), nil
	}
	w, err := SynthesizeWriter(t, member)
	if err != nil {
		return nil, err
	}
	actual, _ := c.writers.LoadOrStore(key, w)
	return actual.(*Writer), nil
}

// SynthesizeWriter builds a writer for a member of struct type t.
//
// Exported fields are assigned directly and unexported fields through their
// offset. A property is an exported method X() with a setter SetX(v); a
// getter-only property is written through its backing field x. Anything else
// fails with INVALID_MEMBER_KIND.
func SynthesizeWriter(t reflect.Type, member string) (*Writer, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, docerr.InvalidMember(t.String(), member, "writers require a struct type, got "+t.Kind().String())
	}

	if f, ok := t.FieldByName(member); ok {
		return fieldWriter(t, member, f, FieldWriter), nil
	}

	pt := reflect.PointerTo(t)
	getter, ok := pt.MethodByName(member)
	if !ok {
		return nil, docerr.InvalidMember(t.String(), member, "member is neither a field nor a property")
	}
	if getter.Type.NumIn() != 1 || getter.Type.NumOut() != 1 {
		return nil, docerr.InvalidMember(t.String(), member, "method is not a property getter")
	}
	valueType := getter.Type.Out(0)

	if setter, ok := pt.MethodByName("Set" + member); ok {
		st := setter.Type
		if st.NumIn() == 2 && st.In(1) == valueType && (st.NumOut() == 0 || (st.NumOut() == 1 && st.Out(0) == errorType)) {
			idx := setter.Index
			return &Writer{
				Type:   t,
				Member: member,
				Kind:   PropertyWriter,
				target: valueType,
				set: func(doc reflect.Value, v reflect.Value) error {
					out := doc.Method(idx).Call([]reflect.Value{v})
					if len(out) == 1 && !out[0].IsNil() {
						return out[0].Interface().(error)
					}
					return nil
				},
			}, nil
		}
	}

	backing := lowerFirst(member)
	if f, ok := t.FieldByName(backing); ok && f.Type == valueType {
		return fieldWriter(t, member, f, BackingFieldWriter), nil
	}
	return nil, docerr.InvalidMember(t.String(), member, "property has no setter and no backing field "+backing)
}

var errorType = reflect.TypeFor[error]()

func fieldWriter(t reflect.Type, member string, f reflect.StructField, kind WriterKind) *Writer {
	w := &Writer{Type: t, Member: member, Kind: kind, target: f.Type}
	if kind == FieldWriter && f.IsExported() {
		index := f.Index
		w.set = func(doc reflect.Value, v reflect.Value) error {
			doc.Elem().FieldByIndex(index).Set(v)
			return nil
		}
		return w
	}
	if kind == FieldWriter {
		w.Kind = UnexportedFieldWriter
	}

	if offset, ok := fieldOffset(t, f.Index); ok {
		ft := f.Type
		w.set = func(doc reflect.Value, v reflect.Value) error {
			reflect.NewAt(ft, unsafe.Add(doc.UnsafePointer(), offset)).Elem().Set(v)
			return nil
		}
		return w
	}
	// promoted through an embedded pointer: the offset is not static
	index := f.Index
	w.set = func(doc reflect.Value, v reflect.Value) error {
		fv, err := doc.Elem().FieldByIndexErr(index)
		if err != nil {
			return err
		}
		reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem().Set(v)
		return nil
	}
	return w
}

// fieldOffset sums the offsets along an index path. ok is false when the
// path crosses an embedded pointer.
func fieldOffset(t reflect.Type, index []int) (uintptr, bool) {
	var offset uintptr
	for i, idx := range index {
		f := t.Field(idx)
		offset += f.Offset
		if i < len(index)-1 {
			if f.Type.Kind() != reflect.Struct {
				return 0, false
			}
			t = f.Type
		}
	}
	return offset, true
}

// readMember reads a field (exported or not) or a getter of doc, a pointer
// to a struct.
func readMember(doc reflect.Value, member string) (reflect.Value, bool) {
	st := doc.Elem()
	if f, ok := st.Type().FieldByName(member); ok {
		fv, err := st.FieldByIndexErr(f.Index)
		if err != nil {
			return reflect.Value{}, false
		}
		if f.IsExported() {
			return fv, true
		}
		return reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem(), true
	}
	m := doc.MethodByName(member)
	if m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0], true
	}
	return reflect.Value{}, false
}

// convert adapts a stored value to a member type: uuids from text, integers
// across widths and strings from bytes.
func convert(value any, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}
	v := reflect.ValueOf(value)
	if v.Type() == target {
		return v, nil
	}
	// [16]byte is assignable to uuid.UUID but must come back as one.
	if v.Type().AssignableTo(target) {
		return v.Convert(target), nil
	}

	if target == uuidType {
		switch raw := value.(type) {
		case string:
			id, err := uuid.Parse(raw)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(id), nil
		case []byte:
			id, err := uuid.ParseBytes(raw)
			if err != nil {
				id, err = uuid.FromBytes(raw)
			}
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(id), nil
		}
	}
	if b, ok := value.([]byte); ok && target.Kind() == reflect.String {
		return reflect.ValueOf(string(b)).Convert(target), nil
	}
	if isNumber(v.Kind()) && isNumber(target.Kind()) {
		return v.Convert(target), nil
	}
	if isNumber(v.Kind()) && target.Kind() == reflect.Bool {
		return reflect.ValueOf(!v.IsZero()).Convert(target), nil
	}
	if v.Kind() == reflect.String && target.Kind() == reflect.String {
		return v.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %T to %s", value, target)
}

// Convert converts a scanned database value to target. Drivers disagree on
// the Go types they return for uuid, integer and boolean columns.
func Convert(value any, target reflect.Type) (any, error) {
	v, err := convert(value, target)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

var uuidType = reflect.TypeFor[uuid.UUID]()

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
