package querysql

import (
	"fmt"
	"reflect"

	"github.com/ggmueller/marten/internal/docerr"
)

// Extractor produces the value of one placeholder from a query description.
// Extractors are resolved against the description type once, when the
// command is built.
type Extractor struct {
	// Source describes where the value comes from: "param:<Member>",
	// "const" or "limit".
	Source string

	get       func(desc reflect.Value) any
	needsDesc bool
}

// Extract reads the placeholder value from a description value. desc may be
// the description or a pointer to it.
func (e Extractor) Extract(desc any) (any, error) {
	if e.get == nil {
		return nil, fmt.Errorf("extractor %s is not resolved", e.Source)
	}
	if e.needsDesc && desc == nil {
		return nil, fmt.Errorf("extract %s: nil query description", e.Source)
	}
	v := reflect.ValueOf(desc)
	for v.IsValid() && v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("extract %s: nil query description", e.Source)
		}
		v = v.Elem()
	}
	return e.get(v), nil
}

func constExtractor(source string, value any) Extractor {
	return Extractor{Source: source, get: func(reflect.Value) any { return value }}
}

// paramExtractor resolves a member of the description type: an exported
// field first, then a method without arguments returning one value.
func paramExtractor(desc reflect.Type, member string) (Extractor, error) {
	source := "param:" + member
	if desc == nil {
		return Extractor{}, docerr.UnsupportedQuery("parameter %s used without a query description type", member)
	}
	for desc.Kind() == reflect.Pointer {
		desc = desc.Elem()
	}

	if desc.Kind() == reflect.Struct {
		if f, ok := desc.FieldByName(member); ok {
			if !f.IsExported() {
				return Extractor{}, &docerr.Error{
					Code:      docerr.CodeUnsupportedQueryShape,
					Message:   "parameter " + member + " is not exported",
					QueryType: desc.String(),
				}
			}
			index := f.Index
			return Extractor{Source: source, needsDesc: true, get: func(v reflect.Value) any {
				return v.FieldByIndex(index).Interface()
			}}, nil
		}
	}

	if m, ok := desc.MethodByName(member); ok && m.Type.NumIn() == 1 && m.Type.NumOut() == 1 {
		idx := m.Index
		return Extractor{Source: source, needsDesc: true, get: func(v reflect.Value) any {
			return v.Method(idx).Call(nil)[0].Interface()
		}}, nil
	}
	if m, ok := reflect.PointerTo(desc).MethodByName(member); ok && m.Type.NumIn() == 1 && m.Type.NumOut() == 1 {
		idx := m.Index
		return Extractor{Source: source, needsDesc: true, get: func(v reflect.Value) any {
			// pointer receivers need an addressable copy
			p := reflect.New(v.Type())
			p.Elem().Set(v)
			return p.Method(idx).Call(nil)[0].Interface()
		}}, nil
	}

	return Extractor{}, &docerr.Error{
		Code:      docerr.CodeUnsupportedQueryShape,
		Message:   "query description has no member " + member,
		QueryType: desc.String(),
	}
}
