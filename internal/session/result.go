package session

import (
	"context"
	"reflect"

	"github.com/ggmueller/marten/internal/queryir"
	"github.com/ggmueller/marten/internal/serializer"
	"github.com/ggmueller/marten/internal/storage"
)

// Query runs q and converts its result to T.
func Query[T any](ctx context.Context, s *Session, q queryir.Description) (T, error) {
	var zero T
	v, err := s.Query(ctx, q)
	if err != nil {
		return zero, err
	}
	return As[T](v, s.serializer)
}

// QueryList runs q and converts every element of its result to T. A query
// with a single-row cardinality yields at most one element.
func QueryList[T any](ctx context.Context, s *Session, q queryir.Description) ([]T, error) {
	v, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		if v == nil {
			return []T{}, nil
		}
		items = []any{v}
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		t, err := As[T](item, s.serializer)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Load returns the document of type T with id. ok is false when there is
// none.
func Load[T any](ctx context.Context, s *Session, id any) (doc T, ok bool, err error) {
	v, err := s.Load(ctx, reflect.TypeFor[T](), id)
	if err != nil || v == nil {
		return doc, false, err
	}
	doc, err = As[T](v, s.serializer)
	return doc, err == nil, err
}

// As converts a query result to T. Documents convert to their struct,
// pointer or an interface they implement; JSON text converts to string or
// decodes into T; scalars convert between numeric kinds. Anything else is
// RESULT_TYPE_MISMATCH.
func As[T any](v any, ser serializer.Serializer) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	rv, err := convertResult(v, reflect.TypeFor[T](), ser)
	if err != nil {
		return zero, err
	}
	return rv.Interface().(T), nil
}

func convertResult(v any, t reflect.Type, ser serializer.Serializer) (reflect.Value, error) {
	vt := reflect.TypeOf(v)
	if vt.AssignableTo(t) {
		rv := reflect.New(t).Elem()
		rv.Set(reflect.ValueOf(v))
		return rv, nil
	}
	if vt.Kind() == reflect.Pointer && vt.Elem().AssignableTo(t) {
		return reflect.ValueOf(v).Elem(), nil
	}

	if text, ok := v.(string); ok && decodable(t) {
		ptr := reflect.New(t)
		if err := ser.Unmarshal(text, ptr.Interface()); err != nil {
			return reflect.Value{}, resultMismatch("cannot decode result into %s: %v", t, err)
		}
		return ptr.Elem(), nil
	}

	if !isStructLike(vt) {
		if out, err := storage.Convert(v, t); err == nil {
			return reflect.ValueOf(out), nil
		}
	}
	return reflect.Value{}, resultMismatch("cannot convert %s to %s", vt, t)
}

func decodable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice:
		return true
	case reflect.Pointer:
		return t.Elem().Kind() == reflect.Struct
	}
	return false
}

func isStructLike(t reflect.Type) bool {
	return t.Kind() == reflect.Struct || (t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct)
}
