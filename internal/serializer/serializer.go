// Package serializer is the JSON collaborator documents are stored with.
package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Serializer converts documents to and from their stored JSON text.
type Serializer interface {
	ToText(v any) (string, error)
	FromText(text string, t reflect.Type) (any, error)

	// Unmarshal decodes text into an existing value.
	Unmarshal(text string, into any) error
}

// JSON is the default Serializer on top of encoding/json.
//
// HTML escaping is disabled so stored payloads keep <, > and & as written.
type JSON struct{}

var _ Serializer = JSON{}

// ToText encodes v as JSON text without a trailing newline.
func (JSON) ToText(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("serialize %T: %w", v, err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// FromText decodes text as a new value of type t and returns a pointer to it.
// A pointer type t is unwrapped first, so the result is always *Elem.
func (s JSON) FromText(text string, t reflect.Type) (any, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	ptr := reflect.New(t)
	if err := s.Unmarshal(text, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Interface(), nil
}

// Unmarshal implements Serializer.
func (JSON) Unmarshal(text string, into any) error {
	if err := json.Unmarshal([]byte(text), into); err != nil {
		return fmt.Errorf("deserialize %T: %w", into, err)
	}
	return nil
}
