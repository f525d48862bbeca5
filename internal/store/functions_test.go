package store

import (
	"testing"
)

func TestJsonbBuildObject(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{"empty", nil, `{}`},
		{"mixed", []any{"Name", "jdm", "Age", int64(42), "Score", 1.5, "Nick", nil}, `{"Name":"jdm","Age":42,"Score":1.5,"Nick":null}`},
		{"order kept", []any{"b", int64(1), "a", int64(2)}, `{"b":1,"a":2}`},
		{"blob as text", []any{"Raw", []byte("<x>")}, `{"Raw":"<x>"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := jsonbBuildObject(tc.args...)
			if err != nil {
				t.Fatalf("jsonbBuildObject() failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("jsonbBuildObject() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestJsonbBuildObject_Errors(t *testing.T) {
	if _, err := jsonbBuildObject("a"); err == nil {
		t.Error("expected error for odd argument count")
	}
	if _, err := jsonbBuildObject(int64(1), "a"); err == nil {
		t.Error("expected error for non-text key")
	}
}
