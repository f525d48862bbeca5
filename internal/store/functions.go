package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonbBuildObject mirrors PostgreSQL's jsonb_build_object: alternating keys
// and values, keys in argument order. Values arrive as SQLite values (int64,
// float64, string, []byte or nil).
func jsonbBuildObject(args ...any) (string, error) {
	if len(args)%2 != 0 {
		return "", fmt.Errorf("jsonb_build_object: odd number of arguments")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			return "", fmt.Errorf("jsonb_build_object: key %d is %T, not text", i/2, args[i])
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(key); err != nil {
			return "", err
		}
		// Encoder adds a trailing newline, remove it
		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(':')

		value := args[i+1]
		if b, ok := value.([]byte); ok {
			value = string(b)
		}
		if err := enc.Encode(value); err != nil {
			return "", fmt.Errorf("jsonb_build_object: value for %q: %w", key, err)
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}
