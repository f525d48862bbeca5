package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/store"
)

// OpenStore opens a SQLite store in a temp directory, closed at test end.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "marten.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Registry creates a registry for the SQLite schema, lets configure add
// mappings and freezes it.
func Registry(t *testing.T, configure func(r *mapping.Registry)) *mapping.Registry {
	t.Helper()
	r := mapping.NewRegistry(store.Schema)
	if configure != nil {
		configure(r)
	}
	require.NoError(t, r.Freeze())
	return r
}
