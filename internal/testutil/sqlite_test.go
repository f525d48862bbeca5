package testutil

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmueller/marten/internal/mapping"
)

type widget struct {
	Id   string
	Name string
}

func TestOpenStore(t *testing.T) {
	s := OpenStore(t)
	names, err := s.TableNames(context.Background(), "main")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRegistry(t *testing.T) {
	r := Registry(t, func(r *mapping.Registry) {
		mapping.For[widget](r).Alias("gadget")
	})

	m, err := r.MappingFor(reflect.TypeFor[widget]())
	require.NoError(t, err)
	assert.Equal(t, "main.mt_doc_gadget", m.QualifiedTableName())
}
