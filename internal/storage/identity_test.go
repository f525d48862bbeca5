package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggmueller/marten/internal/logger"
	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/schema"
	tu "github.com/ggmueller/marten/internal/testutil"
)

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator(id1, id2)
	assert.Equal(t, id1, gen.NewUUID())
	assert.Equal(t, id2, gen.NewUUID())
	assert.PanicsWithValue(t, "FixedGenerator: all ids exhausted", func() { gen.NewUUID() })
}

func TestUUIDv7Generator(t *testing.T) {
	var gen UUIDv7Generator
	a, b := gen.NewUUID(), gen.NewUUID()
	assert.Equal(t, uuid.Version(7), a.Version())
	assert.NotEqual(t, a, b)
}

func newHiLoStore(t *testing.T) *HiLo {
	t.Helper()
	s := tu.OpenStore(t)
	r := tu.Registry(t, func(*mapping.Registry) {})
	_, err := schema.New(r, s, schema.WithLogger(logger.Discard())).EnsureHiLo(context.Background())
	require.NoError(t, err)
	return NewHiLo(s, r.Schema(), 2)
}

func TestHiLo_Blocks(t *testing.T) {
	h := newHiLoStore(t)
	ctx := context.Background()

	var got []int64
	for i := 0; i < 5; i++ {
		id, err := h.Next(ctx, "invoice")
		require.NoError(t, err)
		got = append(got, id)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, got)

	// entities have independent sequences
	id, err := h.Next(ctx, "order")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestHiLo_SharedTable(t *testing.T) {
	first := newHiLoStore(t)
	second := NewHiLo(first.exec, first.schema, 2)
	ctx := context.Background()

	a, err := first.Next(ctx, "invoice")
	require.NoError(t, err)
	b, err := second.Next(ctx, "invoice")
	require.NoError(t, err)
	c, err := first.Next(ctx, "invoice")
	require.NoError(t, err)

	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(3), b, "second allocator reserves the next block")
	assert.Equal(t, int64(2), c)
}

func TestHiLo_Concurrent(t *testing.T) {
	h := newHiLoStore(t)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := h.Next(ctx, "invoice")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20, "ids are unique")
}

func TestHiLo_MissingTable(t *testing.T) {
	h := NewHiLo(tu.OpenStore(t), "main", 10)
	_, err := h.Next(context.Background(), "invoice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve hilo block for invoice")
}
