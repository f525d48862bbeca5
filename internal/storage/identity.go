package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ggmueller/marten/internal/schema"
	"github.com/ggmueller/marten/internal/store"
)

// UUIDGenerator produces ids for documents with uuid identities.
type UUIDGenerator interface {
	NewUUID() uuid.UUID
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so documents
// stored later sort after earlier ones in the primary key index.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewUUID creates a new UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewUUID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// FixedGenerator returns predetermined ids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []uuid.UUID
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator(id1, id2)
//	gen.NewUUID() // id1
//	gen.NewUUID() // id2
//	gen.NewUUID() // panic: all ids exhausted
func NewFixedGenerator(ids ...uuid.UUID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// NewUUID returns the next predetermined id.
//
// Panics if all ids have been consumed, so a test that stores more
// documents than it planned for fails loudly.
func (g *FixedGenerator) NewUUID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// HiLo assigns integer ids from blocks reserved in the mt_hilo table.
//
// Each round trip increments the stored high value of a document type and
// reserves maxLo ids: hi*maxLo+1 through hi*maxLo+maxLo. Ids are unique across
// processes sharing the table; they are not gap free.
type HiLo struct {
	exec   store.Executor
	schema string
	maxLo  int64

	mu   sync.Mutex
	seqs map[string]*hiloSequence
}

type hiloSequence struct {
	hi int64
	lo int64 // next lo to hand out; > maxLo means exhausted
}

// NewHiLo creates a HiLo allocator. maxLo below 1 is treated as 1.
func NewHiLo(exec store.Executor, schemaName string, maxLo int) *HiLo {
	if maxLo < 1 {
		maxLo = 1
	}
	return &HiLo{
		exec:   exec,
		schema: schemaName,
		maxLo:  int64(maxLo),
		seqs:   make(map[string]*hiloSequence),
	}
}

// Next returns the next id for an entity.
func (h *HiLo) Next(ctx context.Context, entity string) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	seq, ok := h.seqs[entity]
	if !ok || seq.lo > h.maxLo {
		hi, err := h.reserve(ctx, entity)
		if err != nil {
			return 0, err
		}
		seq = &hiloSequence{hi: hi, lo: 1}
		h.seqs[entity] = seq
	}
	id := seq.hi*h.maxLo + seq.lo
	seq.lo++
	return id, nil
}

func (h *HiLo) reserve(ctx context.Context, entity string) (int64, error) {
	query := fmt.Sprintf(`insert into %s.%s as h (entity_name, hi_value) values ($1, 0)
on conflict (entity_name) do update set hi_value = h.hi_value + 1
returning hi_value`, h.schema, schema.HiLoTable)

	rows, err := h.exec.Query(ctx, query, entity)
	if err != nil {
		return 0, fmt.Errorf("reserve hilo block for %s: %w", entity, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("reserve hilo block for %s: %w", entity, err)
		}
		return 0, fmt.Errorf("reserve hilo block for %s: no row returned", entity)
	}
	var hi int64
	if err := rows.Scan(&hi); err != nil {
		return 0, fmt.Errorf("scan hilo block for %s: %w", entity, err)
	}
	return hi, rows.Err()
}
