package storage

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/metrics"
	"github.com/ggmueller/marten/internal/schema"
	"github.com/ggmueller/marten/internal/serializer"
)

// Provider builds and caches one DocumentStorage per document type. The
// first request for a type ensures its table; the ensure result is cached
// with the storage. Failures are not cached, so a corrected schema is picked
// up by the next request.
type Provider struct {
	registry   *mapping.Registry
	sync       *schema.Synchronizer
	serializer serializer.Serializer
	writers    *WriterCache
	uuids      UUIDGenerator
	hilo       *HiLo
	now        func() time.Time
	log        *slog.Logger
	metrics    *metrics.Collectors

	entries sync.Map // reflect.Type -> *entry
	group   singleflight.Group

	hiloMu    sync.Mutex
	hiloReady bool
}

type entry struct {
	storage *DocumentStorage
	result  schema.Result
}

// Option configures a Provider.
type Option func(*Provider)

// WithSerializer replaces the JSON serializer.
func WithSerializer(s serializer.Serializer) Option {
	return func(p *Provider) { p.serializer = s }
}

// WithUUIDGenerator replaces the UUIDv7 generator.
func WithUUIDGenerator(g UUIDGenerator) Option {
	return func(p *Provider) { p.uuids = g }
}

// WithHiLo sets the integer id allocator.
func WithHiLo(h *HiLo) Option {
	return func(p *Provider) { p.hilo = h }
}

// WithClock sets the source of mt_last_modified.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// WithMetrics records storage builds and hydrations.
func WithMetrics(c *metrics.Collectors) Option {
	return func(p *Provider) { p.metrics = c }
}

// NewProvider creates a provider over a frozen registry.
func NewProvider(registry *mapping.Registry, synchronizer *schema.Synchronizer, opts ...Option) *Provider {
	p := &Provider{
		registry:   registry,
		sync:       synchronizer,
		serializer: serializer.JSON{},
		writers:    NewWriterCache(),
		uuids:      UUIDv7Generator{},
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the mapping registry.
func (p *Provider) Registry() *mapping.Registry { return p.registry }

// Serializer returns the document serializer.
func (p *Provider) Serializer() serializer.Serializer { return p.serializer }

// Writers returns the shared writer cache.
func (p *Provider) Writers() *WriterCache { return p.writers }

// StorageFor returns the storage of t, building it and ensuring its table
// on first use. Concurrent first requests build once.
func (p *Provider) StorageFor(ctx context.Context, t reflect.Type) (*DocumentStorage, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if e, ok := p.entries.Load(t); ok {
		return e.(*entry).storage, nil
	}

	v, err, _ := p.group.Do(t.PkgPath()+"."+t.String(), func() (any, error) {
		if e, ok := p.entries.Load(t); ok {
			return e, nil
		}
		e, err := p.build(ctx, t)
		if p.metrics != nil {
			p.metrics.StorageBuildsTotal.WithLabelValues(metrics.Status(err)).Inc()
		}
		if err != nil {
			return nil, err
		}
		actual, _ := p.entries.LoadOrStore(t, e)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry).storage, nil
}

// EnsureResult reports the schema outcome recorded when t's storage was built.
func (p *Provider) EnsureResult(t reflect.Type) (schema.Result, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	e, ok := p.entries.Load(t)
	if !ok {
		return schema.Unchanged, false
	}
	return e.(*entry).result, true
}

func (p *Provider) build(ctx context.Context, t reflect.Type) (*entry, error) {
	m, err := p.registry.MappingFor(t)
	if err != nil {
		return nil, err
	}
	result, err := p.sync.Ensure(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("ensure storage for %s: %w", m.Name, err)
	}
	if m.IDKind == mapping.IDInt || m.IDKind == mapping.IDInt64 {
		if err := p.ensureHiLo(ctx); err != nil {
			return nil, err
		}
	}

	p.log.Debug("document storage built", "document", m.Name, "table", m.QualifiedTableName(), "schema", result)
	return &entry{storage: newDocumentStorage(m, p), result: result}, nil
}

func (p *Provider) ensureHiLo(ctx context.Context) error {
	p.hiloMu.Lock()
	defer p.hiloMu.Unlock()
	if p.hiloReady {
		return nil
	}
	if _, err := p.sync.EnsureHiLo(ctx); err != nil {
		return fmt.Errorf("ensure hilo table: %w", err)
	}
	p.hiloReady = true
	return nil
}
