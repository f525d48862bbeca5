// Package marten stores Go structs as JSON documents in PostgreSQL, or in
// SQLite for embedded use, and runs compiled queries against them.
//
// A DocumentStore owns the process-wide pieces: the mapping registry, the
// schema synchronizer, one storage per document type and one plan per
// compiled query type. Sessions are cheap units of work opened from it.
//
//	store, err := marten.Open(ctx, opts, func(r *marten.Registry) {
//		marten.For[User](r).Duplicate("UserName")
//	})
//	s := store.OpenSession()
//	_ = s.Store(ctx, &User{UserName: "jdm"})
//	_ = s.SaveChanges(ctx)
//	u, err := marten.Query[*User](ctx, s, UserByUsername{UserName: "jdm"})
package marten

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ggmueller/marten/internal/compiled"
	"github.com/ggmueller/marten/internal/config"
	"github.com/ggmueller/marten/internal/logger"
	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/metrics"
	"github.com/ggmueller/marten/internal/pgstore"
	"github.com/ggmueller/marten/internal/schema"
	"github.com/ggmueller/marten/internal/session"
	"github.com/ggmueller/marten/internal/storage"
	"github.com/ggmueller/marten/internal/store"
)

type (
	// Options configures a DocumentStore; see config.Load.
	Options = config.StoreOptions

	// Registry holds the document mappings.
	Registry = mapping.Registry

	// Session is a unit of work.
	Session = session.Session
)

// For starts or continues the mapping of document type T.
func For[T any](r *Registry) *mapping.Builder { return mapping.For[T](r) }

// DocumentStore is the entry point for sessions and diagnostics. It is safe
// for concurrent use.
type DocumentStore struct {
	opts     *Options
	exec     store.Executor
	close    func() error
	registry *Registry
	sync     *schema.Synchronizer
	provider *storage.Provider
	plans    *compiled.Cache
	metrics  *metrics.Collectors
	log      *slog.Logger
}

type openConfig struct {
	log        *slog.Logger
	registerer prometheus.Registerer
	uuids      storage.UUIDGenerator
}

// Option configures Open.
type Option func(*openConfig)

// WithLogger replaces the logger built from Options.Log.
func WithLogger(log *slog.Logger) Option {
	return func(c *openConfig) { c.log = log }
}

// WithRegisterer registers the store's metrics.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *openConfig) { c.registerer = r }
}

// WithUUIDGenerator replaces the UUIDv7 id generator.
func WithUUIDGenerator(g storage.UUIDGenerator) Option {
	return func(c *openConfig) { c.uuids = g }
}

// Open connects to the configured database and freezes the mappings added
// by configure. Tables are not touched until a document type is first used.
func Open(ctx context.Context, opts *Options, configure func(r *Registry), options ...Option) (*DocumentStore, error) {
	if opts == nil {
		opts = config.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cfg := openConfig{}
	for _, o := range options {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.New(opts.Log.Level, opts.Log.Format, os.Stderr)
	}

	exec, closeFn, err := connect(ctx, opts, cfg.log)
	if err != nil {
		return nil, err
	}

	ds, err := build(exec, opts, configure, cfg)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	ds.close = closeFn
	return ds, nil
}

func connect(ctx context.Context, opts *Options, log *slog.Logger) (store.Executor, func() error, error) {
	switch opts.Driver {
	case config.DriverPostgres:
		pg, err := pgstore.Open(ctx, opts, log)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() error { pg.Close(); return nil }, nil
	default:
		s, err := store.Open(opts.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info("database opened", "driver", config.DriverSQLite, "path", opts.Path)
		return s, s.Close, nil
	}
}

func build(exec store.Executor, opts *Options, configure func(r *Registry), cfg openConfig) (*DocumentStore, error) {
	schemaName := opts.Schema
	if schemaName == "" {
		schemaName = exec.DefaultSchema()
	}
	registry := mapping.NewRegistry(schemaName)
	if configure != nil {
		configure(registry)
	}
	if err := registry.Freeze(); err != nil {
		return nil, fmt.Errorf("document mappings: %w", err)
	}

	policy, err := schema.ParseAutoCreate(opts.AutoCreate)
	if err != nil {
		return nil, err
	}
	c := metrics.New()
	if cfg.registerer != nil {
		if err := c.Register(cfg.registerer); err != nil {
			return nil, err
		}
	}

	sync := schema.New(registry, exec,
		schema.WithPolicy(policy),
		schema.WithLogger(cfg.log),
		schema.WithMetrics(c))
	providerOpts := []storage.Option{
		storage.WithHiLo(storage.NewHiLo(exec, schemaName, opts.HiloMaxLo)),
		storage.WithLogger(cfg.log),
		storage.WithMetrics(c),
	}
	if cfg.uuids != nil {
		providerOpts = append(providerOpts, storage.WithUUIDGenerator(cfg.uuids))
	}
	provider := storage.NewProvider(registry, sync, providerOpts...)

	return &DocumentStore{
		opts:     opts,
		exec:     exec,
		close:    func() error { return nil },
		registry: registry,
		sync:     sync,
		provider: provider,
		plans:    compiled.New(registry, compiled.WithLogger(cfg.log), compiled.WithMetrics(c)),
		metrics:  c,
		log:      cfg.log,
	}, nil
}

// OpenSession starts a unit of work.
func (s *DocumentStore) OpenSession() *Session {
	return session.New(s.exec, s.provider, s.plans,
		session.WithLogger(s.log),
		session.WithMetrics(s.metrics))
}

// Registry returns the frozen mapping registry.
func (s *DocumentStore) Registry() *Registry { return s.registry }

// Schema returns the schema synchronizer.
func (s *DocumentStore) Schema() *schema.Synchronizer { return s.sync }

// Metrics returns the store's collectors.
func (s *DocumentStore) Metrics() *metrics.Collectors { return s.metrics }

// Executor returns the database connection.
func (s *DocumentStore) Executor() store.Executor { return s.exec }

// Diagnostics returns command previews and query plans.
func (s *DocumentStore) Diagnostics() *Diagnostics { return &Diagnostics{store: s} }

// Close releases the database connection.
func (s *DocumentStore) Close() error {
	if err := s.close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
