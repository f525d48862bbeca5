// Package compiled caches one translated plan per compiled query type.
//
// A compiled query is a Go type implementing queryir.Description. Its shape
// is fixed by the type, so the plan is keyed by the concrete type and built
// exactly once; only parameter values vary between executions.
//
// Building a plan is pure: it reads the mapping registry and translates.
// Tables are ensured by whoever executes the plan.
package compiled

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ggmueller/marten/internal/docerr"
	"github.com/ggmueller/marten/internal/mapping"
	"github.com/ggmueller/marten/internal/metrics"
	"github.com/ggmueller/marten/internal/queryir"
	"github.com/ggmueller/marten/internal/querysql"
)

// Plan is an immutable, shared execution plan.
type Plan struct {
	// QueryType is the concrete description type the plan was built for.
	QueryType reflect.Type

	// Document is the queried type; executors hydrate rows through its
	// storage.
	Document reflect.Type

	Mapping *mapping.DocumentMapping
	Command *querysql.Command
}

// Parameters extracts the placeholder values of one execution.
func (p *Plan) Parameters(q queryir.Description) ([]any, error) {
	return p.Command.Parameters(q)
}

// Cache maps query description types to plans. Plans are never evicted;
// failed builds are not cached.
type Cache struct {
	registry *mapping.Registry
	log      *slog.Logger
	metrics  *metrics.Collectors

	plans sync.Map // reflect.Type -> *Plan
	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// WithMetrics records lookups and builds.
func WithMetrics(m *metrics.Collectors) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates an empty cache over the mappings of registry.
func New(registry *mapping.Registry, opts ...Option) *Cache {
	c := &Cache{registry: registry, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PlanFor returns the plan of q's concrete type, building it on first use.
// Concurrent first requests for one type translate once and share the plan.
// It never performs I/O.
func (c *Cache) PlanFor(q queryir.Description) (*Plan, error) {
	if q == nil {
		return nil, fmt.Errorf("plan for nil query")
	}
	t := reflect.TypeOf(q)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if p, ok := c.plans.Load(t); ok {
		c.count(metrics.Hit)
		return p.(*Plan), nil
	}
	c.count(metrics.Miss)

	v, err, _ := c.group.Do(t.PkgPath()+"."+t.String(), func() (any, error) {
		if p, ok := c.plans.Load(t); ok {
			return p, nil
		}
		p, err := c.build(t, q)
		if c.metrics != nil {
			c.metrics.PlanBuildsTotal.WithLabelValues(metrics.Status(err)).Inc()
		}
		if err != nil {
			return nil, err
		}
		actual, _ := c.plans.LoadOrStore(t, p)
		return actual, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Plan), nil
}

// Len reports the number of cached plans.
func (c *Cache) Len() int {
	n := 0
	c.plans.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *Cache) count(result string) {
	if c.metrics != nil {
		c.metrics.PlanCacheRequestsTotal.WithLabelValues(result).Inc()
	}
}

func (c *Cache) build(t reflect.Type, q queryir.Description) (*Plan, error) {
	query := q.QueryIs()
	if query == nil {
		return nil, &docerr.Error{
			Code:      docerr.CodeUnsupportedQueryShape,
			Message:   "QueryIs returned no query",
			QueryType: t.String(),
		}
	}
	if query.Document == nil {
		return nil, &docerr.Error{
			Code:      docerr.CodeUnsupportedQueryShape,
			Message:   "query has no document type",
			QueryType: t.String(),
		}
	}

	m, err := c.registry.MappingFor(query.Document)
	if err != nil {
		return nil, err
	}
	cmd, err := querysql.Translate(m, query, t)
	if err != nil {
		return nil, err
	}

	c.log.Debug("query plan built",
		"query", t.String(),
		"document", m.Name,
		"cardinality", cmd.Cardinality,
		"params", len(cmd.Extractors))
	return &Plan{QueryType: t, Document: query.Document, Mapping: m, Command: cmd}, nil
}
