// Package metrics defines the prometheus collectors of the document pipeline.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Keys for marten metrics.
const (
	PlanCacheRequestsTotalKey    = "marten_plan_cache_requests_total"
	PlanBuildsTotalKey           = "marten_plan_builds_total"
	StorageBuildsTotalKey        = "marten_storage_builds_total"
	SchemaEnsureTotalKey         = "marten_schema_ensure_total"
	DocumentsHydratedTotalKey    = "marten_documents_hydrated_total"
	QueryDurationSecondsKey      = "marten_query_duration_seconds"
	UnitOfWorkOperationsTotalKey = "marten_unit_of_work_operations_total"

	Hit  = "hit"
	Miss = "miss"
	Fail = "fail"
	Ok   = "ok"
)

// Collectors groups the metrics of one document store. Each store owns its
// collectors so several stores can live in one process.
type Collectors struct {
	PlanCacheRequestsTotal    *prometheus.CounterVec
	PlanBuildsTotal           *prometheus.CounterVec
	StorageBuildsTotal        *prometheus.CounterVec
	SchemaEnsureTotal         *prometheus.CounterVec
	DocumentsHydratedTotal    *prometheus.CounterVec
	QueryDurationSeconds      *prometheus.HistogramVec
	UnitOfWorkOperationsTotal *prometheus.CounterVec
}

// New creates unregistered collectors.
func New() *Collectors {
	return &Collectors{
		PlanCacheRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: PlanCacheRequestsTotalKey,
			Help: "Cumulative number of compiled plan lookups.",
		}, []string{"result"}),
		PlanBuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: PlanBuildsTotalKey,
			Help: "Cumulative number of query translations.",
		}, []string{"status"}),
		StorageBuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: StorageBuildsTotalKey,
			Help: "Cumulative number of document storages built.",
		}, []string{"status"}),
		SchemaEnsureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: SchemaEnsureTotalKey,
			Help: "Cumulative number of schema checks by outcome.",
		}, []string{"result"}),
		DocumentsHydratedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: DocumentsHydratedTotalKey,
			Help: "Cumulative number of documents deserialized from rows.",
		}, []string{"document"}),
		QueryDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    QueryDurationSecondsKey,
			Help:    "Duration of compiled query executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"cardinality"}),
		UnitOfWorkOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: UnitOfWorkOperationsTotalKey,
			Help: "Cumulative number of operations committed by SaveChanges.",
		}, []string{"operation"}),
	}
}

// All returns every collector.
func (c *Collectors) All() []prometheus.Collector {
	return []prometheus.Collector{
		c.PlanCacheRequestsTotal,
		c.PlanBuildsTotal,
		c.StorageBuildsTotal,
		c.SchemaEnsureTotal,
		c.DocumentsHydratedTotal,
		c.QueryDurationSeconds,
		c.UnitOfWorkOperationsTotal,
	}
}

// Register registers every collector. Collectors that are already
// registered are left as they are.
func (c *Collectors) Register(r prometheus.Registerer) error {
	var errs []error
	for _, col := range c.All() {
		if err := r.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status maps an error to the status label.
func Status(err error) string {
	if err != nil {
		return Fail
	}
	return Ok
}
