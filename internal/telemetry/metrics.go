package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// StoreMetrics holds the metric instruments for the record store.
type StoreMetrics struct {
	RecordsStoredCounter  metric.Int64Counter
	PagesAllocatedCounter metric.Int64Counter
	CacheHitsCounter      metric.Int64Counter
	OperationLatency      metric.Int64Histogram
}

// NewStoreMetrics creates and registers the record store instruments.
func NewStoreMetrics(meter metric.Meter) (*StoreMetrics, error) {
	recordsStored, err := meter.Int64Counter(
		"tuplelab.recordstore.records_stored",
		metric.WithDescription("Total number of records written to pages."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pagesAllocated, err := meter.Int64Counter(
		"tuplelab.recordstore.pages_allocated",
		metric.WithDescription("Total number of pages allocated by the record store."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"tuplelab.recordstore.cache_hits",
		metric.WithDescription("Retrievals answered from the decoded record cache."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Int64Histogram(
		"tuplelab.recordstore.operation.duration",
		metric.WithDescription("Latency of record store operations."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &StoreMetrics{
		RecordsStoredCounter:  recordsStored,
		PagesAllocatedCounter: pagesAllocated,
		CacheHitsCounter:      cacheHits,
		OperationLatency:      latency,
	}, nil
}

// PlannerMetrics holds the metric instruments for join enumeration.
type PlannerMetrics struct {
	PlansEvaluatedCounter metric.Int64Counter
	SearchLatency         metric.Int64Histogram
}

// NewPlannerMetrics creates and registers the planner instruments.
func NewPlannerMetrics(meter metric.Meter) (*PlannerMetrics, error) {
	plansEvaluated, err := meter.Int64Counter(
		"tuplelab.optimizer.plans_evaluated",
		metric.WithDescription("Number of join trees costed during plan search."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	searchLatency, err := meter.Int64Histogram(
		"tuplelab.optimizer.search.duration",
		metric.WithDescription("Duration of a plan search strategy."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &PlannerMetrics{
		PlansEvaluatedCounter: plansEvaluated,
		SearchLatency:         searchLatency,
	}, nil
}
