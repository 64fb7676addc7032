package query

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/mallardmetrics/mallard/internal/querycache"
)

// EventSource is the subset of *store.Store the query layer depends
// on. Keeping this as an interface (rather than importing
// internal/store directly) avoids tying aggregation logic to the
// storage package's concurrency details.
type EventSource interface {
	Scan(ctx context.Context, siteID string, from, to time.Time) ([]models.Event, error)
}

// Querier dispatches aggregations onto a bounded worker pool distinct
// from the network reactor, and fronts them with a result cache keyed
// by aggregation kind, site, range, and parameters.
type Querier struct {
	events EventSource
	cache  *querycache.Cache
	sem    *semaphore.Weighted
}

func New(events EventSource, cache *querycache.Cache, maxConcurrent int64) *Querier {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Querier{events: events, cache: cache, sem: semaphore.NewWeighted(maxConcurrent)}
}

// Range is an inclusive [From, To] query window; store.Scan includes
// events at both ends.
type Range struct {
	From time.Time
	To   time.Time
}

// dispatch runs one aggregation result-cached and on the bounded
// worker pool. The hot-tier handle is acquired at most once per call,
// inside fn's call to Scan.
func dispatch[T any](ctx context.Context, q *Querier, siteID, op string, r Range, params []string, fn func([]models.Event) (T, error)) (T, error) {
	var zero T
	key := querycache.Key(siteID, op, append([]string{r.From.Format(time.RFC3339), r.To.Format(time.RFC3339)}, params...)...)

	if q.cache != nil {
		var cached T
		if q.cache.Get(ctx, key, &cached) {
			return cached, nil
		}
	}

	if err := q.sem.Acquire(ctx, 1); err != nil {
		return zero, fmt.Errorf("acquire query worker: %w", err)
	}
	defer q.sem.Release(1)

	events, err := q.events.Scan(ctx, siteID, r.From, r.To)
	if err != nil {
		return zero, fmt.Errorf("scan events: %w", err)
	}

	result, err := fn(events)
	if err != nil {
		return zero, err
	}

	if q.cache != nil {
		q.cache.Set(ctx, key, result)
	}
	return result, nil
}

// CoreMetrics computes GET /api/stats/main.
func (q *Querier) CoreMetrics(ctx context.Context, siteID string, r Range) (CoreMetrics, error) {
	return dispatch(ctx, q, siteID, "core_metrics", r, nil, func(events []models.Event) (CoreMetrics, error) {
		return CoreMetricsFor(events), nil
	})
}

// Timeseries computes GET /api/stats/timeseries.
func (q *Querier) Timeseries(ctx context.Context, siteID string, r Range, g Granularity) ([]TimeBucket, error) {
	return dispatch(ctx, q, siteID, "timeseries", r, []string{fmt.Sprint(g)}, func(events []models.Event) ([]TimeBucket, error) {
		return TimeseriesFor(events, g), nil
	})
}

// Breakdown computes GET /api/stats/breakdown/{dimension}.
func (q *Querier) Breakdown(ctx context.Context, siteID string, r Range, d Dimension, limit int) ([]BreakdownRow, error) {
	return dispatch(ctx, q, siteID, "breakdown", r, []string{fmt.Sprint(d), fmt.Sprint(limit)}, func(events []models.Event) ([]BreakdownRow, error) {
		return BreakdownFor(events, d, limit), nil
	})
}

// Sessions computes GET /api/stats/sessions.
func (q *Querier) Sessions(ctx context.Context, siteID string, r Range) (SessionMetrics, error) {
	return dispatch(ctx, q, siteID, "sessions", r, nil, func(events []models.Event) (SessionMetrics, error) {
		return SessionMetricsFor(events), nil
	})
}

// Funnel computes GET /api/stats/funnel.
func (q *Querier) Funnel(ctx context.Context, siteID string, r Range, steps []StepCondition, stepKeys []string, window time.Duration) ([]FunnelStep, error) {
	return dispatch(ctx, q, siteID, "funnel", r, append(stepKeys, window.String()), func(events []models.Event) ([]FunnelStep, error) {
		return FunnelFor(events, steps, window), nil
	})
}

// Retention computes GET /api/stats/retention. It scans from the dawn
// of recorded time for the site (full history) so that first-seen can
// be computed correctly even when r.From is recent.
func (q *Querier) Retention(ctx context.Context, siteID string, r Range, numWeeks int) ([]RetentionCohort, error) {
	full := Range{From: time.Unix(0, 0).UTC(), To: r.To}
	return dispatch(ctx, q, siteID, "retention", full, []string{fmt.Sprint(numWeeks), r.From.Format(time.RFC3339)}, func(events []models.Event) ([]RetentionCohort, error) {
		return RetentionFor(events, r.From, r.To, numWeeks), nil
	})
}

// Sequence computes GET /api/stats/sequences.
func (q *Querier) Sequence(ctx context.Context, siteID string, r Range, steps []StepCondition, stepKeys []string, window time.Duration) (SequenceMatchResult, error) {
	return dispatch(ctx, q, siteID, "sequence", r, append(stepKeys, window.String()), func(events []models.Event) (SequenceMatchResult, error) {
		return SequenceFor(events, steps, window), nil
	})
}

// Flow computes GET /api/stats/flow.
func (q *Querier) Flow(ctx context.Context, siteID string, r Range, targetPage string) ([]FlowNode, error) {
	return dispatch(ctx, q, siteID, "flow", r, []string{targetPage}, func(events []models.Event) ([]FlowNode, error) {
		return FlowFor(events, targetPage), nil
	})
}

// Revenue computes GET /api/stats/revenue.
func (q *Querier) Revenue(ctx context.Context, siteID string, r Range) ([]RevenueByCurrency, error) {
	return dispatch(ctx, q, siteID, "revenue", r, nil, func(events []models.Event) ([]RevenueByCurrency, error) {
		return RevenueFor(events), nil
	})
}
