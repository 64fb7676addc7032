package query

import (
	"context"
	"testing"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	events []models.Event
	calls  int
}

func (f *fakeSource) Scan(ctx context.Context, siteID string, from, to time.Time) ([]models.Event, error) {
	f.calls++
	return f.events, nil
}

func TestQuerierCoreMetricsUncached(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	src := &fakeSource{events: []models.Event{
		ev("v1", "pageview", "/", base),
		ev("v2", "pageview", "/", base),
	}}
	q := New(src, nil, 2)

	m, err := q.CoreMetrics(context.Background(), "example.com", Range{From: base.Add(-time.Hour), To: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, m.UniqueVisitors)
	assert.Equal(t, 1, src.calls)
}

func TestQuerierCachesRepeatedQuery(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	src := &fakeSource{events: []models.Event{ev("v1", "pageview", "/", base)}}
	cache, err := newTestCache(ctx)
	require.NoError(t, err)
	q := New(src, cache, 2)

	r := Range{From: base.Add(-time.Hour), To: base.Add(time.Hour)}
	_, err = q.CoreMetrics(ctx, "example.com", r)
	require.NoError(t, err)
	_, err = q.CoreMetrics(ctx, "example.com", r)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls, "second call must be served from cache without rescanning")
}
