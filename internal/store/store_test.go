package store

import (
	"context"
	"testing"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvent(siteID string, ts time.Time, path string) models.Event {
	return models.Event{
		SiteID:    siteID,
		VisitorID: "abc123",
		Timestamp: ts,
		EventName: "pageview",
		Pathname:  path,
	}
}

func TestInsertHotAndScanRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	events := []models.Event{
		sampleEvent("example.com", now, "/"),
		sampleEvent("example.com", now.Add(time.Minute), "/about"),
	}
	require.NoError(t, s.InsertHot(ctx, events))

	got, err := s.Scan(ctx, "example.com", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestFlushEventsMovesRowsToColdTier(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	events := []models.Event{
		sampleEvent("example.com", day, "/"),
		sampleEvent("example.com", day.Add(time.Hour), "/about"),
	}
	require.NoError(t, s.InsertHot(ctx, events))

	n, err := s.FlushEvents(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	hotRows, err := s.scanHot(ctx, "example.com", day.Add(-24*time.Hour), day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Empty(t, hotRows, "flushed rows must be removed from the hot tier")

	got, err := s.Scan(ctx, "example.com", day.Add(-24*time.Hour), day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2, "flushed rows must still be visible through Scan via the cold tier")
}

func TestFlushEventsSkipsUnsafeSiteID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertHot(ctx, []models.Event{sampleEvent("../escape", day, "/")}))

	n, err := s.FlushEvents(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n, "rows with an unsafe site_id must not be flushed")

	hotRows, err := s.scanHot(ctx, "../escape", day.Add(-time.Hour), day.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, hotRows, 1, "row must remain in the hot tier when its partition is skipped")
}

func TestFlushEventsEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	n, err := s.FlushEvents(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestScanWithNoColdPartitionsIsPassthrough(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.InsertHot(ctx, []models.Event{sampleEvent("example.com", now, "/")}))

	got, err := s.Scan(ctx, "example.com", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestScanFiltersPartitionRowsOutsideWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertHot(ctx, []models.Event{
		sampleEvent("example.com", day, "/early"),
		sampleEvent("example.com", day.Add(12*time.Hour), "/late"),
	}))
	_, err := s.FlushEvents(ctx)
	require.NoError(t, err)

	got, err := s.Scan(ctx, "example.com", day.Add(6*time.Hour), day.Add(18*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "/late", got[0].Pathname)
}

func TestCleanupOldPartitionsRemovesOnlyStaleDates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().AddDate(0, 0, -40)
	recent := time.Now().UTC().AddDate(0, 0, -1)

	require.NoError(t, s.InsertHot(ctx, []models.Event{sampleEvent("example.com", old, "/old")}))
	_, err := s.FlushEvents(ctx)
	require.NoError(t, err)
	require.NoError(t, s.InsertHot(ctx, []models.Event{sampleEvent("example.com", recent, "/recent")}))
	_, err = s.FlushEvents(ctx)
	require.NoError(t, err)

	require.NoError(t, s.CleanupOldPartitions(30))

	got, err := s.Scan(ctx, "example.com", old.AddDate(0, 0, -1), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "/recent", got[0].Pathname)
}

func TestCleanupOldPartitionsDisabledWhenZero(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().AddDate(0, 0, -400)

	require.NoError(t, s.InsertHot(ctx, []models.Event{sampleEvent("example.com", old, "/ancient")}))
	_, err := s.FlushEvents(ctx)
	require.NoError(t, err)

	require.NoError(t, s.CleanupOldPartitions(0))

	got, err := s.Scan(ctx, "example.com", old.AddDate(0, 0, -1), time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 1, "retention of 0 must never prune partitions")
}
