package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mallardmetrics/mallard/internal/logger"
	"github.com/mallardmetrics/mallard/internal/models"
)

// Scan returns every event for siteID with a timestamp in [from, to],
// merging the hot-tier SQL table with any overlapping cold-tier
// partition files. This Go function is the union view the original
// builds as a SQL VIEW over a glob of partition files: there is no
// single engine here spanning both tiers, so the merge happens in the
// query layer instead of at the storage layer. Scan does not
// deduplicate: a row whose cold-tier write succeeded but whose hot-tier
// delete failed in FlushEvents is returned twice.
func (s *Store) Scan(ctx context.Context, siteID string, from, to time.Time) ([]models.Event, error) {
	hot, err := s.scanHot(ctx, siteID, from, to)
	if err != nil {
		return nil, fmt.Errorf("scan hot tier: %w", err)
	}

	cold, err := s.scanCold(siteID, from, to)
	if err != nil {
		return nil, fmt.Errorf("scan cold tier: %w", err)
	}

	out := make([]models.Event, 0, len(hot)+len(cold))
	out = append(out, cold...)
	out = append(out, hot...)
	return out, nil
}

func (s *Store) scanHot(ctx context.Context, siteID string, from, to time.Time) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE site_id = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC`,
		siteID, from.Unix(), to.Unix())
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// scanCold decodes every partition file under the date directories that
// overlap [from, to] for siteID. A site with no cold partitions yet
// (nothing has ever been flushed) simply yields no rows: callers see a
// seamless passthrough to hot-tier-only results.
func (s *Store) scanCold(siteID string, from, to time.Time) ([]models.Event, error) {
	if !isSafePathComponent(siteID) {
		return nil, nil
	}

	siteDir := filepath.Join(s.partitionRoot(), "site_id="+siteID)
	if _, err := os.Stat(siteDir); os.IsNotExist(err) {
		return nil, nil
	}

	var out []models.Event
	for d := from.UTC().Truncate(24 * time.Hour); !d.After(to); d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")
		dir := filepath.Join(siteDir, "date="+date)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read partition dir %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			events, err := readPartitionFile(path)
			if err != nil {
				logger.Store().Error().Err(err).Str("path", path).Msg("skipping unreadable partition file")
				continue
			}
			out = append(out, filterByWindow(events, from, to)...)
		}
	}
	return out, nil
}

func filterByWindow(events []models.Event, from, to time.Time) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
			out = append(out, e)
		}
	}
	return out
}
