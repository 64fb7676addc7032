package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mallardmetrics/mallard/internal/models"
)

// InsertHot bulk-inserts events into the hot tier inside a single
// transaction: either every row lands, or none do.
func (s *Store) InsertHot(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hot insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (`+eventColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare hot insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, eventArgs(e)...); err != nil {
			return fmt.Errorf("insert event row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hot insert: %w", err)
	}
	return nil
}

func eventArgs(e models.Event) []any {
	return []any{
		e.SiteID, e.VisitorID, e.Timestamp.Unix(), e.EventName, e.Pathname,
		nullIfEmpty(e.Hostname), nullIfEmpty(e.Referrer), nullIfEmpty(e.ReferrerSource),
		nullIfEmpty(e.UTMSource), nullIfEmpty(e.UTMMedium), nullIfEmpty(e.UTMCampaign),
		nullIfEmpty(e.UTMContent), nullIfEmpty(e.UTMTerm),
		nullIfEmpty(e.Browser), nullIfEmpty(e.BrowserVersion), nullIfEmpty(e.OS), nullIfEmpty(e.OSVersion),
		nullIfEmpty(e.DeviceType), nullIfEmpty(e.ScreenSize),
		nullIfEmpty(e.CountryCode), nullIfEmpty(e.Region), nullIfEmpty(e.City),
		nullIfEmpty(e.Props), e.RevenueAmount, nullIfEmpty(e.RevenueCurrency),
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanRows converts every row of an events result set into Events and
// closes rows; used by Scan's hot-tier read and by FlushEvents.
func scanRows(rows *sql.Rows) ([]models.Event, error) {
	defer rows.Close()
	var out []models.Event
	for rows.Next() {
		var e models.Event
		var ts int64
		var hostname, referrer, referrerSource sql.NullString
		var utmSource, utmMedium, utmCampaign, utmContent, utmTerm sql.NullString
		var browser, browserVersion, os, osVersion sql.NullString
		var deviceType, screenSize, countryCode, region, city, props sql.NullString
		var revenueCurrency sql.NullString
		var revenueAmount sql.NullFloat64

		if err := rows.Scan(
			&e.SiteID, &e.VisitorID, &ts, &e.EventName, &e.Pathname,
			&hostname, &referrer, &referrerSource,
			&utmSource, &utmMedium, &utmCampaign, &utmContent, &utmTerm,
			&browser, &browserVersion, &os, &osVersion,
			&deviceType, &screenSize, &countryCode, &region, &city,
			&props, &revenueAmount, &revenueCurrency,
		); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.Timestamp = unixToTime(ts)
		e.Hostname = hostname.String
		e.Referrer = referrer.String
		e.ReferrerSource = referrerSource.String
		e.UTMSource = utmSource.String
		e.UTMMedium = utmMedium.String
		e.UTMCampaign = utmCampaign.String
		e.UTMContent = utmContent.String
		e.UTMTerm = utmTerm.String
		e.Browser = browser.String
		e.BrowserVersion = browserVersion.String
		e.OS = os.String
		e.OSVersion = osVersion.String
		e.DeviceType = deviceType.String
		e.ScreenSize = screenSize.String
		e.CountryCode = countryCode.String
		e.Region = region.String
		e.City = city.String
		e.Props = props.String
		e.RevenueAmount = revenueAmount.Float64
		e.RevenueCurrency = revenueCurrency.String
		out = append(out, e)
	}
	return out, rows.Err()
}
