package query

import (
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
)

// CoreMetrics is the top-level summary returned by GET /api/stats/main.
type CoreMetrics struct {
	UniqueVisitors       uint64  `json:"unique_visitors"`
	TotalPageviews       uint64  `json:"total_pageviews"`
	BounceRate           float64 `json:"bounce_rate"`
	AvgVisitDurationSecs float64 `json:"avg_visit_duration_secs"`
	PagesPerVisit        float64 `json:"pages_per_visit"`
}

// CoreMetricsFor computes unique visitors, total pageviews, bounce rate
// and pages-per-visit for a window of events already scoped to one site
// and date range.
func CoreMetricsFor(events []models.Event) CoreMetrics {
	uniqueVisitors := uniqueVisitorCount(events)
	totalPageviews := countPageviews(events)

	var pagesPerVisit float64
	if uniqueVisitors > 0 {
		pagesPerVisit = float64(totalPageviews) / float64(uniqueVisitors)
	}

	sessions := Sessionize(events)
	m := CoreMetrics{
		UniqueVisitors: uint64(uniqueVisitors),
		TotalPageviews: uint64(totalPageviews),
		PagesPerVisit:  pagesPerVisit,
	}
	m.BounceRate = bounceRate(sessions)
	m.AvgVisitDurationSecs = avgSessionDuration(sessions)
	return m
}

func uniqueVisitorCount(events []models.Event) int {
	seen := make(map[string]struct{})
	for _, e := range events {
		seen[e.VisitorID] = struct{}{}
	}
	return len(seen)
}

func countPageviews(events []models.Event) int {
	n := 0
	for _, e := range events {
		if e.EventName == "pageview" {
			n++
		}
	}
	return n
}

func bounceRate(sessions []Session) float64 {
	if len(sessions) == 0 {
		return 0
	}
	bounced := 0
	for _, s := range sessions {
		if s.pageviews() == 1 {
			bounced++
		}
	}
	return float64(bounced) / float64(len(sessions))
}

func avgSessionDuration(sessions []Session) float64 {
	if len(sessions) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range sessions {
		total += s.duration()
	}
	return total.Seconds() / float64(len(sessions))
}
