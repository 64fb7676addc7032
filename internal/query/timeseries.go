package query

import (
	"sort"

	"github.com/mallardmetrics/mallard/internal/models"
)

// Granularity is the bucket width for a time-series query.
type Granularity int

const (
	GranularityHour Granularity = iota
	GranularityDay
)

func (g Granularity) bucketLabel(e models.Event) string {
	switch g {
	case GranularityHour:
		return e.Timestamp.Format("2006-01-02 15:00")
	default:
		return e.Timestamp.Format("2006-01-02")
	}
}

// TimeBucket is one point of a time-series response.
type TimeBucket struct {
	Date      string `json:"date"`
	Visitors  uint64 `json:"visitors"`
	Pageviews uint64 `json:"pageviews"`
}

type bucketAccum struct {
	visitors  map[string]struct{}
	pageviews int
}

// TimeseriesFor buckets events by hour or day, returning buckets sorted
// ascending by label. Empty buckets between observed data are not
// synthesized.
func TimeseriesFor(events []models.Event, g Granularity) []TimeBucket {
	buckets := make(map[string]*bucketAccum)
	for _, e := range events {
		label := g.bucketLabel(e)
		b, ok := buckets[label]
		if !ok {
			b = &bucketAccum{visitors: make(map[string]struct{})}
			buckets[label] = b
		}
		b.visitors[e.VisitorID] = struct{}{}
		if e.EventName == "pageview" {
			b.pageviews++
		}
	}

	labels := make([]string, 0, len(buckets))
	for label := range buckets {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	out := make([]TimeBucket, 0, len(labels))
	for _, label := range labels {
		b := buckets[label]
		out = append(out, TimeBucket{
			Date:      label,
			Visitors:  uint64(len(b.visitors)),
			Pageviews: uint64(b.pageviews),
		})
	}
	return out
}
