// Package query implements the aggregations exposed over the union of
// the hot and cold tiers. Events arrive as a plain slice from
// store.Scan; every aggregation here is a Go function over that slice
// rather than a SQL query, per the "semantic operators, not a specific
// engine" equivalence the aggregation names denote.
package query

import (
	"sort"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
)

// SessionGap is the inactivity boundary that splits one visitor's
// events into distinct sessions.
const SessionGap = 30 * time.Minute

// Session is one run of a visitor's events with no gap of SessionGap or
// more between consecutive events.
type Session struct {
	VisitorID string
	Events    []models.Event
}

func (s Session) pageviews() int {
	n := 0
	for _, e := range s.Events {
		if e.EventName == "pageview" {
			n++
		}
	}
	return n
}

func (s Session) duration() time.Duration {
	if len(s.Events) < 2 {
		return 0
	}
	return s.Events[len(s.Events)-1].Timestamp.Sub(s.Events[0].Timestamp)
}

// Sessionize groups events into per-visitor sessions, splitting on gaps
// of SessionGap or more. Events need not arrive pre-sorted.
func Sessionize(events []models.Event) []Session {
	byVisitor := make(map[string][]models.Event)
	var order []string
	for _, e := range events {
		if _, ok := byVisitor[e.VisitorID]; !ok {
			order = append(order, e.VisitorID)
		}
		byVisitor[e.VisitorID] = append(byVisitor[e.VisitorID], e)
	}

	var sessions []Session
	for _, visitorID := range order {
		ve := byVisitor[visitorID]
		sort.Slice(ve, func(i, j int) bool { return ve[i].Timestamp.Before(ve[j].Timestamp) })

		current := Session{VisitorID: visitorID, Events: []models.Event{ve[0]}}
		for i := 1; i < len(ve); i++ {
			gap := ve[i].Timestamp.Sub(ve[i-1].Timestamp)
			if gap >= SessionGap {
				sessions = append(sessions, current)
				current = Session{VisitorID: visitorID, Events: nil}
			}
			current.Events = append(current.Events, ve[i])
		}
		sessions = append(sessions, current)
	}
	return sessions
}
