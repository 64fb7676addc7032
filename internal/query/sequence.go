package query

import (
	"sort"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
)

// SequenceMatchResult reports how many visitors matched an ordered,
// within-window sequence of step conditions.
type SequenceMatchResult struct {
	ConvertingVisitors uint64  `json:"converting_visitors"`
	TotalVisitors      uint64  `json:"total_visitors"`
	ConversionRate     float64 `json:"conversion_rate"`
}

// SequenceFor reports, across the visitor population, how many
// visitors completed every step of steps in order within window of the
// first step. This is the full-match case of the same step-reaching
// logic the funnel uses.
func SequenceFor(events []models.Event, steps []StepCondition, window time.Duration) SequenceMatchResult {
	if len(steps) < 2 {
		return SequenceMatchResult{}
	}

	byVisitor := make(map[string][]models.Event)
	var order []string
	for _, e := range events {
		if _, ok := byVisitor[e.VisitorID]; !ok {
			order = append(order, e.VisitorID)
		}
		byVisitor[e.VisitorID] = append(byVisitor[e.VisitorID], e)
	}

	var converting uint64
	for _, visitorID := range order {
		ve := byVisitor[visitorID]
		sort.Slice(ve, func(i, j int) bool { return ve[i].Timestamp.Before(ve[j].Timestamp) })
		if int(reachedSteps(ve, steps, window)) == len(steps) {
			converting++
		}
	}

	total := uint64(len(order))
	var rate float64
	if total > 0 {
		rate = float64(converting) / float64(total)
	}
	return SequenceMatchResult{
		ConvertingVisitors: converting,
		TotalVisitors:      total,
		ConversionRate:     rate,
	}
}
