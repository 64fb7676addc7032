package query

import (
	"sort"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
)

// FunnelStep is one row of a funnel result: how many visitors reached
// exactly this many of the ordered step conditions.
type FunnelStep struct {
	Step     uint32 `json:"step"`
	Visitors uint64 `json:"visitors"`
}

// StepCondition matches a single funnel/sequence step against an event.
// Compiled from the public "page:<path>" / "event:<name>" grammar.
type StepCondition func(models.Event) bool

// FunnelFor computes, per visitor, the number of leading steps reached
// in order within window of the first matching event, mirroring
// window_funnel: steps must occur in order, and the entire matched run
// must fit within window of its first step.
func FunnelFor(events []models.Event, steps []StepCondition, window time.Duration) []FunnelStep {
	if len(steps) == 0 {
		return nil
	}

	byVisitor := make(map[string][]models.Event)
	var order []string
	for _, e := range events {
		if _, ok := byVisitor[e.VisitorID]; !ok {
			order = append(order, e.VisitorID)
		}
		byVisitor[e.VisitorID] = append(byVisitor[e.VisitorID], e)
	}

	counts := make(map[uint32]uint64)
	for _, visitorID := range order {
		ve := byVisitor[visitorID]
		sort.Slice(ve, func(i, j int) bool { return ve[i].Timestamp.Before(ve[j].Timestamp) })
		reached := reachedSteps(ve, steps, window)
		counts[reached]++
	}

	out := make([]FunnelStep, 0, len(counts))
	for step, visitors := range counts {
		out = append(out, FunnelStep{Step: step, Visitors: visitors})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out
}

func reachedSteps(events []models.Event, steps []StepCondition, window time.Duration) uint32 {
	nextStep := 0
	var windowStart time.Time
	for _, e := range events {
		if nextStep >= len(steps) {
			break
		}
		if !steps[nextStep](e) {
			continue
		}
		if nextStep == 0 {
			windowStart = e.Timestamp
		} else if window > 0 && e.Timestamp.Sub(windowStart) > window {
			break
		}
		nextStep++
	}
	return uint32(nextStep)
}
