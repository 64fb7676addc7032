package query

import (
	"testing"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/stretchr/testify/assert"
)

func pageStep(path string) StepCondition {
	return func(e models.Event) bool { return e.Pathname == path }
}

func TestFunnelReachesAllStepsInOrderWithinWindow(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	steps := []StepCondition{pageStep("/pricing"), pageStep("/signup")}

	events := []models.Event{
		ev("v1", "pageview", "/pricing", base),
		ev("v1", "pageview", "/signup", base.Add(time.Minute)),
		ev("v2", "pageview", "/pricing", base),
	}

	result := FunnelFor(events, steps, time.Hour)
	counts := map[uint32]uint64{}
	for _, r := range result {
		counts[r.Step] = r.Visitors
	}
	assert.EqualValues(t, 1, counts[1], "v2 reached only step 1")
	assert.EqualValues(t, 1, counts[2], "v1 reached both steps")
}

func TestFunnelDropsStepOutsideWindow(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	steps := []StepCondition{pageStep("/pricing"), pageStep("/signup")}

	events := []models.Event{
		ev("v1", "pageview", "/pricing", base),
		ev("v1", "pageview", "/signup", base.Add(2*time.Hour)),
	}

	result := FunnelFor(events, steps, time.Hour)
	counts := map[uint32]uint64{}
	for _, r := range result {
		counts[r.Step] = r.Visitors
	}
	assert.EqualValues(t, 1, counts[1])
	assert.Zero(t, counts[2])
}

func TestFunnelEmptyStepsReturnsNil(t *testing.T) {
	assert.Nil(t, FunnelFor(nil, nil, time.Hour))
}

func TestSequenceRequiresFullMatch(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	steps := []StepCondition{pageStep("/pricing"), pageStep("/signup")}

	events := []models.Event{
		ev("v1", "pageview", "/pricing", base),
		ev("v1", "pageview", "/signup", base.Add(time.Minute)),
		ev("v2", "pageview", "/pricing", base),
	}

	result := SequenceFor(events, steps, time.Hour)
	assert.EqualValues(t, 1, result.ConvertingVisitors)
	assert.EqualValues(t, 2, result.TotalVisitors)
	assert.InDelta(t, 0.5, result.ConversionRate, 0.001)
}
