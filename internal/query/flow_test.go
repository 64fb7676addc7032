package query

import (
	"testing"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowCountsFirstMatchOnly(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	events := []models.Event{
		ev("v1", "pageview", "/pricing", base),
		ev("v1", "pageview", "/signup", base.Add(time.Minute)),
		ev("v2", "pageview", "/pricing", base),
		ev("v2", "pageview", "/docs", base.Add(time.Minute)),
	}

	nodes := FlowFor(events, "/pricing")
	require.Len(t, nodes, 2)
	byPage := map[string]uint64{}
	for _, n := range nodes {
		byPage[n.NextPage] = n.Visitors
	}
	assert.EqualValues(t, 1, byPage["/signup"])
	assert.EqualValues(t, 1, byPage["/docs"])
}

func TestFlowIgnoresVisitorsWithoutTargetPage(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	events := []models.Event{
		ev("v1", "pageview", "/about", base),
		ev("v1", "pageview", "/contact", base.Add(time.Minute)),
	}
	assert.Empty(t, FlowFor(events, "/pricing"))
}
