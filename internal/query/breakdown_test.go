package query

import (
	"testing"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakdownByPageOrdersByVisitorsDesc(t *testing.T) {
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	events := []models.Event{
		ev("v1", "pageview", "/", base),
		ev("v2", "pageview", "/", base),
		ev("v1", "pageview", "/about", base),
	}

	rows := BreakdownFor(events, DimensionPage, 10)
	require.Len(t, rows, 2)
	assert.Equal(t, "/", rows[0].Value)
	assert.EqualValues(t, 2, rows[0].Visitors)
}

func TestBreakdownNullBrowserIsUnknown(t *testing.T) {
	events := []models.Event{
		{VisitorID: "v1", EventName: "pageview", Pathname: "/"},
	}
	rows := BreakdownFor(events, DimensionBrowser, 10)
	require.Len(t, rows, 1)
	assert.Equal(t, "(unknown)", rows[0].Value)
}

func TestBreakdownRespectsLimit(t *testing.T) {
	events := []models.Event{
		{VisitorID: "v1", EventName: "pageview", Pathname: "/a"},
		{VisitorID: "v2", EventName: "pageview", Pathname: "/b"},
		{VisitorID: "v3", EventName: "pageview", Pathname: "/c"},
	}
	rows := BreakdownFor(events, DimensionPage, 2)
	assert.Len(t, rows, 2)
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension("utm-campaigns")
	require.NoError(t, err)
	assert.Equal(t, DimensionUTMCampaign, d)

	_, err = ParseDimension("bogus")
	assert.Error(t, err)
}
