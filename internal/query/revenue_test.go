package query

import (
	"testing"

	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevenueForGroupsByCurrency(t *testing.T) {
	events := []models.Event{
		{VisitorID: "v1", EventName: "purchase", RevenueAmount: 10, RevenueCurrency: "USD"},
		{VisitorID: "v2", EventName: "purchase", RevenueAmount: 20, RevenueCurrency: "USD"},
		{VisitorID: "v3", EventName: "purchase", RevenueAmount: 5, RevenueCurrency: "EUR"},
		{VisitorID: "v4", EventName: "pageview"}, // no revenue, excluded
	}

	rows := RevenueFor(events)
	require.Len(t, rows, 2)
	assert.Equal(t, "USD", rows[0].Currency)
	assert.InDelta(t, 30, rows[0].TotalRevenue, 0.001)
	assert.EqualValues(t, 2, rows[0].OrderCount)
	assert.InDelta(t, 15, rows[0].AvgOrderValue, 0.001)
}

func TestRevenueForEmpty(t *testing.T) {
	assert.Empty(t, RevenueFor(nil))
}
