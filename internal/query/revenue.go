package query

import (
	"sort"

	"github.com/mallardmetrics/mallard/internal/models"
)

// RevenueByCurrency is one currency group of a revenue summary.
type RevenueByCurrency struct {
	Currency      string  `json:"currency"`
	TotalRevenue  float64 `json:"total_revenue"`
	OrderCount    uint64  `json:"order_count"`
	AvgOrderValue float64 `json:"avg_order_value"`
}

// RevenueFor summarizes revenue-carrying events, grouped by currency.
// Events with a zero RevenueAmount are not orders and are excluded.
func RevenueFor(events []models.Event) []RevenueByCurrency {
	type accum struct {
		total float64
		count uint64
	}
	groups := make(map[string]*accum)
	var order []string
	for _, e := range events {
		if e.RevenueAmount == 0 {
			continue
		}
		currency := e.RevenueCurrency
		if currency == "" {
			currency = unknownValue
		}
		a, ok := groups[currency]
		if !ok {
			a = &accum{}
			groups[currency] = a
			order = append(order, currency)
		}
		a.total += e.RevenueAmount
		a.count++
	}

	out := make([]RevenueByCurrency, 0, len(order))
	for _, currency := range order {
		a := groups[currency]
		var avg float64
		if a.count > 0 {
			avg = a.total / float64(a.count)
		}
		out = append(out, RevenueByCurrency{
			Currency:      currency,
			TotalRevenue:  a.total,
			OrderCount:    a.count,
			AvgOrderValue: avg,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalRevenue > out[j].TotalRevenue })
	return out
}
