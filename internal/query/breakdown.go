package query

import (
	"fmt"
	"sort"

	"github.com/mallardmetrics/mallard/internal/models"
)

// Dimension is a breakdown grouping column. The supplemented
// UTMCampaign dimension has no counterpart in the original's enum.
type Dimension int

const (
	DimensionPage Dimension = iota
	DimensionReferrerSource
	DimensionCountryCode
	DimensionBrowser
	DimensionOS
	DimensionDeviceType
	DimensionUTMCampaign
)

const unknownValue = "(unknown)"

func (d Dimension) value(e models.Event) string {
	var v string
	switch d {
	case DimensionPage:
		v = e.Pathname
	case DimensionReferrerSource:
		v = e.ReferrerSource
	case DimensionCountryCode:
		v = e.CountryCode
	case DimensionBrowser:
		v = e.Browser
	case DimensionOS:
		v = e.OS
	case DimensionDeviceType:
		v = e.DeviceType
	case DimensionUTMCampaign:
		v = e.UTMCampaign
	}
	if v == "" {
		return unknownValue
	}
	return v
}

// ParseDimension maps the public breakdown path segment
// (pages|sources|browsers|os|devices|countries|utm-campaigns) to a Dimension.
func ParseDimension(name string) (Dimension, error) {
	switch name {
	case "pages":
		return DimensionPage, nil
	case "sources":
		return DimensionReferrerSource, nil
	case "countries":
		return DimensionCountryCode, nil
	case "browsers":
		return DimensionBrowser, nil
	case "os":
		return DimensionOS, nil
	case "devices":
		return DimensionDeviceType, nil
	case "utm-campaigns":
		return DimensionUTMCampaign, nil
	default:
		return 0, fmt.Errorf("unknown breakdown dimension %q", name)
	}
}

// BreakdownRow is one group of a breakdown result.
type BreakdownRow struct {
	Value     string `json:"value"`
	Visitors  uint64 `json:"visitors"`
	Pageviews uint64 `json:"pageviews"`
}

type breakdownAccum struct {
	visitors  map[string]struct{}
	pageviews int
}

// BreakdownFor groups events by dimension, ordering results by unique
// visitor count descending and truncating to limit.
func BreakdownFor(events []models.Event, d Dimension, limit int) []BreakdownRow {
	groups := make(map[string]*breakdownAccum)
	var order []string
	for _, e := range events {
		v := d.value(e)
		g, ok := groups[v]
		if !ok {
			g = &breakdownAccum{visitors: make(map[string]struct{})}
			groups[v] = g
			order = append(order, v)
		}
		g.visitors[e.VisitorID] = struct{}{}
		if e.EventName == "pageview" {
			g.pageviews++
		}
	}

	rows := make([]BreakdownRow, 0, len(order))
	for _, v := range order {
		g := groups[v]
		rows = append(rows, BreakdownRow{
			Value:     v,
			Visitors:  uint64(len(g.visitors)),
			Pageviews: uint64(g.pageviews),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Visitors > rows[j].Visitors })

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
