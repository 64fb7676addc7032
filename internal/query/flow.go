package query

import (
	"sort"

	"github.com/mallardmetrics/mallard/internal/models"
)

// FlowNode is one row of a flow result: a next page and how many
// visitors went there after the target page.
type FlowNode struct {
	NextPage string `json:"next_page"`
	Visitors uint64 `json:"visitors"`
}

const flowResultLimit = 10

// FlowFor reports the most common page visited immediately after
// targetPage, per visitor, across the population, returning the top
// flowResultLimit destinations ordered by visitor count descending.
func FlowFor(events []models.Event, targetPage string) []FlowNode {
	byVisitor := make(map[string][]models.Event)
	var order []string
	for _, e := range events {
		if _, ok := byVisitor[e.VisitorID]; !ok {
			order = append(order, e.VisitorID)
		}
		byVisitor[e.VisitorID] = append(byVisitor[e.VisitorID], e)
	}

	counts := make(map[string]map[string]struct{})
	for _, visitorID := range order {
		ve := byVisitor[visitorID]
		sort.Slice(ve, func(i, j int) bool { return ve[i].Timestamp.Before(ve[j].Timestamp) })

		for i, e := range ve {
			if e.Pathname != targetPage {
				continue
			}
			if i+1 >= len(ve) {
				break
			}
			next := ve[i+1].Pathname
			visitors, ok := counts[next]
			if !ok {
				visitors = make(map[string]struct{})
				counts[next] = visitors
			}
			visitors[visitorID] = struct{}{}
			break // first_match semantics: only the first occurrence counts
		}
	}

	rows := make([]FlowNode, 0, len(counts))
	for next, visitors := range counts {
		rows = append(rows, FlowNode{NextPage: next, Visitors: uint64(len(visitors))})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Visitors != rows[j].Visitors {
			return rows[i].Visitors > rows[j].Visitors
		}
		return rows[i].NextPage < rows[j].NextPage
	})
	if len(rows) > flowResultLimit {
		rows = rows[:flowResultLimit]
	}
	return rows
}
