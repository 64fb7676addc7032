package query

import (
	"sort"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
)

// RetentionCohort is one weekly cohort row: the week the cohort first
// appeared, and for each of numWeeks weeks, starting with the cohort
// week itself, whether the cohort as a whole showed any activity.
type RetentionCohort struct {
	CohortDate string `json:"cohort_date"`
	Retained   []bool `json:"retained"`
}

func weekStart(t time.Time) time.Time {
	t = t.UTC()
	// ISO-ish: Monday start, matching DATE_TRUNC('week', ...) semantics.
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
}

// RetentionFor computes weekly retention cohorts. events should cover
// the full history needed to determine each visitor's first-seen week;
// cohorts whose start falls outside [start, end) are omitted from the
// result, matching the original's date-range filter on the outer join.
func RetentionFor(events []models.Event, start, end time.Time, numWeeks int) []RetentionCohort {
	if numWeeks <= 0 {
		return nil
	}

	firstSeen := make(map[string]time.Time)
	for _, e := range events {
		if cur, ok := firstSeen[e.VisitorID]; !ok || e.Timestamp.Before(cur) {
			firstSeen[e.VisitorID] = e.Timestamp
		}
	}

	// activeWeeks[visitor] = set of week-start timestamps with activity.
	activeWeeks := make(map[string]map[time.Time]bool)
	for _, e := range events {
		ws := weekStart(e.Timestamp)
		m, ok := activeWeeks[e.VisitorID]
		if !ok {
			m = make(map[time.Time]bool)
			activeWeeks[e.VisitorID] = m
		}
		m[ws] = true
	}

	cohorts := make(map[time.Time][]string)
	for visitorID, fs := range firstSeen {
		cohort := weekStart(fs)
		if cohort.Before(start) || !cohort.Before(end) {
			continue
		}
		cohorts[cohort] = append(cohorts[cohort], visitorID)
	}

	var cohortStarts []time.Time
	for c := range cohorts {
		cohortStarts = append(cohortStarts, c)
	}
	sort.Slice(cohortStarts, func(i, j int) bool { return cohortStarts[i].Before(cohortStarts[j]) })

	out := make([]RetentionCohort, 0, len(cohortStarts))
	for _, cohort := range cohortStarts {
		retained := make([]bool, numWeeks)
		for i := 0; i < numWeeks; i++ {
			targetWeek := cohort.AddDate(0, 0, 7*i)
			active := false
			for _, visitorID := range cohorts[cohort] {
				if activeWeeks[visitorID][targetWeek] {
					active = true
					break
				}
			}
			retained[i] = active
		}
		out = append(out, RetentionCohort{
			CohortDate: cohort.Format("2006-01-02"),
			Retained:   retained,
		})
	}
	return out
}
