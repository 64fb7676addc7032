package query

import "github.com/mallardmetrics/mallard/internal/models"

// SessionMetrics summarizes session-level behavior for GET /api/stats/sessions.
type SessionMetrics struct {
	TotalSessions          uint64  `json:"total_sessions"`
	AvgSessionDurationSecs float64 `json:"avg_session_duration_secs"`
	AvgPagesPerSession     float64 `json:"avg_pages_per_session"`
}

func SessionMetricsFor(events []models.Event) SessionMetrics {
	sessions := Sessionize(events)
	if len(sessions) == 0 {
		return SessionMetrics{}
	}

	var totalPages int
	for _, s := range sessions {
		totalPages += s.pageviews()
	}

	return SessionMetrics{
		TotalSessions:          uint64(len(sessions)),
		AvgSessionDurationSecs: avgSessionDuration(sessions),
		AvgPagesPerSession:     float64(totalPages) / float64(len(sessions)),
	}
}
