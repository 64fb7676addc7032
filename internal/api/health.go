package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleHealthDetailed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":                "ok",
		"uptime_secs":           int(time.Since(s.startedAt).Seconds()),
		"events_ingested_total": s.orch.EventsIngestedTotal(),
		"buffer_len":            s.buffer.Len(),
	})
}

// handleMetrics renders the Prometheus text exposition format directly
// rather than wiring client_golang: the only two gauges this instance
// exposes don't justify the registry/collector machinery that library
// brings.
func (s *Server) handleMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain; version=0.0.4")
	w := c.Writer
	fmt.Fprintln(w, "# HELP mallard_events_ingested_total Total number of events accepted for ingestion.")
	fmt.Fprintln(w, "# TYPE mallard_events_ingested_total counter")
	fmt.Fprintf(w, "mallard_events_ingested_total %d\n", s.orch.EventsIngestedTotal())
	fmt.Fprintln(w, "# HELP mallard_ingest_buffer_len Current number of events held in the in-memory ingest buffer.")
	fmt.Fprintln(w, "# TYPE mallard_ingest_buffer_len gauge")
	fmt.Fprintf(w, "mallard_ingest_buffer_len %d\n", s.buffer.Len())
	fmt.Fprintln(w, "# HELP mallard_uptime_seconds Process uptime in seconds.")
	fmt.Fprintln(w, "# TYPE mallard_uptime_seconds gauge")
	fmt.Fprintf(w, "mallard_uptime_seconds %d\n", int(time.Since(s.startedAt).Seconds()))
}
