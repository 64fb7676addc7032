package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mallardmetrics/mallard/internal/apierr"
	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/mallardmetrics/mallard/internal/query"
	"github.com/mallardmetrics/mallard/internal/validate"
)

const dateLayout = "2006-01-02"

// resolveSiteAndRange reads the common site_id + period/start_date/end_date
// query parameters every stats endpoint accepts.
func resolveSiteAndRange(c *gin.Context) (string, query.Range, bool) {
	siteID := c.Query("site_id")
	if err := validate.SiteID(siteID); err != nil {
		apierr.BadRequest("invalid site_id").Abort(c)
		return "", query.Range{}, false
	}

	now := time.Now().UTC()
	if start := c.Query("start_date"); start != "" {
		end := c.Query("end_date")
		from, err := time.Parse(dateLayout, start)
		if err != nil {
			apierr.BadRequest("invalid start_date").Abort(c)
			return "", query.Range{}, false
		}
		var to time.Time
		if end != "" {
			to, err = time.Parse(dateLayout, end)
			if err != nil {
				apierr.BadRequest("invalid end_date").Abort(c)
				return "", query.Range{}, false
			}
		} else {
			to = now
		}
		to = to.AddDate(0, 0, 1)
		if err := validate.DateRange(from, to); err != nil {
			err.(*apierr.AppError).Abort(c)
			return "", query.Range{}, false
		}
		return siteID, query.Range{From: from, To: to}, true
	}

	period := c.DefaultQuery("period", "7d")
	var from time.Time
	switch period {
	case "today":
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case "day":
		from = now.Add(-24 * time.Hour)
	case "7d":
		from = now.AddDate(0, 0, -7)
	case "30d":
		from = now.AddDate(0, 0, -30)
	case "90d":
		from = now.AddDate(0, 0, -90)
	default:
		apierr.BadRequest("invalid period").Abort(c)
		return "", query.Range{}, false
	}
	return siteID, query.Range{From: from, To: now}, true
}

func granularityFor(period string) query.Granularity {
	if period == "day" || period == "today" {
		return query.GranularityHour
	}
	return query.GranularityDay
}

func (s *Server) handleStatsMain(c *gin.Context) {
	siteID, r, ok := resolveSiteAndRange(c)
	if !ok {
		return
	}
	result, err := s.querier.CoreMetrics(c.Request.Context(), siteID, r)
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to compute metrics", err).Abort(c)
		return
	}
	c.JSON(200, result)
}

func (s *Server) handleStatsTimeseries(c *gin.Context) {
	siteID, r, ok := resolveSiteAndRange(c)
	if !ok {
		return
	}
	g := granularityFor(c.DefaultQuery("period", "7d"))
	result, err := s.querier.Timeseries(c.Request.Context(), siteID, r, g)
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to compute timeseries", err).Abort(c)
		return
	}
	c.JSON(200, result)
}

func (s *Server) handleStatsBreakdown(c *gin.Context) {
	siteID, r, ok := resolveSiteAndRange(c)
	if !ok {
		return
	}
	dim, err := query.ParseDimension(c.Param("dimension"))
	if err != nil {
		apierr.BadRequest(err.Error()).Abort(c)
		return
	}
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, parseErr := strconv.Atoi(raw)
		if parseErr != nil || n <= 0 {
			apierr.BadRequest("invalid limit").Abort(c)
			return
		}
		limit = n
	}
	result, qerr := s.querier.Breakdown(c.Request.Context(), siteID, r, dim, limit)
	if qerr != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to compute breakdown", qerr).Abort(c)
		return
	}
	c.JSON(200, result)
}

func (s *Server) handleStatsSessions(c *gin.Context) {
	siteID, r, ok := resolveSiteAndRange(c)
	if !ok {
		return
	}
	result, err := s.querier.Sessions(c.Request.Context(), siteID, r)
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to compute session metrics", err).Abort(c)
		return
	}
	c.JSON(200, result)
}

// parseSteps parses the repeated `steps` query parameter into ordered
// step conditions, using the "page:<path>" / "event:<name>" grammar.
func parseSteps(c *gin.Context) ([]query.StepCondition, []string, *apierr.AppError) {
	raw := c.QueryArray("steps")
	if len(raw) < 2 {
		return nil, nil, apierr.BadRequest("at least two steps are required")
	}
	steps := make([]query.StepCondition, 0, len(raw))
	for _, s := range raw {
		cond, err := query.ParseStep(s)
		if err != nil {
			return nil, nil, apierr.BadRequest(err.Error())
		}
		steps = append(steps, cond)
	}
	return steps, raw, nil
}

func parseWindowParam(c *gin.Context) (time.Duration, *apierr.AppError) {
	raw := c.DefaultQuery("window", "30 minute")
	window, err := query.ParseWindow(raw)
	if err != nil {
		return 0, apierr.BadRequest(err.Error())
	}
	return window, nil
}

func (s *Server) handleStatsFunnel(c *gin.Context) {
	siteID, r, ok := resolveSiteAndRange(c)
	if !ok {
		return
	}
	steps, keys, stepErr := parseSteps(c)
	if stepErr != nil {
		stepErr.Abort(c)
		return
	}
	window, winErr := parseWindowParam(c)
	if winErr != nil {
		winErr.Abort(c)
		return
	}
	result, err := s.querier.Funnel(c.Request.Context(), siteID, r, steps, keys, window)
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to compute funnel", err).Abort(c)
		return
	}
	c.JSON(200, result)
}

func (s *Server) handleStatsSequences(c *gin.Context) {
	siteID, r, ok := resolveSiteAndRange(c)
	if !ok {
		return
	}
	steps, keys, stepErr := parseSteps(c)
	if stepErr != nil {
		stepErr.Abort(c)
		return
	}
	window, winErr := parseWindowParam(c)
	if winErr != nil {
		winErr.Abort(c)
		return
	}
	result, err := s.querier.Sequence(c.Request.Context(), siteID, r, steps, keys, window)
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to compute sequence", err).Abort(c)
		return
	}
	c.JSON(200, result)
}

func (s *Server) handleStatsRetention(c *gin.Context) {
	siteID, r, ok := resolveSiteAndRange(c)
	if !ok {
		return
	}
	numWeeks := 4
	if raw := c.Query("weeks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apierr.BadRequest("invalid weeks").Abort(c)
			return
		}
		numWeeks = n
	}
	result, err := s.querier.Retention(c.Request.Context(), siteID, r, numWeeks)
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to compute retention", err).Abort(c)
		return
	}
	c.JSON(200, result)
}

func (s *Server) handleStatsFlow(c *gin.Context) {
	siteID, r, ok := resolveSiteAndRange(c)
	if !ok {
		return
	}
	targetPage := c.Query("target_page")
	if err := validate.NonEmpty("target_page", targetPage); err != nil {
		err.(*apierr.AppError).Abort(c)
		return
	}
	result, err := s.querier.Flow(c.Request.Context(), siteID, r, targetPage)
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to compute flow", err).Abort(c)
		return
	}
	c.JSON(200, result)
}

func (s *Server) handleStatsRevenue(c *gin.Context) {
	siteID, r, ok := resolveSiteAndRange(c)
	if !ok {
		return
	}
	result, err := s.querier.Revenue(c.Request.Context(), siteID, r)
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to compute revenue", err).Abort(c)
		return
	}
	c.JSON(200, result)
}

func (s *Server) handleStatsExport(c *gin.Context) {
	siteID := c.Query("site_id")
	if err := validate.SiteID(siteID); err != nil {
		apierr.BadRequest("invalid site_id").Abort(c)
		return
	}
	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "csv" {
		apierr.BadRequest("format must be \"json\" or \"csv\"").Abort(c)
		return
	}

	startRaw := c.Query("start_date")
	endRaw := c.Query("end_date")
	if startRaw == "" || endRaw == "" {
		apierr.BadRequest("start_date and end_date are required").Abort(c)
		return
	}
	from, err := time.Parse(dateLayout, startRaw)
	if err != nil {
		apierr.BadRequest("invalid start_date").Abort(c)
		return
	}
	to, err := time.Parse(dateLayout, endRaw)
	if err != nil {
		apierr.BadRequest("invalid end_date").Abort(c)
		return
	}
	to = to.AddDate(0, 0, 1)
	if verr := validate.DateRange(from, to); verr != nil {
		verr.(*apierr.AppError).Abort(c)
		return
	}

	events, scanErr := s.store.Scan(c.Request.Context(), siteID, from, to)
	if scanErr != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to export events", scanErr).Abort(c)
		return
	}

	if format == "json" {
		c.JSON(200, events)
		return
	}
	writeCSV(c, events)
}

// writeCSV renders events as CSV, escaping any field that begins with a
// formula-trigger character (`= + - @`) so a spreadsheet that opens the
// export never silently evaluates attacker-controlled content.
func writeCSV(c *gin.Context, events []models.Event) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=\"export.csv\"")

	w := c.Writer
	fmt.Fprintln(w, "timestamp,visitor_id,event_name,pathname,referrer_source,browser,os,device_type,country_code,revenue_amount,revenue_currency")
	for _, e := range events {
		fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s\n",
			csvField(e.Timestamp.Format(time.RFC3339)),
			csvField(e.VisitorID),
			csvField(e.EventName),
			csvField(e.Pathname),
			csvField(e.ReferrerSource),
			csvField(e.Browser),
			csvField(e.OS),
			csvField(e.DeviceType),
			csvField(e.CountryCode),
			csvField(fmt.Sprintf("%g", e.RevenueAmount)),
			csvField(e.RevenueCurrency),
		)
	}
}

func csvField(v string) string {
	if len(v) > 0 {
		switch v[0] {
		case '=', '+', '-', '@':
			v = "'" + v
		}
	}
	if strings.ContainsAny(v, ",\"\n") {
		v = "\"" + strings.ReplaceAll(v, "\"", "\"\"") + "\""
	}
	return v
}
