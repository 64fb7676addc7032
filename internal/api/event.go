package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mallardmetrics/mallard/internal/apierr"
	"github.com/mallardmetrics/mallard/internal/classify"
	"github.com/mallardmetrics/mallard/internal/fingerprint"
	"github.com/mallardmetrics/mallard/internal/middleware"
	"github.com/mallardmetrics/mallard/internal/models"
	"github.com/mallardmetrics/mallard/internal/validate"
)

// handleEvent implements POST /api/event, the ingestion hot path. A bot
// is acknowledged with 202 but never stored or counted, so a filtered
// client has no signal to distinguish "dropped" from "recorded". A
// site_id outside the allow-list is rejected with 403.
func (s *Server) handleEvent(c *gin.Context) {
	var payload models.EventPayload
	if !validate.BindAndValidate(c, &payload) {
		return
	}

	if err := validate.SiteID(payload.SiteID); err != nil {
		apierr.BadRequest("invalid site_id").Abort(c)
		return
	}
	if !s.cfg.SiteAllowed(payload.SiteID) {
		apierr.Forbidden("site_id is not allowed on this instance").Abort(c)
		return
	}

	if s.siteLimiter != nil && !s.siteLimiter.Check(payload.SiteID) {
		apierr.TooManyRequests("rate limit exceeded", 1).Abort(c)
		return
	}

	clientIP := middleware.AnonymizeIP(c.ClientIP())
	if s.ipLimiter != nil && !s.ipLimiter.Check(clientIP) {
		apierr.TooManyRequests("rate limit exceeded", 1).Abort(c)
		return
	}

	ua := c.Request.UserAgent()
	if s.cfg.FilterBots && classify.IsBot(ua) {
		c.Status(http.StatusAccepted)
		return
	}

	now := time.Now().UTC()
	salt := fingerprint.DailySalt(s.cfg.Secret, now.Format("2006-01-02"))
	visitorID := fingerprint.Fingerprint(clientIP, ua, salt)

	pathname := validate.SanitizeFreeText(classify.SanitizePathname(payload.URL))
	utm := classify.ParseUTM(payload.URL)

	event := models.Event{
		SiteID:          payload.SiteID,
		VisitorID:       visitorID,
		Timestamp:       now,
		EventName:       classify.SanitizeString(payload.EventName, 128),
		Pathname:        pathname,
		Referrer:        validate.SanitizeFreeText(classify.SanitizeString(payload.Referrer, 2048)),
		ReferrerSource:  classify.ReferrerSource(payload.Referrer),
		UTMSource:       utm.Source,
		UTMMedium:       utm.Medium,
		UTMCampaign:     utm.Campaign,
		UTMContent:      utm.Content,
		UTMTerm:         utm.Term,
		Browser:         classify.Browser(ua),
		BrowserVersion:  classify.BrowserVersion(ua),
		OS:              classify.OS(ua),
		OSVersion:       classify.OSVersion(ua),
		DeviceType:      classify.DeviceType(payload.Width, ua),
		Props:           validate.SanitizeFreeText(classify.SanitizeString(payload.Props, 4096)),
		RevenueAmount:   payload.Revenue,
		RevenueCurrency: classify.SanitizeString(payload.Currency, 8),
	}

	if _, _, err := s.buffer.Push(c.Request.Context(), event); err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to record event", err).Abort(c)
		return
	}
	if s.orch != nil {
		s.orch.IncrementIngested()
	}

	c.Status(http.StatusAccepted)
}
