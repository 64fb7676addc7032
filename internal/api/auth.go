package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mallardmetrics/mallard/internal/apierr"
	"github.com/mallardmetrics/mallard/internal/auth"
	"github.com/mallardmetrics/mallard/internal/middleware"
)

type passwordRequest struct {
	Password string `json:"password" binding:"required"`
}

// handleAuthStatus reports whether setup has run yet and whether the
// caller currently holds a valid session, with no authentication
// required to call it.
func (s *Server) handleAuthStatus(c *gin.Context) {
	authenticated := false
	if token, err := c.Cookie("mm_session"); err == nil && token != "" {
		if _, ok := s.sessions.Validate(token); ok {
			authenticated = true
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"setup_required": !s.adminConfigured(),
		"authenticated":  authenticated,
	})
}

// handleAuthSetup bootstraps the single admin password. It can only
// succeed once; a second call returns Conflict so an already-configured
// instance can never have its password silently replaced over HTTP.
func (s *Server) handleAuthSetup(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest("invalid request body").Abort(c)
		return
	}

	s.mu.Lock()
	if s.adminPasswordHash != "" {
		s.mu.Unlock()
		apierr.Conflict("admin password has already been configured").Abort(c)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.mu.Unlock()
		apierr.BadRequest(err.Error()).Abort(c)
		return
	}
	s.adminPasswordHash = hash
	s.mu.Unlock()

	s.guard.SetAdminConfigured(true)

	token, err := s.sessions.Create("admin", s.cfg.SessionTTL())
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to create session", err).Abort(c)
		return
	}
	auth.SetSessionCookie(c, token, s.cfg.SessionTTLSecs, s.requestIsSecure(c))
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

// handleAuthLogin validates the admin password against a per-IP
// brute-force lockout, recording every attempt before responding.
func (s *Server) handleAuthLogin(c *gin.Context) {
	ip := middleware.AnonymizeIP(c.ClientIP())

	if s.lockout != nil && !s.lockout.Check(ip) {
		remaining := s.lockout.RemainingLockoutSecs(ip)
		apierr.TooManyRequests("too many failed login attempts", remaining).Abort(c)
		return
	}

	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.BadRequest("invalid request body").Abort(c)
		return
	}

	s.mu.Lock()
	hash := s.adminPasswordHash
	s.mu.Unlock()

	if hash == "" {
		apierr.Conflict("admin password has not been configured yet").Abort(c)
		return
	}

	if !auth.VerifyPassword(req.Password, hash) {
		if s.lockout != nil {
			s.lockout.RecordFailure(ip)
		}
		apierr.Unauthorized("invalid password").Abort(c)
		return
	}

	if s.lockout != nil {
		s.lockout.RecordSuccess(ip)
	}

	token, err := s.sessions.Create("admin", s.cfg.SessionTTL())
	if err != nil {
		apierr.Wrap(apierr.CodeInternal, "failed to create session", err).Abort(c)
		return
	}
	auth.SetSessionCookie(c, token, s.cfg.SessionTTLSecs, s.requestIsSecure(c))
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

func (s *Server) handleAuthLogout(c *gin.Context) {
	if token, err := c.Cookie("mm_session"); err == nil && token != "" {
		s.sessions.Remove(token)
	}
	auth.ClearSessionCookie(c, s.requestIsSecure(c))
	c.Status(http.StatusNoContent)
}

func (s *Server) requestIsSecure(c *gin.Context) bool {
	return c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
}
