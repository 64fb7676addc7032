package middleware

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/gin-gonic/gin"
)

// generateNonce returns a base64-encoded 128-bit random value for use
// as a CSP nonce. An empty string (caller falls back to a nonce-less
// strict CSP) is returned only if crypto/rand fails.
func generateNonce() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// SecurityHeaders adds the standard set of defensive headers to every
// response on this JSON API: HSTS, no-sniff, frame denial, a
// nonce-based CSP (the dashboard itself is served by a separate
// collaborator, not this process, but the same origin still benefits
// from a strict policy), and cache suppression for anything that isn't
// the health endpoint.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := generateNonce()
		if err != nil {
			nonce = ""
		}
		c.Set("csp_nonce", nonce)

		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")

		var csp string
		if nonce != "" {
			csp = "default-src 'self'; script-src 'self' 'nonce-" + nonce + "'; " +
				"style-src 'self' 'nonce-" + nonce + "'; img-src 'self' data: https:; " +
				"connect-src 'self'; frame-ancestors 'none'; base-uri 'self'; " +
				"form-action 'self'; upgrade-insecure-requests"
		} else {
			csp = "default-src 'self'; script-src 'self'; style-src 'self'; " +
				"img-src 'self' data: https:; connect-src 'self'; frame-ancestors 'none'; " +
				"base-uri 'self'; form-action 'self'"
		}
		c.Header("Content-Security-Policy", csp)

		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Header("X-Download-Options", "noopen")

		if c.Request.URL.Path != "/health" && c.Request.URL.Path != "/health/detailed" {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
			c.Header("Pragma", "no-cache")
		}
		c.Header("Server", "")

		c.Next()
	}
}

// SecurityHeadersRelaxed applies a permissive CSP suited to local
// development only; never wired into a production route chain.
func SecurityHeadersRelaxed() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("Content-Security-Policy",
			"default-src 'self' 'unsafe-inline' 'unsafe-eval'; "+
				"img-src 'self' data: https:; connect-src 'self' ws: wss: http: https:")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
