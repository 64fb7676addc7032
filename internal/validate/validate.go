// Package validate centralizes the bounded-ness and charset predicates
// the rest of the system relies on: request body size caps, site_id
// charset and path-safety, and date-range size limits. Struct-level DTO
// validation (required fields on JSON payloads) is
// layered on top via github.com/go-playground/validator/v10 in dto.go;
// the predicates here cover what struct tags can't express: path
// safety and cross-field range limits.
package validate

import (
	"fmt"
	"time"

	"github.com/mallardmetrics/mallard/internal/apierr"
)

const (
	// MaxEventBodyBytes is the hard cap on a POST /api/event body.
	MaxEventBodyBytes = 65536

	// MaxExportRangeDays is the largest explicit date range accepted by
	// the export endpoint.
	MaxExportRangeDays = 366

	maxSiteIDLen = 256
)

// NonEmpty rejects an empty string, naming field in the error message.
func NonEmpty(field, value string) error {
	if value == "" {
		return apierr.BadRequest(fmt.Sprintf("%s must not be empty", field))
	}
	return nil
}

// BoundedLength rejects a string longer than max bytes.
func BoundedLength(field, value string, max int) error {
	if len(value) > max {
		return apierr.BadRequest(fmt.Sprintf("%s exceeds maximum length of %d bytes", field, max))
	}
	return nil
}

// SiteID validates a site_id against the charset and path-safety rules
// this server's data model requires: non-empty, at most 256 bytes, only
// `[A-Za-z0-9.:_-]`, and never a path separator, "..", or NUL. Checked
// independently of whatever the HTTP layer already decoded, since a
// site_id that ever reaches disk as a partition directory name must be
// safe to interpolate regardless of how it arrived.
func SiteID(siteID string) error {
	if siteID == "" {
		return apierr.BadRequest("site_id must not be empty")
	}
	if len(siteID) > maxSiteIDLen {
		return apierr.BadRequest("site_id exceeds maximum length")
	}
	for i := 0; i < len(siteID); i++ {
		c := siteID[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '.' || c == ':' || c == '_' || c == '-':
		default:
			return apierr.BadRequest("site_id contains an invalid character")
		}
	}
	if containsPathUnsafe(siteID) {
		return apierr.BadRequest("site_id is not safe for storage")
	}
	return nil
}

func containsPathUnsafe(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '/', '\\', 0:
			return true
		}
	}
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '.' && s[i+1] == '.' {
			return true
		}
	}
	return false
}

// JSONBodySize rejects a request body at or above the 64 KB cap set
// for the ingestion endpoint.
func JSONBodySize(n int64) error {
	if n >= MaxEventBodyBytes {
		return apierr.PayloadTooLarge("request body exceeds the maximum allowed size")
	}
	return nil
}

// DateRange rejects an explicit [from, to] window wider than
// MaxExportRangeDays, used by the export endpoint.
func DateRange(from, to time.Time) error {
	if to.Before(from) {
		return apierr.BadRequest("end_date must not precede start_date")
	}
	days := int(to.Sub(from).Hours() / 24)
	if days > MaxExportRangeDays {
		return apierr.BadRequest(fmt.Sprintf("date range exceeds the maximum of %d days", MaxExportRangeDays))
	}
	return nil
}
