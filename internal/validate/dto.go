package validate

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var (
	structValidator = validator.New()
	sanitizer       = bluemonday.StrictPolicy()
)

// BindAndValidate binds JSON onto req and runs its struct tags. On
// failure it writes the 400 response itself and returns false, the same
// two-step contract the rest of the handlers use via apierr.
func BindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := structValidator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return false
	}
	return true
}

// SanitizeFreeText strips HTML/script markup from a free-text field
// (pathname, referrer, props) as defense in depth on top of the
// control-character stripping classify.SanitizeString already performs.
func SanitizeFreeText(s string) string {
	return sanitizer.Sanitize(s)
}
