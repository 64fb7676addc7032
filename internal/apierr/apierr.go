// Package apierr provides a single standardized error type for the HTTP
// surface. Every handler returns (or aborts with) an *AppError so the
// response body, status code, and log line all derive from one place.
package apierr

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AppError is the one error shape that crosses the handler boundary.
//
// Details is never sent to the client, only logged. Code exists for
// clients that want to branch on something more stable than the message
// string.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
	RetryAfter int    `json:"-"` // seconds; 0 means unset
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response is what actually gets marshaled to the client.
type Response struct {
	Error string `json:"error"`
}

// ToResponse renders the client-visible body. Details never appears here.
func (e *AppError) ToResponse() Response {
	return Response{Error: e.Message}
}

// Abort writes this error as the response and stops further handler
// chain execution. If RetryAfter is set it is sent as a Retry-After
// header before the body.
func (e *AppError) Abort(c *gin.Context) {
	if e.RetryAfter > 0 {
		c.Header("Retry-After", fmt.Sprint(e.RetryAfter))
	}
	c.AbortWithStatusJSON(e.StatusCode, e.ToResponse())
}

const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeConflict        = "CONFLICT"
	CodeNotImplemented  = "NOT_IMPLEMENTED"
	CodeInternal        = "INTERNAL"
)

func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusFor(code)}
}

func WithDetails(code, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details, StatusCode: statusFor(code)}
}

func Wrap(code, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return WithDetails(code, message, details)
}

func statusFor(code string) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeConflict:
		return http.StatusConflict
	case CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func BadRequest(message string) *AppError   { return New(CodeBadRequest, message) }
func Unauthorized(message string) *AppError { return New(CodeUnauthorized, message) }
func Forbidden(message string) *AppError    { return New(CodeForbidden, message) }
func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}
func PayloadTooLarge(message string) *AppError { return New(CodePayloadTooLarge, message) }
func Conflict(message string) *AppError        { return New(CodeConflict, message) }
func NotImplemented(message string) *AppError  { return New(CodeNotImplemented, message) }
func Internal(message string) *AppError        { return New(CodeInternal, message) }

// TooManyRequests builds a 429 with an optional Retry-After hint in
// seconds (used by the login-lockout and rate-limiter paths).
func TooManyRequests(message string, retryAfterSecs int) *AppError {
	e := New(CodeTooManyRequests, message)
	e.RetryAfter = retryAfterSecs
	return e
}
