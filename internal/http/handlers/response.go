// Package handlers implements the fortune API endpoints.
//
// Every failure is answered with an ErrorResponse carrying a stable code from
// errors.go; successes are the endpoint's own JSON body:
//
//	201 POST /fortunes             GenerateResponse
//	200 GET  /stats                domain.Statistics
//	200 POST /maintenance/cleanup  services.CleanupResult
//	4xx/5xx                        {"request_id": "...", "code": "...", "message": "..."}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-fortune-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by all endpoints.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching a client report to server logs.
	RequestID string `json:"request_id,omitempty"`
	// Stable, machine-readable code.
	Code string `json:"code"`
	// Human-readable message. Never contains identity fields.
	Message string `json:"message"`
}

// fail aborts with an ErrorResponse. 5xx answers are logged with the
// request-scoped logger and, once known, the hashed subject id.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		ev := middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code)
		if sid := middleware.SubjectFrom(c); sid != "" {
			ev = ev.Str("subject_id", sid)
		}
		ev.Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer 404/405 with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
