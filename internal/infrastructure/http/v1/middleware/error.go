package middleware

import (
	"github.com/gin-gonic/gin"

	"fleetledger/internal/core/apperror"
	"fleetledger/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// It is the only place that writes error bodies.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeError(c, c.Errors.Last().Err)
	}
}

// writeError renders err as {code, message, details}. Errors that are not
// an *AppError become INTERNAL_ERROR; 5xx bodies carry the request id so
// a report can be matched with the log line.
func writeError(c *gin.Context, err error) {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		appErr = apperror.NewInternal(err)
	}

	details := appErr.Details
	if appErr.HTTPStatus >= 500 {
		logger.Error(c.Request.Context(), "request failed", "code", appErr.Code, "error", err)
		details = make(map[string]any, len(appErr.Details)+1)
		for k, v := range appErr.Details {
			details[k] = v
		}
		details["request_id"] = c.GetString("request_id")
	}

	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
		"details": details,
	})
}
