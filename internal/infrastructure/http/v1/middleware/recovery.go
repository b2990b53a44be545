// Package middleware holds the gin middleware chain of the ledger API.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fleetledger/internal/core/apperror"
	"fleetledger/pkg/logger"
)

// Recovery converts a handler panic into INTERNAL_ERROR. A panic inside a
// posting handler happens before commit, so the ledger transaction is
// already rolled back by the time we get here.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			err := fmt.Errorf("panic in %s %s: %v", c.Request.Method, c.FullPath(), rec)

			span := trace.SpanFromContext(ctx)
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, "panic")

			logger.Error(ctx, "handler panic", "error", err, "stack", string(debug.Stack()))

			// The panic unwound past ErrorHandler, so render here.
			writeError(c, apperror.NewInternal(err))
		}()
		c.Next()
	}
}
