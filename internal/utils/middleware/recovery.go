package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/paylink/reconciler/internal/utils/errors"
)

// Recovery returns a middleware that recovers from panics.
// If log is nil, the global zap logger is used.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.L()
	}

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", GetRequestID(c)),
					zap.Stack("stack"),
				)

				appErr := apperrors.Internal(fmt.Errorf("panic: %v", rec))
				c.AbortWithStatusJSON(http.StatusInternalServerError, appErr.ToResponse(GetRequestID(c)))
			}
		}()
		c.Next()
	}
}
