package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header key for request ID.
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the context key for request ID.
	RequestIDKey = "request_id"

	maxRequestIDLength = 128
)

// callbackIDHeaders are delivery ids some rails send instead of X-Request-ID.
var callbackIDHeaders = []string{
	"X-Reference-Id",
	"Stripe-Request-Id",
}

// RequestID returns a middleware that adds a request ID to each request.
// A caller or provider supplied id is kept when it is a safe log value.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := incomingRequestID(c)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

func incomingRequestID(c *gin.Context) string {
	if id := c.GetHeader(RequestIDHeader); validRequestID(id) {
		return id
	}
	for _, h := range callbackIDHeaders {
		if id := c.GetHeader(h); validRequestID(id) {
			return id
		}
	}
	return ""
}

// validRequestID accepts short printable ASCII ids only.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID returns the request ID from context.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
