// Package api holds the HTTP plumbing shared by the directory's
// RPC-shaped endpoints and the peer server's REST endpoints: CORS and
// request logging middleware, and the single place error kinds are
// translated into HTTP status codes.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inventor7/p2p/internal/apierr"
	"go.uber.org/zap"
)

// CORSMiddleware answers preflight requests and sets permissive CORS
// headers by default, restricted to allowedOrigins when the caller
// supplies any.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := "*"
		if len(allowedOrigins) > 0 {
			origin = allowedOrigins[0]
			requestOrigin := c.GetHeader("Origin")
			for _, allowed := range allowedOrigins {
				if allowed == requestOrigin {
					origin = allowed
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, Accept, Cache-Control, X-Requested-With, X-Peer-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware logs method, path, status, latency, and client IP
// for every request once it completes.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// statusFor maps an error Kind to the HTTP status the specification's
// error handling section assigns it.
func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.KindAuth:
		return http.StatusUnauthorized
	case apierr.KindConflict:
		return http.StatusConflict
	case apierr.KindRateLimited:
		return http.StatusTooManyRequests
	case apierr.KindBadRequest:
		return http.StatusBadRequest
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes the single JSON error shape used across both
// the directory and peer server HTTP surfaces, translating the error
// kind to a status code exactly once, at the boundary.
func RespondError(c *gin.Context, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(statusFor(apiErr.Kind), gin.H{"error": apiErr.Message})
}
