package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xtages/console/pkg/log/ctxlogger"
	"github.com/xtages/console/pkg/telemetry/correlation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const legacyRequestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to an (error_type, error_code) pair.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns every request a correlation id and writes one access log
// line once the handler chain returns. Organization and resource fields attached
// further down the chain end up on that line too.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := correlation.WithID(c.Request.Context(), incomingCorrelationID(c.Request))
		ctx, id := correlation.Ensure(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(correlation.Header, id)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}

		var errorType string
		if last := c.Errors.Last(); last != nil {
			var errorCode string
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Error(last.Err))
			}
		}

		log := ctxlogger.FromContext(c.Request.Context())
		if ce := log.Check(accessLevel(route, status, errorType), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func incomingCorrelationID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(correlation.Header)); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(legacyRequestIDHeader))
}

func accessLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status == http.StatusPaymentRequired && errorType == "usage_over_limit":
		// A quota refusal is an answer, not a failure.
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
