package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtages/console/pkg/log/ctxlogger"
	"github.com/xtages/console/pkg/telemetry/correlation"
	"go.uber.org/zap/zapcore"
)

func TestGinMiddlewareKeepsCallerCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := withObservedGlobal(t, zapcore.DebugLevel)

	var seen string
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/v1/usage", func(c *gin.Context) {
		seen = correlation.FromContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctxlogger.WithOrganization(c.Request.Context(), "acme"))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	req.Header.Set(correlation.Header, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get(correlation.Header))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "req-42", entry.ContextMap()["correlation_id"])
	assert.Equal(t, "/api/v1/usage", entry.ContextMap()["route"])
	assert.Equal(t, "acme", entry.ContextMap()["organization"])
}

func TestGinMiddlewareAcceptsLegacyRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	withObservedGlobal(t, zapcore.DebugLevel)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "legacy-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "legacy-1", w.Header().Get(correlation.Header))
}

func TestGinMiddlewareMintsIDAndClassifiesErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := withObservedGlobal(t, zapcore.DebugLevel)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(err error) (string, string) { return "internal_error", "boom" },
	}))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "internal_error", entry.ContextMap()["error_type"])
	_, err := ulid.Parse(w.Header().Get(correlation.Header))
	assert.NoError(t, err)
}

func TestAccessLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, accessLevel("/metrics", http.StatusOK, ""))
	assert.Equal(t, zapcore.DebugLevel, accessLevel("/api/v1/builds", http.StatusPaymentRequired, "usage_over_limit"))
	assert.Equal(t, zapcore.InfoLevel, accessLevel("/api/v1/usage/:resource", http.StatusNotFound, "not_found"))
	assert.Equal(t, zapcore.ErrorLevel, accessLevel("/api/v1/usage", http.StatusServiceUnavailable, "meter_unavailable"))
}
