package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtages/console/internal/orgcontext"
	"github.com/xtages/console/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSafeErrorKeepsFirstLine(t *testing.T) {
	err := SafeError(errors.New("phase failed\nstack line 1\nstack line 2"))
	require.Error(t, err)
	assert.Equal(t, "phase failed", err.Error())
	assert.Len(t, SafeError(errors.New(strings.Repeat("x", 1000))).Error(), 256)
	assert.Nil(t, SafeError(nil))
}

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/v1/usage"),
		attribute.String("http.request.header.authorization", "Bearer x"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestGinMiddlewareRecordsServerSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/v1/usage/:resource", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/usage/PROJECT", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /api/v1/usage/:resource", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestGinMiddlewareTagsOrganizationAndCorrelation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := correlation.WithID(c.Request.Context(), "req-9")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(GinMiddleware())
	r.GET("/api/v1/usage", func(c *gin.Context) {
		c.Request = c.Request.WithContext(orgcontext.WithOrganizationName(c.Request.Context(), "acme"))
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := map[attribute.Key]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "acme", attrs["organization"])
	assert.Equal(t, "req-9", attrs["correlation_id"])
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}
