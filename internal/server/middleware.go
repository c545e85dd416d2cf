package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xtages/console/internal/orgcontext"
	usagedomain "github.com/xtages/console/internal/usage/domain"
	"github.com/xtages/console/pkg/log/ctxlogger"
	"github.com/xtages/console/pkg/telemetry"
	"go.uber.org/zap"
)

const HeaderOrg = "X-Organization"

// OrgContext resolves the organization the request acts for.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if name != "" {
			ctx := orgcontext.WithOrganizationName(c.Request.Context(), name)
			c.Request = c.Request.WithContext(ctxlogger.WithOrganization(ctx, name))
		}
		c.Next()
	}
}

// RequireUnderLimit rejects the request with 402 when the organization has
// exhausted kind.
func (s *Server) RequireUnderLimit(kind usagedomain.ResourceType) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxlogger.With(c.Request.Context(), zap.String("resource_type", string(kind)))
		c.Request = c.Request.WithContext(ctx)

		name, ok := orgcontext.OrganizationNameFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		org, err := s.usagesvc.FindOrganization(ctx, name)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if _, err := s.usagesvc.RequireUnderLimit(ctx, *org, kind); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// APIMetrics observes every request on the Prometheus API collectors.
func APIMetrics(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPIRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
