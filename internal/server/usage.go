package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
	"github.com/xtages/console/internal/orgcontext"
	usagedomain "github.com/xtages/console/internal/usage/domain"
	"github.com/xtages/console/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

// Usage statuses as shown to organizations.
const (
	UsageStatusUnderLimit    = "UNDER_LIMIT"
	UsageStatusOverLimit     = "OVER_LIMIT"
	UsageStatusBadStanding   = "ORG_IN_BAD_STANDING"
	UsageStatusNoPlan        = "ORG_NOT_SUBSCRIBED_TO_PLAN"
	UsageStatusGrandfathered = "GRANDFATHERED"
)

const notApplicable int64 = -1

type UsageDetailResponse struct {
	ResourceType           usagedomain.ResourceType `json:"resource_type"`
	BillingModel           usagedomain.BillingModel `json:"billing_model"`
	Status                 string                   `json:"status"`
	Usage                  int64                    `json:"usage"`
	Limit                  int64                    `json:"limit"`
	ResetTimestampInMillis *int64                   `json:"reset_timestamp_in_millis"`
}

func NewUsageDetailResponse(d usagedomain.UsageDetail) UsageDetailResponse {
	resp := UsageDetailResponse{
		ResourceType: d.ResourceType,
		BillingModel: d.ResourceType.BillingModel(),
		Usage:        notApplicable,
		Limit:        notApplicable,
	}

	switch d.Verdict {
	case usagedomain.VerdictOverLimitStanding:
		resp.Status = UsageStatusBadStanding
	case usagedomain.VerdictOverLimitNoPlan:
		resp.Status = UsageStatusNoPlan
	case usagedomain.VerdictUnderLimitGrandfathered:
		resp.Status = UsageStatusGrandfathered
	case usagedomain.VerdictOverLimit:
		resp.Status = UsageStatusOverLimit
	default:
		resp.Status = UsageStatusUnderLimit
	}

	if d.HasDetails() {
		resp.Usage = d.Usage
		resp.Limit = d.Limit
	}
	if d.ResetAt != nil {
		millis := d.ResetAt.UnixMilli()
		resp.ResetTimestampInMillis = &millis
	}
	return resp
}

// ListUsage returns the usage of every resource for the calling organization,
// an empty list when the organization is unknown.
func (s *Server) ListUsage(c *gin.Context) {
	ctx := c.Request.Context()
	out := []UsageDetailResponse{}

	name, ok := orgcontext.OrganizationNameFromContext(ctx)
	if !ok {
		c.JSON(http.StatusOK, out)
		return
	}
	org, err := s.usagesvc.FindOrganization(ctx, name)
	if errors.Is(err, ledgerdomain.ErrOrganizationNotFound) {
		c.JSON(http.StatusOK, out)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	details, err := s.usagesvc.EvaluateAll(ctx, *org)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	for _, d := range details {
		out = append(out, NewUsageDetailResponse(d))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) GetUsage(c *gin.Context) {
	kind, err := usagedomain.ParseResourceType(c.Param("resource"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ctx := ctxlogger.With(c.Request.Context(), zap.String("resource_type", string(kind)))
	c.Request = c.Request.WithContext(ctx)
	name, ok := orgcontext.OrganizationNameFromContext(ctx)
	if !ok {
		AbortWithError(c, ledgerdomain.ErrOrganizationNotFound)
		return
	}
	org, err := s.usagesvc.FindOrganization(ctx, name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	detail, err := s.usagesvc.Evaluate(ctx, *org, kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewUsageDetailResponse(detail))
}
