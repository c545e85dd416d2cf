package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
)

// Service answers whether an organization may consume more of a resource.
type Service interface {
	// Evaluate computes the current usage of kind for org.
	Evaluate(ctx context.Context, org ledgerdomain.Organization, kind ResourceType) (UsageDetail, error)
	// RequireUnderLimit fails with *UsageOverLimitError when kind is exhausted.
	RequireUnderLimit(ctx context.Context, org ledgerdomain.Organization, kind ResourceType) (UsageDetail, error)
	// EvaluateAll evaluates every resource type, in ResourceTypes order.
	EvaluateAll(ctx context.Context, org ledgerdomain.Organization) ([]UsageDetail, error)
	// FindOrganization resolves an organization by name, ErrOrganizationNotFound when absent.
	FindOrganization(ctx context.Context, name string) (*ledgerdomain.Organization, error)
}

// DataTransferMeter reports bytes sent out of an organization's projects since a point in time.
type DataTransferMeter interface {
	DataTransferBytes(ctx context.Context, orgHash string, projectHashes []string, since, until time.Time) (int64, error)
}

// StorageMeter reports free bytes left on an organization's database.
type StorageMeter interface {
	FreeStorageBytes(ctx context.Context, orgHash string) (int64, error)
}

var (
	ErrUsageOverLimit      = errors.New("usage_over_limit")
	ErrInvalidResourceType = errors.New("invalid_resource_type")
	ErrMeterUnavailable    = errors.New("usage_meter_unavailable")
)

// UsageOverLimitError carries the detail of the exhausted resource.
type UsageOverLimitError struct {
	Detail UsageDetail
}

func (e *UsageOverLimitError) Error() string {
	switch e.Detail.Verdict {
	case VerdictOverLimitStanding:
		return fmt.Sprintf("usage over limit for %s: organization is %s", e.Detail.ResourceType, e.Detail.SubscriptionStatus)
	case VerdictOverLimitNoPlan:
		return fmt.Sprintf("usage over limit for %s: organization has no plan", e.Detail.ResourceType)
	default:
		return fmt.Sprintf("usage over limit for %s: %d of %d", e.Detail.ResourceType, e.Detail.Usage, e.Detail.Limit)
	}
}

func (e *UsageOverLimitError) Is(target error) bool {
	return target == ErrUsageOverLimit
}

func (e *UsageOverLimitError) HTTPStatusCode() int {
	return http.StatusPaymentRequired
}
