package domain

import (
	"strings"
	"time"

	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
)

// ResourceType is a quota dimension of a plan.
type ResourceType string

const (
	ResourceProject                ResourceType = "PROJECT"
	ResourceMonthlyBuildMinutes    ResourceType = "MONTHLY_BUILD_MINUTES"
	ResourceMonthlyDataTransferGbs ResourceType = "MONTHLY_DATA_TRANSFER_GBS"
	ResourceDBStorageGbs           ResourceType = "DB_STORAGE_GBS"
)

// ResourceTypes lists every quota dimension in display order.
var ResourceTypes = []ResourceType{
	ResourceProject,
	ResourceMonthlyBuildMinutes,
	ResourceMonthlyDataTransferGbs,
	ResourceDBStorageGbs,
}

// ParseResourceType accepts the enum name in any case, with dashes or underscores.
func ParseResourceType(raw string) (ResourceType, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
	for _, r := range ResourceTypes {
		if string(r) == normalized {
			return r, nil
		}
	}
	return "", ErrInvalidResourceType
}

// Windowed reports whether usage of the resource resets every billing cycle.
func (r ResourceType) Windowed() bool {
	return r == ResourceMonthlyBuildMinutes || r == ResourceMonthlyDataTransferGbs
}

// PlanLimit returns the plan's limit for the resource, possibly UnlimitedQuota.
func (r ResourceType) PlanLimit(p ledgerdomain.Plan) int64 {
	switch r {
	case ResourceProject:
		return p.LimitProjects
	case ResourceMonthlyBuildMinutes:
		return p.LimitMonthlyBuildMinutes
	case ResourceMonthlyDataTransferGbs:
		return p.LimitMonthlyDataTransferGbs
	case ResourceDBStorageGbs:
		return p.LimitDBStorageGbs
	default:
		return 0
	}
}

// BillingModel describes how a resource is metered.
type BillingModel string

const (
	BillingModelTotalNumber     BillingModel = "TOTAL_NUMBER"
	BillingModelMinutesPerMonth BillingModel = "MINUTES_PER_MONTH"
	BillingModelGBPerMonth      BillingModel = "GB_PER_MONTH"
	BillingModelTotalGB         BillingModel = "TOTAL_GB"
)

func (r ResourceType) BillingModel() BillingModel {
	switch r {
	case ResourceMonthlyBuildMinutes:
		return BillingModelMinutesPerMonth
	case ResourceMonthlyDataTransferGbs:
		return BillingModelGBPerMonth
	case ResourceDBStorageGbs:
		return BillingModelTotalGB
	default:
		return BillingModelTotalNumber
	}
}

// Verdict is the outcome of evaluating one resource for one organization.
type Verdict string

const (
	VerdictOverLimitStanding       Verdict = "OVER_LIMIT_STANDING"
	VerdictOverLimitNoPlan         Verdict = "OVER_LIMIT_NO_PLAN"
	VerdictUnderLimitGrandfathered Verdict = "UNDER_LIMIT_GRANDFATHERED"
	VerdictOverLimit               Verdict = "OVER_LIMIT"
	VerdictUnderLimit              Verdict = "UNDER_LIMIT"
)

// UsageDetail is the evaluated usage of a resource. Limit and Usage are only
// meaningful for VerdictOverLimit and VerdictUnderLimit; SubscriptionStatus only
// for VerdictOverLimitStanding.
type UsageDetail struct {
	ResourceType       ResourceType                    `json:"resource_type"`
	Verdict            Verdict                         `json:"verdict"`
	SubscriptionStatus ledgerdomain.SubscriptionStatus `json:"subscription_status,omitempty"`
	Limit              int64                           `json:"limit"`
	Usage              int64                           `json:"usage"`
	ResetAt            *time.Time                      `json:"reset_at,omitempty"`
}

// OverLimit reports whether the verdict blocks further use of the resource.
func (d UsageDetail) OverLimit() bool {
	switch d.Verdict {
	case VerdictOverLimitStanding, VerdictOverLimitNoPlan, VerdictOverLimit:
		return true
	default:
		return false
	}
}

// HasDetails reports whether Limit and Usage carry measured values.
func (d UsageDetail) HasDetails() bool {
	return d.Verdict == VerdictOverLimit || d.Verdict == VerdictUnderLimit
}
