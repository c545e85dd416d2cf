package service

import (
	"context"
	"fmt"
	"time"

	billingcycledomain "github.com/xtages/console/internal/billingcycle/domain"
	"github.com/xtages/console/internal/clock"
	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
	obsmetrics "github.com/xtages/console/internal/observability/metrics"
	usagedomain "github.com/xtages/console/internal/usage/domain"
	"github.com/xtages/console/pkg/log/ctxlogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	bytesPerGiB = 1 << 30
	bytesPerGB  = 1_000_000_000
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Ledger       ledgerdomain.Repository
	DataTransfer usagedomain.DataTransferMeter `optional:"true"`
	Storage      usagedomain.StorageMeter      `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics           `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock        clock.Clock
	ledger       ledgerdomain.Repository
	dataTransfer usagedomain.DataTransferMeter
	storage      usagedomain.StorageMeter
	obsMetrics   *obsmetrics.Metrics
	tracer       trace.Tracer
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		clock:        p.Clock,
		ledger:       p.Ledger,
		dataTransfer: p.DataTransfer,
		storage:      p.Storage,
		obsMetrics:   p.ObsMetrics,
		tracer:       otel.Tracer("console/usage"),
	}
}

func (s *Service) FindOrganization(ctx context.Context, name string) (*ledgerdomain.Organization, error) {
	org, err := s.ledger.FindOrganizationByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ledgerdomain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *Service) Evaluate(ctx context.Context, org ledgerdomain.Organization, kind usagedomain.ResourceType) (usagedomain.UsageDetail, error) {
	if _, err := usagedomain.ParseResourceType(string(kind)); err != nil {
		return usagedomain.UsageDetail{}, err
	}

	ctx, span := s.tracer.Start(ctx, "usage.Evaluate", trace.WithAttributes(
		attribute.String("organization", org.Name),
		attribute.String("resource_type", string(kind)),
	))
	defer span.End()

	detail, err := s.evaluate(ctx, org, kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "usage evaluation failed")
		return usagedomain.UsageDetail{}, err
	}

	span.SetAttributes(attribute.String("verdict", string(detail.Verdict)))
	s.obsMetrics.RecordUsageEvaluation(ctx, string(kind), string(detail.Verdict))
	return detail, nil
}

func (s *Service) RequireUnderLimit(ctx context.Context, org ledgerdomain.Organization, kind usagedomain.ResourceType) (usagedomain.UsageDetail, error) {
	detail, err := s.Evaluate(ctx, org, kind)
	if err != nil {
		return usagedomain.UsageDetail{}, err
	}
	if detail.OverLimit() {
		ctxlogger.WithContext(ctx, s.log).Info("usage over limit",
			zap.String("organization", org.Name),
			zap.String("resource_type", string(kind)),
			zap.String("verdict", string(detail.Verdict)),
			zap.Int64("limit", detail.Limit),
			zap.Int64("usage", detail.Usage),
		)
		s.obsMetrics.RecordUsageDenied(ctx, string(kind), string(detail.Verdict))
		return detail, &usagedomain.UsageOverLimitError{Detail: detail}
	}
	return detail, nil
}

func (s *Service) EvaluateAll(ctx context.Context, org ledgerdomain.Organization) ([]usagedomain.UsageDetail, error) {
	details := make([]usagedomain.UsageDetail, len(usagedomain.ResourceTypes))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range usagedomain.ResourceTypes {
		g.Go(func() error {
			detail, err := s.Evaluate(gctx, org, kind)
			if err != nil {
				return fmt.Errorf("evaluate %s: %w", kind, err)
			}
			details[i] = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}

func (s *Service) evaluate(ctx context.Context, org ledgerdomain.Organization, kind usagedomain.ResourceType) (usagedomain.UsageDetail, error) {
	if inBadStanding(org.SubscriptionStatus) {
		return usagedomain.UsageDetail{
			ResourceType:       kind,
			Verdict:            usagedomain.VerdictOverLimitStanding,
			SubscriptionStatus: org.SubscriptionStatus,
		}, nil
	}

	now := s.clock.Now()
	current, err := s.ledger.FindCurrentPlan(ctx, s.db, org.Name, now)
	if err != nil {
		return usagedomain.UsageDetail{}, err
	}
	if current == nil {
		return usagedomain.UsageDetail{ResourceType: kind, Verdict: usagedomain.VerdictOverLimitNoPlan}, nil
	}

	planLimit := kind.PlanLimit(current.Plan)
	if planLimit == ledgerdomain.UnlimitedQuota {
		return usagedomain.UsageDetail{ResourceType: kind, Verdict: usagedomain.VerdictUnderLimitGrandfathered}, nil
	}

	window := billingcycledomain.CurrentBillingMonth(current.AnchorDay(), now)

	var credits, usage int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		active, err := s.ledger.FindActiveCredits(gctx, s.db, org.Name, now)
		if err != nil {
			return fmt.Errorf("fetch credits: %w", err)
		}
		credits = sumCredits(active, kind, now)
		return nil
	})
	g.Go(func() error {
		measured, err := s.measure(gctx, org, kind, current.Plan, window)
		if err != nil {
			return fmt.Errorf("measure usage: %w", err)
		}
		usage = measured
		return nil
	})
	if err := g.Wait(); err != nil {
		return usagedomain.UsageDetail{}, err
	}

	detail := usagedomain.UsageDetail{
		ResourceType: kind,
		Verdict:      usagedomain.VerdictUnderLimit,
		Limit:        planLimit + credits,
		Usage:        usage,
	}
	if detail.Usage >= detail.Limit {
		detail.Verdict = usagedomain.VerdictOverLimit
	}
	if kind.Windowed() {
		resetAt := window.End
		detail.ResetAt = &resetAt
	}
	return detail, nil
}

func (s *Service) measure(
	ctx context.Context,
	org ledgerdomain.Organization,
	kind usagedomain.ResourceType,
	plan ledgerdomain.Plan,
	window billingcycledomain.Window,
) (int64, error) {
	switch kind {
	case usagedomain.ResourceProject:
		return s.ledger.CountProjects(ctx, s.db, org.Name)

	case usagedomain.ResourceMonthlyBuildMinutes:
		builds, err := s.ledger.FindBuildsOverlapping(ctx, s.db, org.Name, window.Start, window.End)
		if err != nil {
			return 0, err
		}
		return BuildMinutes(builds, window), nil

	case usagedomain.ResourceMonthlyDataTransferGbs:
		if s.dataTransfer == nil {
			return 0, usagedomain.ErrMeterUnavailable
		}
		projects, err := s.ledger.FindProjects(ctx, s.db, org.Name)
		if err != nil {
			return 0, err
		}
		if len(projects) == 0 {
			return 0, nil
		}
		hashes := make([]string, 0, len(projects))
		for _, p := range projects {
			hashes = append(hashes, p.Hash)
		}
		bytes, err := s.dataTransfer.DataTransferBytes(ctx, org.Hash, hashes, window.Start, s.clock.Now())
		if err != nil {
			return 0, err
		}
		return bytes / bytesPerGiB, nil

	case usagedomain.ResourceDBStorageGbs:
		if s.storage == nil {
			return 0, usagedomain.ErrMeterUnavailable
		}
		free, err := s.storage.FreeStorageBytes(ctx, org.Hash)
		if err != nil {
			return 0, err
		}
		if free < 0 {
			free = 0
		}
		return plan.LimitDBStorageGbs - free/bytesPerGB, nil

	default:
		return 0, usagedomain.ErrInvalidResourceType
	}
}

// BuildMinutes sums the in-window duration of finished builds in whole seconds
// and rounds the total up to minutes.
func BuildMinutes(builds []ledgerdomain.Build, window billingcycledomain.Window) int64 {
	var seconds int64
	for _, b := range builds {
		if b.EndTime == nil {
			continue
		}
		start, end, ok := window.Clip(b.StartTime, *b.EndTime)
		if !ok {
			continue
		}
		seconds += int64(end.Sub(start) / time.Second)
	}
	return (seconds + 59) / 60
}

func sumCredits(credits []ledgerdomain.Credit, kind usagedomain.ResourceType, now time.Time) int64 {
	var total int64
	for _, c := range credits {
		if c.ResourceType != string(kind) || !c.Active(now) {
			continue
		}
		total += c.Amount
	}
	return total
}

func inBadStanding(status ledgerdomain.SubscriptionStatus) bool {
	switch status {
	case ledgerdomain.SubscriptionStatusUnconfirmed,
		ledgerdomain.SubscriptionStatusSuspended,
		ledgerdomain.SubscriptionStatusCancelled:
		return true
	default:
		return false
	}
}
