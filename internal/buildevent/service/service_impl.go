package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	buildeventdomain "github.com/xtages/console/internal/buildevent/domain"
	"github.com/xtages/console/internal/clock"
	"github.com/xtages/console/internal/config"
	"github.com/xtages/console/internal/dedup"
	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
	obsmetrics "github.com/xtages/console/internal/observability/metrics"
	"github.com/xtages/console/pkg/db"
	"github.com/xtages/console/pkg/log/ctxlogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var validEnvironments = map[string]struct{}{
	"dev":        {},
	"staging":    {},
	"production": {},
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Ledger     ledgerdomain.Repository
	Dedup      *dedup.Deduplicator
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	accountID  string
	ledger     ledgerdomain.Repository
	dedup      *dedup.Deduplicator
	obsMetrics *obsmetrics.Metrics
	tracer     trace.Tracer
}

func NewService(p ServiceParam) buildeventdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("buildevent.reconciler"),

		genID:      p.GenID,
		clock:      p.Clock,
		accountID:  strings.TrimSpace(p.Config.AWS.AccountID),
		ledger:     p.Ledger,
		dedup:      p.Dedup,
		obsMetrics: p.ObsMetrics,
		tracer:     otel.Tracer("console/buildevent"),
	}
}

func (s *Service) HandleNotification(ctx context.Context, notificationID string, payload []byte) error {
	ctx, span := s.tracer.Start(ctx, "buildevent.HandleNotification", trace.WithAttributes(
		attribute.String("notification_id", notificationID),
	))
	defer span.End()

	err := s.handle(ctx, notificationID, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build notification failed")
	}
	return err
}

func (s *Service) handle(ctx context.Context, notificationID string, payload []byte) error {
	log := ctxlogger.WithContext(ctx, s.log)

	event, err := buildeventdomain.ParseEvent(payload)
	if err != nil {
		return err
	}
	if event.Account != s.accountID || event.Source != buildeventdomain.EventSource {
		return fmt.Errorf("%w: unexpected account %q or source %q", buildeventdomain.ErrMalformedNotification, event.Account, event.Source)
	}

	switch event.DetailType {
	case buildeventdomain.DetailTypeStateChange:
	case buildeventdomain.DetailTypePhaseChange:
		log.Debug("dropping codebuild phase change",
			zap.String("build_arn", event.Detail.BuildID),
			zap.String("phase", event.Detail.CurrentPhase),
		)
		return nil
	default:
		return fmt.Errorf("%w: unexpected detail-type %q", buildeventdomain.ErrMalformedNotification, event.DetailType)
	}

	log.Info("processing codebuild status change",
		zap.String("build_arn", event.Detail.BuildID),
		zap.String("current_phase", event.Detail.CurrentPhase),
		zap.String("build_status", event.Detail.BuildStatus),
	)

	var (
		applied bool
		outcome string
	)
	err = s.dedup.Guard(ctx, notificationID, func(ctx context.Context) error {
		var err error
		applied, outcome, err = s.reconcile(ctx, notificationID, event)
		return err
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			log.Info("notification recorded concurrently, skipping", zap.String("build_arn", event.Detail.BuildID))
			return nil
		}
		return err
	}
	if !applied {
		log.Info("notification already processed, skipping", zap.String("build_arn", event.Detail.BuildID))
		return nil
	}
	if outcome != "" {
		s.obsMetrics.RecordBuildOutcome(ctx, outcome)
		log.Info("build finished", zap.String("build_arn", event.Detail.BuildID), zap.String("status", outcome))
	}
	return nil
}

// reconcile writes every row derived from one notification in a single
// transaction. applied is false when the notification was seen before.
func (s *Service) reconcile(ctx context.Context, notificationID string, event *buildeventdomain.Event) (bool, string, error) {
	var (
		applied bool
		outcome string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		processed, err := s.dedup.AlreadyProcessed(ctx, tx, notificationID)
		if err != nil {
			return err
		}
		if processed {
			return nil
		}

		bootstrap, err := s.ledger.FindBootstrapEvent(ctx, tx, event.Detail.BuildID)
		if err != nil {
			return err
		}
		if bootstrap == nil {
			return fmt.Errorf("%w: build %s", buildeventdomain.ErrMissingBootstrapContext, event.Detail.BuildID)
		}

		var rows []*ledgerdomain.BuildEvent
		if event.Terminal() {
			rows, err = completedEvents(event.Detail.AdditionalInformation.Phases)
			if err != nil {
				return err
			}
		} else {
			at := event.Time.UTC()
			rows = []*ledgerdomain.BuildEvent{{
				Name:      event.Detail.CurrentPhase,
				Status:    event.Detail.BuildStatus,
				StartTime: at,
				EndTime:   at,
			}}
		}

		id := notificationID
		for _, row := range rows {
			row.ID = s.genID.Generate()
			row.NotificationID = &id
			row.BuildArn = event.Detail.BuildID
			row.BuildID = bootstrap.BuildID
			row.OrganizationName = bootstrap.OrganizationName
			row.UserID = bootstrap.UserID
			row.ProjectID = bootstrap.ProjectID
			row.Environment = bootstrap.Environment
			row.CommitHash = bootstrap.CommitHash
		}
		if err := s.ledger.AppendBuildEvents(ctx, tx, rows); err != nil {
			return err
		}

		if event.Terminal() {
			last := rows[len(rows)-1]
			outcome = rollUp(rows)
			if err := s.ledger.UpdateBuildOutcome(ctx, tx, bootstrap.BuildID, outcome, last.EndTime); err != nil {
				return err
			}
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, "", err
	}
	return applied, outcome, nil
}

// completedEvents turns the phases of a COMPLETED notification into ordered rows.
func completedEvents(phases []buildeventdomain.Phase) ([]*ledgerdomain.BuildEvent, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: completed build without phases", buildeventdomain.ErrMalformedNotification)
	}

	sorted := buildeventdomain.SortPhases(phases)
	if last := sorted[len(sorted)-1]; last.PhaseType != buildeventdomain.PhaseCompleted {
		return nil, fmt.Errorf("%w: last phase is %q, want %q", buildeventdomain.ErrMalformedNotification, last.PhaseType, buildeventdomain.PhaseCompleted)
	}

	rows := make([]*ledgerdomain.BuildEvent, 0, len(sorted))
	for _, phase := range sorted {
		status := phase.PhaseStatus
		if phase.PhaseType == buildeventdomain.PhaseCompleted {
			status = buildeventdomain.PhaseStatusSucceeded
		}
		rows = append(rows, &ledgerdomain.BuildEvent{
			Name:      phase.PhaseType,
			Status:    status,
			Message:   phase.Message(),
			StartTime: phase.StartTime.UTC(),
			EndTime:   phase.End().UTC(),
		})
	}
	return rows, nil
}

// rollUp derives the final build status from its phase rows.
func rollUp(rows []*ledgerdomain.BuildEvent) string {
	completed := false
	for _, row := range rows {
		if row.Status == buildeventdomain.PhaseStatusFailed {
			return ledgerdomain.BuildStatusFailed
		}
		if row.Name == buildeventdomain.PhaseCompleted {
			completed = completed || row.Status == buildeventdomain.PhaseStatusSucceeded
		}
	}
	if completed {
		return ledgerdomain.BuildStatusSucceeded
	}
	return ledgerdomain.BuildStatusUnknown
}

func (s *Service) RecordBuildStarted(ctx context.Context, start buildeventdomain.BuildStart) (*ledgerdomain.Build, error) {
	start.BuildArn = strings.TrimSpace(start.BuildArn)
	start.OrganizationName = strings.TrimSpace(start.OrganizationName)
	start.Environment = strings.ToLower(strings.TrimSpace(start.Environment))
	if start.BuildArn == "" || start.OrganizationName == "" {
		return nil, fmt.Errorf("%w: organization and build arn are required", buildeventdomain.ErrInvalidBuildStart)
	}
	if _, ok := validEnvironments[start.Environment]; !ok {
		return nil, fmt.Errorf("%w: environment %q", buildeventdomain.ErrInvalidBuildStart, start.Environment)
	}
	if start.StartTime.IsZero() {
		start.StartTime = s.clock.Now()
	}
	startTime := start.StartTime.UTC().Truncate(time.Microsecond)

	arn := start.BuildArn
	build := &ledgerdomain.Build{
		ID:               s.genID.Generate(),
		OrganizationName: start.OrganizationName,
		ProjectID:        start.ProjectID,
		UserID:           start.UserID,
		Environment:      start.Environment,
		CommitHash:       start.CommitHash,
		BuildArn:         &arn,
		Status:           ledgerdomain.BuildStatusInProgress,
		StartTime:        startTime,
	}
	bootstrap := &ledgerdomain.BuildEvent{
		ID:               s.genID.Generate(),
		BuildArn:         arn,
		BuildID:          build.ID,
		OrganizationName: build.OrganizationName,
		UserID:           build.UserID,
		ProjectID:        build.ProjectID,
		Environment:      build.Environment,
		CommitHash:       build.CommitHash,
		Name:             ledgerdomain.BuildEventSentToBuild,
		Status:           ledgerdomain.BuildEventStarted,
		StartTime:        startTime,
		EndTime:          startTime,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.InsertBuild(ctx, tx, build); err != nil {
			return err
		}
		return s.ledger.AppendBuildEvents(ctx, tx, []*ledgerdomain.BuildEvent{bootstrap})
	})
	if err != nil {
		return nil, err
	}

	ctxlogger.WithContext(ctx, s.log).Info("build started",
		zap.String("build_arn", arn),
		zap.String("organization", build.OrganizationName),
		zap.String("environment", build.Environment),
	)
	return build, nil
}
