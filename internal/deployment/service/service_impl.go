package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/xtages/console/internal/clock"
	"github.com/xtages/console/internal/dedup"
	deploymentdomain "github.com/xtages/console/internal/deployment/domain"
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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type source string

const (
	sourceSteadyState    source = "steady_state"
	sourceScaleIn        source = "scale_in"
	sourceDeployComplete source = "deploy_completed"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Ledger     ledgerdomain.Repository
	Dedup      *dedup.Deduplicator
	Describer  deploymentdomain.ServiceDescriber
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	ledger     ledgerdomain.Repository
	dedup      *dedup.Deduplicator
	describer  deploymentdomain.ServiceDescriber
	obsMetrics *obsmetrics.Metrics
	tracer     trace.Tracer
}

func NewService(p ServiceParam) deploymentdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("deployment.resolver"),

		genID:      p.GenID,
		clock:      p.Clock,
		ledger:     p.Ledger,
		dedup:      p.Dedup,
		describer:  p.Describer,
		obsMetrics: p.ObsMetrics,
		tracer:     otel.Tracer("console/deployment"),
	}
}

func (s *Service) HandleSteadyState(ctx context.Context, notificationID string, payload []byte) error {
	event, err := deploymentdomain.ParseSteadyState(payload)
	if err != nil {
		return err
	}
	target, err := event.Target()
	if err != nil {
		return err
	}
	return s.apply(ctx, notificationID, sourceSteadyState, target)
}

func (s *Service) HandleScaleIn(ctx context.Context, notificationID string, payload []byte) error {
	event, err := deploymentdomain.ParseCloudTrail(payload)
	if err != nil {
		return err
	}
	target, err := event.ScaleInTarget()
	if err != nil {
		return err
	}
	return s.apply(ctx, notificationID, sourceScaleIn, target)
}

func (s *Service) HandleDeployCompleted(ctx context.Context, notificationID string, payload []byte) error {
	event, err := deploymentdomain.ParseCloudTrail(payload)
	if err != nil {
		return err
	}
	target, err := event.DeployTarget()
	if err != nil {
		return err
	}
	return s.apply(ctx, notificationID, sourceDeployComplete, target)
}

func (s *Service) apply(ctx context.Context, notificationID string, src source, target deploymentdomain.Target) error {
	ctx, span := s.tracer.Start(ctx, "deployment."+string(src), trace.WithAttributes(
		attribute.String("notification_id", notificationID),
		attribute.String("service", target.Service),
		attribute.String("cluster", target.Cluster),
		attribute.String("environment", string(target.Environment)),
	))
	defer span.End()

	err := s.dedup.Guard(ctx, notificationID, func(ctx context.Context) error {
		return s.record(ctx, notificationID, src, target)
	})
	if err != nil && db.IsDuplicateKeyErr(err) {
		err = nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deployment notification failed")
	}
	return err
}

func (s *Service) record(ctx context.Context, notificationID string, src source, target deploymentdomain.Target) error {
	log := ctxlogger.WithContext(ctx, s.log).With(
		zap.String("source", string(src)),
		zap.String("service", target.Service),
		zap.String("cluster", target.Cluster),
		zap.String("environment", string(target.Environment)),
	)

	state, err := s.describer.DescribeService(ctx, target.Service, target.Cluster)
	if err != nil {
		return fmt.Errorf("describe service %s: %w", target.Service, err)
	}
	status, err := deploymentdomain.ResolveStatus(state)
	if err != nil {
		return err
	}

	var recorded *ledgerdomain.ProjectDeployment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen, err := s.dedup.DeploymentAlreadyRecorded(ctx, tx, notificationID)
		if err != nil {
			return err
		}
		if seen {
			log.Info("notification already processed, skipping")
			return nil
		}

		project, err := s.ledger.FindProjectByHash(ctx, tx, target.Service)
		if err != nil {
			return err
		}
		if project == nil {
			return fmt.Errorf("%w: %s", ledgerdomain.ErrProjectNotFound, target.Service)
		}

		if src == sourceSteadyState {
			latest, err := s.ledger.FindLatestDeployment(ctx, tx, project.Hash, string(target.Environment))
			if err != nil {
				return err
			}
			if latest == nil {
				log.Info("no deployment history for service, ignoring steady state")
				return nil
			}
		}

		id := notificationID
		recorded = &ledgerdomain.ProjectDeployment{
			ID:             s.genID.Generate(),
			ProjectID:      project.ID,
			ProjectHash:    project.Hash,
			Environment:    string(target.Environment),
			BuildID:        state.BuildID(),
			Status:         string(status),
			NotificationID: &id,
			Metadata: datatypes.JSONMap{
				"source":         string(src),
				"cluster":        target.Cluster,
				"running_count":  state.RunningCount,
				"desired_count":  state.DesiredCount,
				"service_status": state.Status,
			},
			StatusChangeTime: s.clock.Now(),
		}
		return s.ledger.AppendProjectDeployment(ctx, tx, recorded)
	})
	if err != nil {
		return err
	}

	if recorded != nil {
		s.obsMetrics.RecordDeploymentStatus(ctx, recorded.Environment, recorded.Status)
		log.Info("deployment status recorded", zap.String("status", recorded.Status))
	}
	return nil
}
