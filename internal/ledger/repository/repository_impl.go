package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/xtages/console/internal/ledger/domain"
	"github.com/xtages/console/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindOrganizationByName(ctx context.Context, db *gorm.DB, name string) (*domain.Organization, error) {
	return repository.For[domain.Organization](db).First(ctx, &domain.Organization{Name: name})
}

func (r *repo) FindCurrentPlan(ctx context.Context, db *gorm.DB, orgName string, now time.Time) (*domain.CurrentPlan, error) {
	var row struct {
		ID                          snowflake.ID
		Name                        string
		LimitProjects               int64
		LimitMonthlyBuildMinutes    int64
		LimitMonthlyDataTransferGbs int64
		LimitDBStorageGbs           int64
		StartTime                   time.Time
	}
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.name, p.limit_projects, p.limit_monthly_build_minutes,
			p.limit_monthly_data_transfer_gbs, p.limit_db_storage_gbs, op.start_time
		 FROM organization_plans op
		 JOIN plans p ON p.id = op.plan_id
		 WHERE op.organization_name = ?
		   AND op.start_time <= ?
		   AND (op.end_time IS NULL OR op.end_time > ?)
		 ORDER BY op.start_time DESC
		 LIMIT 1`,
		orgName,
		now,
		now,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &domain.CurrentPlan{
		Plan: domain.Plan{
			ID:                          row.ID,
			Name:                        row.Name,
			LimitProjects:               row.LimitProjects,
			LimitMonthlyBuildMinutes:    row.LimitMonthlyBuildMinutes,
			LimitMonthlyDataTransferGbs: row.LimitMonthlyDataTransferGbs,
			LimitDBStorageGbs:           row.LimitDBStorageGbs,
		},
		StartTime: row.StartTime.UTC(),
	}, nil
}

func (r *repo) FindActiveCredits(ctx context.Context, db *gorm.DB, orgName string, now time.Time) ([]domain.Credit, error) {
	var items []domain.Credit
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_name, resource_type, amount, created_at, expires_at
		 FROM credits
		 WHERE organization_name = ?
		   AND created_at <= ?
		   AND (expires_at IS NULL OR expires_at >= ?)`,
		orgName,
		now,
		now,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountProjects(ctx context.Context, db *gorm.DB, orgName string) (int64, error) {
	return repository.For[domain.Project](db).Count(ctx, &domain.Project{OrganizationName: orgName})
}

func (r *repo) FindProjects(ctx context.Context, db *gorm.DB, orgName string) ([]domain.Project, error) {
	return repository.For[domain.Project](db).List(ctx,
		&domain.Project{OrganizationName: orgName},
		repository.OrderBy("created_at ASC"),
	)
}

func (r *repo) FindProjectByHash(ctx context.Context, db *gorm.DB, hash string) (*domain.Project, error) {
	return repository.For[domain.Project](db).First(ctx, &domain.Project{Hash: hash})
}

func (r *repo) FindBuildsOverlapping(ctx context.Context, db *gorm.DB, orgName string, start, end time.Time) ([]domain.Build, error) {
	var items []domain.Build
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_name, project_id, user_id, environment, commit_hash,
			build_arn, status, start_time, end_time
		 FROM builds
		 WHERE organization_name = ?
		   AND ((start_time >= ? AND start_time <= ?)
		     OR (end_time IS NOT NULL AND end_time >= ? AND end_time <= ?))`,
		orgName,
		start, end,
		start, end,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertBuild(ctx context.Context, db *gorm.DB, build *domain.Build) error {
	return repository.For[domain.Build](db).Append(ctx, build)
}

func (r *repo) UpdateBuildOutcome(ctx context.Context, db *gorm.DB, buildID snowflake.ID, status string, endTime time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE builds
		 SET status = ?, end_time = ?
		 WHERE id = ?`,
		status,
		endTime,
		buildID,
	).Error
}

func (r *repo) FindBuildEventsByNotificationID(ctx context.Context, db *gorm.DB, notificationID string) ([]domain.BuildEvent, error) {
	return repository.For[domain.BuildEvent](db).List(ctx, nil,
		repository.Where("notification_id = ?", notificationID),
		repository.OrderBy("start_time ASC"),
	)
}

func (r *repo) FindBootstrapEvent(ctx context.Context, db *gorm.DB, buildArn string) (*domain.BuildEvent, error) {
	return repository.For[domain.BuildEvent](db).First(ctx, &domain.BuildEvent{
		BuildArn: buildArn,
		Name:     domain.BuildEventSentToBuild,
		Status:   domain.BuildEventStarted,
	})
}

func (r *repo) AppendBuildEvents(ctx context.Context, db *gorm.DB, events []*domain.BuildEvent) error {
	return repository.For[domain.BuildEvent](db).Append(ctx, events...)
}

func (r *repo) FindLatestDeployment(ctx context.Context, db *gorm.DB, projectHash, environment string) (*domain.ProjectDeployment, error) {
	return repository.For[domain.ProjectDeployment](db).First(ctx,
		&domain.ProjectDeployment{ProjectHash: projectHash, Environment: environment},
		repository.OrderBy("status_change_time DESC"),
	)
}

func (r *repo) HasDeploymentForNotification(ctx context.Context, db *gorm.DB, notificationID string) (bool, error) {
	return repository.For[domain.ProjectDeployment](db).Exists(ctx, nil,
		repository.Where("notification_id = ?", notificationID),
	)
}

func (r *repo) AppendProjectDeployment(ctx context.Context, db *gorm.DB, deployment *domain.ProjectDeployment) error {
	return repository.For[domain.ProjectDeployment](db).Append(ctx, deployment)
}
