package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the console ledger. Every method runs on the supplied db so the
// caller decides the transaction scope. Finders return nil without error when
// nothing matches.
type Repository interface {
	FindOrganizationByName(ctx context.Context, db *gorm.DB, name string) (*Organization, error)
	FindCurrentPlan(ctx context.Context, db *gorm.DB, orgName string, now time.Time) (*CurrentPlan, error)
	FindActiveCredits(ctx context.Context, db *gorm.DB, orgName string, now time.Time) ([]Credit, error)
	CountProjects(ctx context.Context, db *gorm.DB, orgName string) (int64, error)
	FindProjects(ctx context.Context, db *gorm.DB, orgName string) ([]Project, error)
	FindProjectByHash(ctx context.Context, db *gorm.DB, hash string) (*Project, error)

	// FindBuildsOverlapping returns builds that started or ended within [start, end].
	FindBuildsOverlapping(ctx context.Context, db *gorm.DB, orgName string, start, end time.Time) ([]Build, error)
	InsertBuild(ctx context.Context, db *gorm.DB, build *Build) error
	UpdateBuildOutcome(ctx context.Context, db *gorm.DB, buildID snowflake.ID, status string, endTime time.Time) error

	FindBuildEventsByNotificationID(ctx context.Context, db *gorm.DB, notificationID string) ([]BuildEvent, error)
	FindBootstrapEvent(ctx context.Context, db *gorm.DB, buildArn string) (*BuildEvent, error)
	AppendBuildEvents(ctx context.Context, db *gorm.DB, events []*BuildEvent) error

	FindLatestDeployment(ctx context.Context, db *gorm.DB, projectHash, environment string) (*ProjectDeployment, error)
	HasDeploymentForNotification(ctx context.Context, db *gorm.DB, notificationID string) (bool, error)
	AppendProjectDeployment(ctx context.Context, db *gorm.DB, deployment *ProjectDeployment) error
}

var (
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrProjectNotFound      = errors.New("project_not_found")
)
