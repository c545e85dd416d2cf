package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus is the standing of an organization with the payment processor.
type SubscriptionStatus string

const (
	SubscriptionStatusUnconfirmed         SubscriptionStatus = "UNCONFIRMED"
	SubscriptionStatusActive              SubscriptionStatus = "ACTIVE"
	SubscriptionStatusSuspended           SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusPendingCancellation SubscriptionStatus = "PENDING_CANCELLATION"
	SubscriptionStatusCancelled           SubscriptionStatus = "CANCELLED"
)

// UnlimitedQuota marks a plan limit that predates the quota dimension.
const UnlimitedQuota int64 = -1

// Build event names and statuses written by the console itself.
const (
	BuildEventSentToBuild = "SENT_TO_BUILD"
	BuildEventStarted     = "STARTED"
)

const (
	BuildStatusInProgress = "IN_PROGRESS"
	BuildStatusSucceeded  = "SUCCEEDED"
	BuildStatusFailed     = "FAILED"
	BuildStatusUnknown    = "UNKNOWN"
)

type Organization struct {
	ID                 snowflake.ID       `gorm:"primaryKey" json:"id"`
	Name               string             `gorm:"column:name;uniqueIndex" json:"name"`
	Hash               string             `gorm:"column:hash;uniqueIndex" json:"hash"`
	SubscriptionStatus SubscriptionStatus `gorm:"column:subscription_status" json:"subscription_status"`
	CreatedAt          time.Time          `gorm:"column:created_at" json:"created_at"`
}

func (Organization) TableName() string { return "organizations" }

type Plan struct {
	ID                          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name                        string       `gorm:"column:name" json:"name"`
	LimitProjects               int64        `gorm:"column:limit_projects" json:"limit_projects"`
	LimitMonthlyBuildMinutes    int64        `gorm:"column:limit_monthly_build_minutes" json:"limit_monthly_build_minutes"`
	LimitMonthlyDataTransferGbs int64        `gorm:"column:limit_monthly_data_transfer_gbs" json:"limit_monthly_data_transfer_gbs"`
	LimitDBStorageGbs           int64        `gorm:"column:limit_db_storage_gbs" json:"limit_db_storage_gbs"`
}

func (Plan) TableName() string { return "plans" }

// OrganizationPlan is one row of an organization's subscription history.
type OrganizationPlan struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationName string       `gorm:"column:organization_name;index" json:"organization_name"`
	PlanID           snowflake.ID `gorm:"column:plan_id" json:"plan_id"`
	StartTime        time.Time    `gorm:"column:start_time" json:"start_time"`
	EndTime          *time.Time   `gorm:"column:end_time" json:"end_time,omitempty"`
}

func (OrganizationPlan) TableName() string { return "organization_plans" }

// CurrentPlan is the plan an organization is subscribed to right now.
type CurrentPlan struct {
	Plan      Plan
	StartTime time.Time
}

// AnchorDay is the day of month billing cycles restart on.
func (c CurrentPlan) AnchorDay() int {
	return c.StartTime.UTC().Day()
}

type Credit struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationName string       `gorm:"column:organization_name;index" json:"organization_name"`
	ResourceType     string       `gorm:"column:resource_type" json:"resource_type"`
	Amount           int64        `gorm:"column:amount" json:"amount"`
	CreatedAt        time.Time    `gorm:"column:created_at" json:"created_at"`
	ExpiresAt        *time.Time   `gorm:"column:expires_at" json:"expires_at,omitempty"`
}

func (Credit) TableName() string { return "credits" }

// Active reports whether the credit counts towards limits at now.
func (c Credit) Active(now time.Time) bool {
	if c.CreatedAt.After(now) {
		return false
	}
	return c.ExpiresAt == nil || !c.ExpiresAt.Before(now)
}

type Project struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationName string       `gorm:"column:organization_name;index" json:"organization_name"`
	Name             string       `gorm:"column:name" json:"name"`
	Hash             string       `gorm:"column:hash;uniqueIndex" json:"hash"`
	CreatedAt        time.Time    `gorm:"column:created_at" json:"created_at"`
}

func (Project) TableName() string { return "projects" }

type Build struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationName string       `gorm:"column:organization_name;index" json:"organization_name"`
	ProjectID        snowflake.ID `gorm:"column:project_id" json:"project_id"`
	UserID           int64        `gorm:"column:user_id" json:"user_id"`
	Environment      string       `gorm:"column:environment" json:"environment"`
	CommitHash       string       `gorm:"column:commit_hash" json:"commit_hash"`
	BuildArn         *string      `gorm:"column:build_arn;uniqueIndex" json:"build_arn,omitempty"`
	Status           string       `gorm:"column:status" json:"status"`
	StartTime        time.Time    `gorm:"column:start_time" json:"start_time"`
	EndTime          *time.Time   `gorm:"column:end_time" json:"end_time,omitempty"`
}

func (Build) TableName() string { return "builds" }

type BuildEvent struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	NotificationID   *string      `gorm:"column:notification_id;uniqueIndex:ux_build_events_notification_name" json:"notification_id,omitempty"`
	BuildArn         string       `gorm:"column:build_arn;index" json:"build_arn"`
	BuildID          snowflake.ID `gorm:"column:build_id" json:"build_id"`
	OrganizationName string       `gorm:"column:organization_name" json:"organization_name"`
	UserID           int64        `gorm:"column:user_id" json:"user_id"`
	ProjectID        snowflake.ID `gorm:"column:project_id" json:"project_id"`
	Environment      string       `gorm:"column:environment" json:"environment"`
	CommitHash       string       `gorm:"column:commit_hash" json:"commit_hash"`
	Name             string       `gorm:"column:name;uniqueIndex:ux_build_events_notification_name" json:"name"`
	Status           string       `gorm:"column:status" json:"status"`
	Message          *string      `gorm:"column:message" json:"message,omitempty"`
	StartTime        time.Time    `gorm:"column:start_time" json:"start_time"`
	EndTime          time.Time    `gorm:"column:end_time" json:"end_time"`
}

func (BuildEvent) TableName() string { return "build_events" }

type ProjectDeployment struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	ProjectID        snowflake.ID      `gorm:"column:project_id" json:"project_id"`
	ProjectHash      string            `gorm:"column:project_hash;index:ix_project_deployments_hash_env" json:"project_hash"`
	Environment      string            `gorm:"column:environment;index:ix_project_deployments_hash_env" json:"environment"`
	BuildID          *int64            `gorm:"column:build_id" json:"build_id,omitempty"`
	Status           string            `gorm:"column:status" json:"status"`
	NotificationID   *string           `gorm:"column:notification_id;index" json:"notification_id,omitempty"`
	Metadata         datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	StatusChangeTime time.Time         `gorm:"column:status_change_time" json:"status_change_time"`
}

func (ProjectDeployment) TableName() string { return "project_deployments" }
