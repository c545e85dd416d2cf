package domain

import (
	"context"
	"errors"
)

// Service appends project deployment statuses from ECS notifications.
type Service interface {
	HandleSteadyState(ctx context.Context, notificationID string, payload []byte) error
	HandleScaleIn(ctx context.Context, notificationID string, payload []byte) error
	HandleDeployCompleted(ctx context.Context, notificationID string, payload []byte) error
}

// ServiceDescriber reads the live state of an ECS service. A service that does
// not exist yields nil without error.
type ServiceDescriber interface {
	DescribeService(ctx context.Context, serviceName, clusterName string) (*ServiceState, error)
}

var (
	ErrMalformedNotification          = errors.New("malformed_ecs_notification")
	ErrUnknownProjectDeploymentStatus = errors.New("unknown_project_deployment_status")
)
