package domain

import (
	"context"
	"errors"

	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
)

// Service reconstructs build history from CodeBuild notifications.
type Service interface {
	// HandleNotification applies one CodeBuild notification. Redeliveries are no-ops.
	HandleNotification(ctx context.Context, notificationID string, payload []byte) error
	// RecordBuildStarted stores a new build and the bootstrap event later notifications are enriched from.
	RecordBuildStarted(ctx context.Context, start BuildStart) (*ledgerdomain.Build, error)
}

var (
	ErrMalformedNotification   = errors.New("malformed_codebuild_notification")
	ErrMissingBootstrapContext = errors.New("missing_bootstrap_context")
	ErrInvalidBuildStart       = errors.New("invalid_build_start")
)
