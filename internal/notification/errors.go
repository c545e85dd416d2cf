package notification

import (
	"errors"

	buildeventdomain "github.com/xtages/console/internal/buildevent/domain"
	"github.com/xtages/console/internal/dedup"
	deploymentdomain "github.com/xtages/console/internal/deployment/domain"
	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
	notificationdomain "github.com/xtages/console/internal/notification/domain"
)

var permanentErrors = []error{
	notificationdomain.ErrMalformedEnvelope,
	buildeventdomain.ErrMalformedNotification,
	buildeventdomain.ErrMissingBootstrapContext,
	deploymentdomain.ErrMalformedNotification,
	deploymentdomain.ErrUnknownProjectDeploymentStatus,
	ledgerdomain.ErrProjectNotFound,
	dedup.ErrEmptyNotificationID,
}

// IsPermanent reports whether redelivering the notification cannot succeed.
func IsPermanent(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

const (
	outcomeProcessed = "processed"
	outcomeRejected  = "rejected"
	outcomeRetry     = "retry"
	outcomeInFlight  = "in_flight"
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeProcessed
	case errors.Is(err, dedup.ErrNotificationInFlight):
		return outcomeInFlight
	case IsPermanent(err):
		return outcomeRejected
	default:
		return outcomeRetry
	}
}
