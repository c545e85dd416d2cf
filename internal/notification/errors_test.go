package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	buildeventdomain "github.com/xtages/console/internal/buildevent/domain"
	"github.com/xtages/console/internal/dedup"
	deploymentdomain "github.com/xtages/console/internal/deployment/domain"
	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
)

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(fmt.Errorf("%w: bad", buildeventdomain.ErrMalformedNotification)))
	assert.True(t, IsPermanent(buildeventdomain.ErrMissingBootstrapContext))
	assert.True(t, IsPermanent(fmt.Errorf("%w: running=2", deploymentdomain.ErrUnknownProjectDeploymentStatus)))
	assert.True(t, IsPermanent(fmt.Errorf("%w: abc", ledgerdomain.ErrProjectNotFound)))

	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(errors.New("connection reset")))
	assert.False(t, IsPermanent(context.DeadlineExceeded))
	assert.False(t, IsPermanent(dedup.ErrNotificationInFlight))
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "processed", outcomeOf(nil))
	assert.Equal(t, "in_flight", outcomeOf(dedup.ErrNotificationInFlight))
	assert.Equal(t, "rejected", outcomeOf(deploymentdomain.ErrMalformedNotification))
	assert.Equal(t, "retry", outcomeOf(errors.New("db down")))
}
