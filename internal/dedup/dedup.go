package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ledgerdomain "github.com/xtages/console/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	keyNotificationLock = "console:notification:%s"
	defaultLockTTL      = 2 * time.Minute
)

var (
	ErrEmptyNotificationID  = errors.New("empty_notification_id")
	ErrNotificationInFlight = errors.New("notification_in_flight")
)

type Params struct {
	fx.In

	Ledger ledgerdomain.Repository
	Log    *zap.Logger
	Locker *Locker `optional:"true"`
}

// Deduplicator recognizes notifications whose effects are already in the ledger.
// Checks for different notification ids never contend with each other.
type Deduplicator struct {
	ledger  ledgerdomain.Repository
	log     *zap.Logger
	locker  *Locker
	lockTTL time.Duration
}

func New(p Params) *Deduplicator {
	return &Deduplicator{
		ledger:  p.Ledger,
		log:     p.Log.Named("dedup"),
		locker:  p.Locker,
		lockTTL: defaultLockTTL,
	}
}

// AlreadyProcessed reports whether build events were recorded for notificationID.
func (d *Deduplicator) AlreadyProcessed(ctx context.Context, db *gorm.DB, notificationID string) (bool, error) {
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return false, ErrEmptyNotificationID
	}
	events, err := d.ledger.FindBuildEventsByNotificationID(ctx, db, notificationID)
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

// DeploymentAlreadyRecorded reports whether a deployment status was appended for notificationID.
func (d *Deduplicator) DeploymentAlreadyRecorded(ctx context.Context, db *gorm.DB, notificationID string) (bool, error) {
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return false, ErrEmptyNotificationID
	}
	return d.ledger.HasDeploymentForNotification(ctx, db, notificationID)
}

// Guard runs fn while holding the in-flight lock for notificationID, so a
// concurrent redelivery of the same notification backs off with
// ErrNotificationInFlight. Without redis fn simply runs.
func (d *Deduplicator) Guard(ctx context.Context, notificationID string, fn func(ctx context.Context) error) error {
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return ErrEmptyNotificationID
	}
	if d.locker == nil {
		return fn(ctx)
	}

	key := fmt.Sprintf(keyNotificationLock, notificationID)
	token, ok, err := d.locker.TryLock(ctx, key, d.lockTTL)
	if err != nil {
		return fmt.Errorf("lock notification %s: %w", notificationID, err)
	}
	if !ok {
		return ErrNotificationInFlight
	}
	defer func() {
		if err := d.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			d.log.Warn("failed to release notification lock", zap.String("notification_id", notificationID), zap.Error(err))
		}
	}()

	return fn(ctx)
}
