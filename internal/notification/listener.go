package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	buildeventdomain "github.com/xtages/console/internal/buildevent/domain"
	"github.com/xtages/console/internal/config"
	deploymentdomain "github.com/xtages/console/internal/deployment/domain"
	notificationdomain "github.com/xtages/console/internal/notification/domain"
	obsmetrics "github.com/xtages/console/internal/observability/metrics"
	"github.com/xtages/console/pkg/log/ctxlogger"
	"github.com/xtages/console/pkg/telemetry"
	"github.com/xtages/console/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	idleInterval   = 5 * time.Second
	receiveBackoff = time.Second
	deleteTimeout  = 5 * time.Second
)

// Handler applies one notification payload. notificationID is stable across
// redeliveries of the same notification.
type Handler func(ctx context.Context, notificationID string, payload []byte) error

type Params struct {
	fx.In

	Log         *zap.Logger
	Listeners   *config.ListenerConfigHolder
	Queue       notificationdomain.Queue
	BuildEvents buildeventdomain.Service
	Deployments deploymentdomain.Service
	Telemetry   *telemetry.Metrics  `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

// Listener long-polls every configured queue and dispatches each message to
// the handler registered for that queue.
type Listener struct {
	log        *zap.Logger
	listeners  *config.ListenerConfigHolder
	queue      notificationdomain.Queue
	handlers   map[string]Handler
	telemetry  *telemetry.Metrics
	obsMetrics *obsmetrics.Metrics
	tracer     trace.Tracer
	idle       time.Duration
}

func New(p Params) *Listener {
	return &Listener{
		log:       p.Log.Named("notification.listener"),
		listeners: p.Listeners,
		queue:     p.Queue,
		handlers: map[string]Handler{
			config.QueueBuildUpdates:      p.BuildEvents.HandleNotification,
			config.QueueECSSteadyState:    p.Deployments.HandleSteadyState,
			config.QueueScaleInUpdates:    p.Deployments.HandleScaleIn,
			config.QueueDeploymentUpdates: p.Deployments.HandleDeployCompleted,
		},
		telemetry:  p.Telemetry,
		obsMetrics: p.ObsMetrics,
		tracer:     otel.Tracer("console/notification"),
		idle:       idleInterval,
	}
}

// Run polls every queue that has a handler until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for name := range l.handlers {
		g.Go(func() error {
			l.pollForever(ctx, name)
			return nil
		})
	}
	return g.Wait()
}

func (l *Listener) pollForever(ctx context.Context, name string) {
	log := l.log.With(zap.String("queue", name))
	log.Info("queue listener started")
	defer log.Info("queue listener stopped")

	for ctx.Err() == nil {
		q, ok := l.listeners.Get().Queue(name)
		if !ok || !q.Enabled || q.URL == "" {
			sleep(ctx, l.idle)
			continue
		}
		if err := l.PollOnce(ctx, q); err != nil && ctx.Err() == nil {
			log.Warn("queue receive failed", zap.Error(err))
			sleep(ctx, receiveBackoff)
		}
	}
}

// PollOnce receives one batch from q and handles it with at most
// q.Concurrency handlers running at a time.
func (l *Listener) PollOnce(ctx context.Context, q config.QueueConfig) error {
	handler, ok := l.handlers[q.Name]
	if !ok {
		return fmt.Errorf("no handler for queue %s", q.Name)
	}

	messages, err := l.queue.Receive(ctx, q.URL, notificationdomain.ReceiveOptions{
		MaxMessages:       q.MaxMessages,
		WaitSeconds:       q.WaitSeconds,
		VisibilityTimeout: q.VisibilityTimeout,
	})
	if err != nil {
		l.telemetry.RecordReceiveError(q.Name)
		return err
	}

	var g errgroup.Group
	g.SetLimit(max(q.Concurrency, 1))
	for _, msg := range messages {
		g.Go(func() error {
			l.process(ctx, q, handler, msg)
			return nil
		})
	}
	return g.Wait()
}

func (l *Listener) process(parent context.Context, q config.QueueConfig, handler Handler, msg notificationdomain.Message) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, q.HandlerTimeout)
	defer cancel()

	notificationID := msg.ID
	env, err := notificationdomain.ParseEnvelope(msg.Body)
	if err == nil && env.MessageID != "" {
		notificationID = env.MessageID
	}

	ctx, _ = correlation.ForNotification(ctx, notificationID)
	ctx = ctxlogger.WithNotification(ctx, q.Name, notificationID)
	ctx, span := l.tracer.Start(ctx, "notification.handle", trace.WithAttributes(
		attribute.String("queue", q.Name),
		attribute.String("notification_id", notificationID),
	))
	defer span.End()

	if err == nil {
		err = l.invoke(ctx, handler, notificationID, []byte(env.Message))
	}

	outcome := outcomeOf(err)
	l.telemetry.RecordHandler(q.Name, outcome, time.Since(start))
	l.obsMetrics.RecordNotification(ctx, q.Name, outcome)

	log := ctxlogger.WithContext(ctx, l.log)
	switch outcome {
	case outcomeProcessed:
		deleteCtx, cancelDelete := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
		defer cancelDelete()
		if err := l.queue.Delete(deleteCtx, q.URL, msg.ReceiptHandle); err != nil {
			log.Warn("failed to delete processed notification", zap.Error(err))
			return
		}
		log.Debug("notification processed", zap.Duration("duration", time.Since(start)))
	case outcomeInFlight:
		log.Warn("notification is being processed elsewhere, leaving it queued")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Error("notification handling failed",
			zap.String("outcome", outcome),
			zap.Bool("permanent", outcome == outcomeRejected),
			zap.Error(err),
		)
	}
}

func (l *Listener) invoke(ctx context.Context, handler Handler, notificationID string, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	err = handler(ctx, notificationID, payload)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("handler timed out: %w", err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
