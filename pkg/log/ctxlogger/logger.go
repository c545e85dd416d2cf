// Package ctxlogger derives zap loggers from a context, so that everything logged
// while serving one request or notification carries the same identifying fields.
package ctxlogger

import (
	"context"

	"github.com/xtages/console/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type fieldsKey struct{}

// With returns ctx carrying fields that every logger derived from it will include.
func With(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(fieldsKey{}).([]zap.Field)
	merged := make([]zap.Field, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// WithNotification tags ctx with the queue and id of the notification being handled.
func WithNotification(ctx context.Context, queue, notificationID string) context.Context {
	return With(ctx, zap.String("queue", queue), zap.String("notification_id", notificationID))
}

// WithOrganization tags ctx with the organization a request acts for.
func WithOrganization(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return With(ctx, zap.String("organization", name))
}

// FromContext is WithContext on the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds the correlation id, the active span and any fields attached
// with With to base.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 6)
	if id := correlation.FromContext(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if extra, ok := ctx.Value(fieldsKey{}).([]zap.Field); ok {
		fields = append(fields, extra...)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
