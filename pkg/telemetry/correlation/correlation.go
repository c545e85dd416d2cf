// Package correlation carries the id that ties together the log lines and spans
// produced for one API request or one notification delivery.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Header is the HTTP header a caller may use to supply its own correlation id.
const Header = "X-Correlation-Id"

const notificationPrefix = "ntf_"

type key struct{}

// FromContext returns the correlation id on ctx, or "" when there is none.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

// WithID returns ctx carrying id. Blank ids leave ctx untouched.
func WithID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// Ensure returns ctx with a correlation id, minting a ULID when ctx has none.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return WithID(ctx, id), id
}

// ForNotification correlates on the notification id so that every redelivery of
// the same notification logs under one id. Without a notification id it falls
// back to Ensure.
func ForNotification(ctx context.Context, notificationID string) (context.Context, string) {
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return Ensure(ctx)
	}
	id := notificationPrefix + notificationID
	return WithID(ctx, id), id
}
