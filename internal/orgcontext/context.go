package orgcontext

import (
	"context"
	"strings"
)

// OrgContextKey is the request context key for the active organization name.
type OrgContextKey struct{}

// WithOrganizationName stores the organization name in the context.
func WithOrganizationName(ctx context.Context, name string) context.Context {
	name = strings.TrimSpace(name)
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, OrgContextKey{}, name)
}

// OrganizationNameFromContext returns the organization name from context, if set.
func OrganizationNameFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	name, ok := ctx.Value(OrgContextKey{}).(string)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
