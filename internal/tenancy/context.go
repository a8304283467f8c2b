// Package tenancy carries the active tenant id through the request's
// context. Every tenant-scoped data operation resolves the tenant from
// here; a missing tenant where one is required is a programmer error,
// never a silently unfiltered query.
package tenancy

import (
	"context"
	"errors"
)

type ctxKey string

const tenantKey ctxKey = "psicare.tenant_id"

// ErrMissingTenant signals that tenant-scoped code ran outside a tenant
// scope. This is a wiring bug, not a business error: callers must not
// retry and HTTP surfaces map it to a 500.
var ErrMissingTenant = errors.New("tenancy: no tenant id in context")

// ErrTenantMismatch signals that an explicitly supplied tenant id
// disagrees with the ambient one.
var ErrTenantMismatch = errors.New("tenancy: explicit tenant id does not match context")

// WithTenantID stores the tenant id in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantIDFromContext extracts the tenant id if present.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(tenantKey)
	if val == nil {
		return "", false
	}
	tenantID, ok := val.(string)
	return tenantID, ok && tenantID != ""
}

// RequireTenantID returns the ambient tenant id or ErrMissingTenant.
func RequireTenantID(ctx context.Context) (string, error) {
	tenantID, ok := TenantIDFromContext(ctx)
	if !ok {
		return "", ErrMissingTenant
	}
	return tenantID, nil
}

// Verify checks an explicitly supplied tenant id against the ambient
// one. Service entry points take the tenant both ways as defense in
// depth; a disagreement means a caller bug.
func Verify(ctx context.Context, tenantID string) error {
	ambient, err := RequireTenantID(ctx)
	if err != nil {
		return err
	}
	if tenantID != "" && tenantID != ambient {
		return ErrTenantMismatch
	}
	return nil
}
