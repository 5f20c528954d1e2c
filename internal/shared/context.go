package shared

import "context"

type sessionContextKey struct{}
type principalContextKey struct{}
type tenantContextKey struct{}

// Principal identifies the authenticated actor for the current request.
type Principal struct {
	UserID    int64
	Email     string
	SessionID string
}

// TenantContext is the effective tenant scope resolved for a request.
// OriginalTenantID preserves a super admin's home tenant while they act as
// another tenant.
type TenantContext struct {
	ID               int64
	IsSuperAdmin     bool
	OriginalTenantID int64
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithPrincipal stores the authenticated principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context, nil when the
// request is unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

// ContextWithTenant stores the resolved tenant context.
func ContextWithTenant(ctx context.Context, tc *TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// TenantFromContext extracts the tenant context, nil when isolation was not
// applied (exempt paths).
func TenantFromContext(ctx context.Context) *TenantContext {
	tc, _ := ctx.Value(tenantContextKey{}).(*TenantContext)
	return tc
}
