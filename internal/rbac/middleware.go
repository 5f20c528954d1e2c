package rbac

import (
	"log/slog"
	"net/http"

	"github.com/meridian-hq/meridian/internal/platform/httpx"
	"github.com/meridian-hq/meridian/internal/shared"
)

// Middleware wires authorization checks into HTTP handlers. It reads the
// principal and the resolved tenant context from the request context; the
// tenant isolation filter must run earlier in the chain.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the current user satisfies the check within the effective
// tenant context.
func (m Middleware) Require(check Check) func(http.Handler) http.Handler {
	return m.RequireAny(check)
}

// RequireAny ensures the current user satisfies at least one of the checks.
func (m Middleware) RequireAny(checks ...Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(checks) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			tenantID := effectiveTenantFilter(r)
			for _, check := range checks {
				if m.Service.Can(r.Context(), principal.UserID, tenantID, check) {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.RespondError(w, shared.Forbiddenf("missing required permission"))
		})
	}
}

// effectiveTenantFilter narrows the decision to the request's tenant context.
// Super admins are evaluated globally; the engine's own bypass applies.
func effectiveTenantFilter(r *http.Request) *int64 {
	tc := shared.TenantFromContext(r.Context())
	if tc == nil || tc.IsSuperAdmin || tc.ID == 0 {
		return nil
	}
	id := tc.ID
	return &id
}
