package tenancy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/meridian-hq/meridian/internal/observability"
	"github.com/meridian-hq/meridian/internal/platform/httpx"
	"github.com/meridian-hq/meridian/internal/shared"
)

// TenantHeader carries the requested tenant on inbound requests.
const TenantHeader = "X-Tenant-Id"

// Authorizer answers the privileged-principal question for the filter.
type Authorizer interface {
	IsSuperAdmin(ctx context.Context, userID int64) bool
}

// MembershipSource reads the assignment ledger for isolation decisions.
type MembershipSource interface {
	ActiveTenantIDs(ctx context.Context, userID int64) ([]int64, error)
	// PrimaryTenantID returns the tenant of the user's isPrimary assignment.
	// Primary is the single source of truth for the default tenant; absent a
	// primary, the caller must select a tenant explicitly.
	PrimaryTenantID(ctx context.Context, userID int64) (int64, bool, error)
}

// TenantDirectory verifies tenant existence for super-admin impersonation.
type TenantDirectory interface {
	GetByID(ctx context.Context, id int64) (Tenant, error)
}

// IsolationFilter derives the effective tenant context per request and
// rejects requests that would escape it.
type IsolationFilter struct {
	tenants TenantDirectory
	members MembershipSource
	authz   Authorizer
	logger  *slog.Logger
	metrics *observability.Metrics
	exempt  []string
}

// NewIsolationFilter constructs the filter. Exempt prefixes (auth endpoints,
// health checks) bypass it entirely.
func NewIsolationFilter(tenants TenantDirectory, members MembershipSource, authz Authorizer, logger *slog.Logger, metrics *observability.Metrics, exempt []string) *IsolationFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &IsolationFilter{
		tenants: tenants,
		members: members,
		authz:   authz,
		logger:  logger,
		metrics: metrics,
		exempt:  exempt,
	}
}

// Middleware resolves the tenant context and stores it for downstream
// handlers, or terminates the request with 401/403/404.
func (f *IsolationFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range f.exempt {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		principal := shared.PrincipalFromContext(r.Context())
		if principal == nil {
			f.reject(w, "unauthenticated", shared.ErrUnauthenticated)
			return
		}

		tc, err := f.Resolve(r.Context(), principal.UserID, r.Header.Get(TenantHeader))
		if err != nil {
			f.reject(w, rejectReason(err), err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithTenant(r.Context(), tc)))
	})
}

// Resolve computes the effective tenant context for a user and an optional
// requested tenant (raw header value).
func (f *IsolationFilter) Resolve(ctx context.Context, userID int64, requested string) (*shared.TenantContext, error) {
	requested = strings.TrimSpace(requested)

	if f.authz.IsSuperAdmin(ctx, userID) {
		home, ok, err := f.members.PrimaryTenantID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if requested == "" {
			if !ok {
				return nil, shared.Forbiddenf("no primary tenant, explicit tenant selection required")
			}
			return &shared.TenantContext{ID: home, IsSuperAdmin: true, OriginalTenantID: home}, nil
		}
		requestedID, err := parseTenantID(requested)
		if err != nil {
			return nil, err
		}
		if _, err := f.tenants.GetByID(ctx, requestedID); err != nil {
			return nil, err
		}
		// A super admin may act as any tenant; the home tenant is preserved.
		return &shared.TenantContext{ID: requestedID, IsSuperAdmin: true, OriginalTenantID: home}, nil
	}

	tenantIDs, err := f.members.ActiveTenantIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(tenantIDs) == 0 {
		return nil, shared.Forbiddenf("no tenant assignment")
	}

	if requested == "" {
		primary, ok, err := f.members.PrimaryTenantID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, shared.Forbiddenf("no primary tenant, explicit tenant selection required")
		}
		return &shared.TenantContext{ID: primary}, nil
	}

	requestedID, err := parseTenantID(requested)
	if err != nil {
		return nil, err
	}
	for _, id := range tenantIDs {
		if id == requestedID {
			return &shared.TenantContext{ID: requestedID}, nil
		}
	}
	return nil, shared.Forbiddenf("cross-tenant access")
}

func (f *IsolationFilter) reject(w http.ResponseWriter, reason string, err error) {
	f.metrics.ObserveIsolationRejection(reason)
	httpx.RespondError(w, err)
}

func parseTenantID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NotFoundf("tenant %q", raw)
	}
	return id, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, shared.ErrNotFound):
		return "tenant_not_found"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
