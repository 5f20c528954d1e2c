package rbac

import (
	"context"
	"log/slog"

	"github.com/meridian-hq/meridian/internal/observability"
)

// Service is the authorization engine: a stateless decision function over the
// assignment ledger. Every entry point is read-only, safe for concurrent use,
// and resolves to deny on any internal failure. The engine never returns an
// error past its boundary.
type Service struct {
	store   Store
	cache   *Cache
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService constructs the engine. Cache and metrics may be nil.
func NewService(store Store, cache *Cache, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger, metrics: metrics}
}

// Can decides whether the user may perform the checked action, optionally
// confined to one tenant. Decision order: platform super admin short-circuit,
// sentinel-all grant, then exact (resource, action, scope) match.
func (s *Service) Can(ctx context.Context, userID int64, tenantID *int64, check Check) bool {
	allowed, err := s.decide(ctx, userID, tenantID, check)
	if err != nil {
		s.logger.Error("authorization lookup failed, denying",
			slog.Int64("user_id", userID), slog.Any("error", err))
		allowed = false
	}
	s.metrics.ObserveAuthzDecision(allowed)
	return allowed
}

// IsSuperAdmin reports whether the user holds an ACTIVE SYSTEM-role assignment
// in the CORE tenant carrying the sentinel permission.
func (s *Service) IsSuperAdmin(ctx context.Context, userID int64) bool {
	held, err := s.store.HoldsPlatformRole(ctx, userID)
	if err != nil {
		s.logger.Error("super admin lookup failed, denying",
			slog.Int64("user_id", userID), slog.Any("error", err))
		return false
	}
	return held
}

// CanAccessTenant requires membership in the specific tenant plus a satisfied
// check against that membership's role permissions. Super admins bypass both.
func (s *Service) CanAccessTenant(ctx context.Context, userID, tenantID int64, check Check) bool {
	if s.IsSuperAdmin(ctx, userID) {
		s.metrics.ObserveAuthzDecision(true)
		return true
	}
	member, err := s.store.HasActiveAssignment(ctx, userID, tenantID)
	if err != nil {
		s.logger.Error("tenant membership lookup failed, denying",
			slog.Int64("user_id", userID), slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		s.metrics.ObserveAuthzDecision(false)
		return false
	}
	if !member {
		s.metrics.ObserveAuthzDecision(false)
		return false
	}
	return s.Can(ctx, userID, &tenantID, check)
}

// HasAdminAccess is the legacy coarse gate: super admin, or a system-wide
// users:write grant.
func (s *Service) HasAdminAccess(ctx context.Context, userID int64) bool {
	if s.IsSuperAdmin(ctx, userID) {
		return true
	}
	return s.Can(ctx, userID, nil, Check{Resource: "users", Action: "write", Scope: ScopeAll})
}

// InvalidateUser drops cached permission sets after an assignment or grant
// change touching the user.
func (s *Service) InvalidateUser(ctx context.Context, userID int64) {
	s.cache.Invalidate(ctx, userID)
}

func (s *Service) decide(ctx context.Context, userID int64, tenantID *int64, check Check) (bool, error) {
	held, err := s.store.HoldsPlatformRole(ctx, userID)
	if err != nil {
		return false, err
	}
	if held {
		return true, nil
	}

	perms, err := s.permissions(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Name == PermissionAll {
			return true, nil
		}
	}
	for _, p := range perms {
		if check.Satisfies(p) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) permissions(ctx context.Context, userID int64, tenantID *int64) ([]Permission, error) {
	if perms, ok := s.cache.Get(ctx, userID, tenantID); ok {
		return perms, nil
	}
	perms, err := s.store.ActivePermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, userID, tenantID, perms)
	return perms, nil
}
