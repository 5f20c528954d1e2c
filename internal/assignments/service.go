package assignments

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/meridian-hq/meridian/internal/audit"
	"github.com/meridian-hq/meridian/internal/roles"
	"github.com/meridian-hq/meridian/internal/shared"
)

// RoleDirectory looks up the role being assigned.
type RoleDirectory interface {
	Get(ctx context.Context, id int64) (roles.Role, error)
}

// Auditor records activity entries for ledger mutations.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Invalidator drops cached permission sets for a user.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// Service manages the assignment ledger.
type Service struct {
	repo        Repository
	roles       RoleDirectory
	logger      *slog.Logger
	auditor     Auditor
	invalidator Invalidator
}

// NewService builds Service instance. Auditor and invalidator may be nil.
func NewService(repo Repository, roleDir RoleDirectory, logger *slog.Logger, auditor Auditor, invalidator Invalidator) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roleDir, logger: logger, auditor: auditor, invalidator: invalidator}
}

// Assign grants a role to a user within a tenant. A duplicate ACTIVE binding
// for the same (user, tenant, role) is a conflict. When the user has no primary
// assignment yet, the new one becomes primary; when MakePrimary is set, any
// existing primary is demoted in the same transaction.
func (s *Service) Assign(ctx context.Context, actor shared.Actor, a Assignment, makePrimary bool) (Assignment, error) {
	role, err := s.roles.Get(ctx, a.RoleID)
	if err != nil {
		return Assignment{}, err
	}
	if !role.IsActive || role.DeletedAt != nil {
		return Assignment{}, shared.Preconditionf("role %q is not assignable", role.Name)
	}
	if role.IsSystem && !actor.IsSuperAdmin {
		return Assignment{}, shared.Forbiddenf("system roles require platform administrator")
	}
	if !role.IsSystem && a.TenantID == nil {
		return Assignment{}, shared.Preconditionf("tenant required for non-system role")
	}
	if role.TenantID != nil && (a.TenantID == nil || *a.TenantID != *role.TenantID) {
		return Assignment{}, shared.Preconditionf("role %q belongs to another tenant", role.Name)
	}

	if a.Status == "" {
		a.Status = StatusActive
	}
	assignedBy := actor.ID
	a.AssignedBy = &assignedBy

	var created Assignment
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		dup, err := tx.HasActiveDuplicate(ctx, a.UserID, a.TenantID, a.RoleID)
		if err != nil {
			return err
		}
		if dup {
			return shared.Conflictf("user %d already holds role %q in this tenant", a.UserID, role.Name)
		}
		primary := makePrimary
		if !primary && a.TenantID != nil && a.Status == StatusActive {
			// First tenant membership becomes the default tenant.
			_, has, err := s.repo.PrimaryTenantID(ctx, a.UserID)
			if err != nil {
				return err
			}
			primary = !has
		}
		if primary {
			if err := tx.ClearPrimary(ctx, a.UserID); err != nil {
				return err
			}
		}
		a.IsPrimary = primary && a.TenantID != nil
		created, err = tx.Insert(ctx, a)
		return err
	})
	if err != nil {
		return Assignment{}, err
	}
	s.invalidate(ctx, created.UserID)
	s.record(ctx, actor.ID, "assignment.create", created.ID, map[string]any{
		"user_id": created.UserID, "role_id": created.RoleID,
	})
	return created, nil
}

// Get fetches an assignment by ID.
func (s *Service) Get(ctx context.Context, id int64) (Assignment, error) {
	return s.repo.GetByID(ctx, id)
}

// ListForUser returns the user's non-deleted assignments.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]Assignment, error) {
	return s.repo.ListForUser(ctx, userID)
}

// ListForTenant returns a page of the tenant's non-deleted assignments.
func (s *Service) ListForTenant(ctx context.Context, tenantID int64, p shared.Pagination) ([]Assignment, error) {
	return s.repo.ListForTenant(ctx, tenantID, p)
}

// SetPrimary promotes one assignment to primary, demoting any other in the
// same transaction so at most one primary exists per user.
func (s *Service) SetPrimary(ctx context.Context, actor shared.Actor, id int64) error {
	var userID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.DeletedAt != nil {
			return shared.Preconditionf("assignment %d is trashed", id)
		}
		if a.Status != StatusActive {
			return shared.Preconditionf("assignment %d is not active", id)
		}
		if a.TenantID == nil {
			return shared.Preconditionf("platform assignment cannot be primary")
		}
		userID = a.UserID
		if err := tx.ClearPrimary(ctx, a.UserID); err != nil {
			return err
		}
		return tx.SetPrimary(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor.ID, "assignment.set_primary", id, map[string]any{"user_id": userID})
	return nil
}

// SetStatus flips an assignment between ACTIVE and INACTIVE.
func (s *Service) SetStatus(ctx context.Context, actor shared.Actor, id int64, status Status) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.DeletedAt != nil {
		return shared.Preconditionf("assignment %d is trashed", id)
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return err
	}
	s.invalidate(ctx, a.UserID)
	s.record(ctx, actor.ID, "assignment.set_status", id, map[string]any{"status": string(status)})
	return nil
}

// Revoke trashes an assignment. The row stays for the audit trail; the binding
// stops granting anything immediately.
func (s *Service) Revoke(ctx context.Context, actor shared.Actor, id int64) error {
	var userID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.DeletedAt != nil {
			return shared.Preconditionf("assignment %d already trashed", id)
		}
		userID = a.UserID
		return tx.SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	s.record(ctx, actor.ID, "assignment.revoke", id, map[string]any{"user_id": userID})
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(ctx, userID)
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, assignmentID int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	entry := audit.Entry{
		ActorID:  actorID,
		Action:   action,
		Entity:   "assignment",
		EntityID: strconv.FormatInt(assignmentID, 10),
		Meta:     meta,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
