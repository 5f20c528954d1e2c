package roles

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-hq/meridian/internal/audit"
	"github.com/meridian-hq/meridian/internal/lifecycle"
	"github.com/meridian-hq/meridian/internal/rbac"
	"github.com/meridian-hq/meridian/internal/shared"
)

// Auditor records activity entries for role mutations.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Invalidator drops cached permission sets after grant or assignment changes.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// Service handles role business logic and the role lifecycle.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	auditor     Auditor
	invalidator Invalidator
}

// NewService builds Service instance. Auditor and invalidator may be nil.
func NewService(repo Repository, logger *slog.Logger, auditor Auditor, invalidator Invalidator) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, auditor: auditor, invalidator: invalidator}
}

// Create inserts a new role. SYSTEM roles are global and reserved for
// platform operators; TENANT and CUSTOM roles bind to their owning tenant or
// stay shared when unbound.
func (s *Service) Create(ctx context.Context, actor shared.Actor, role Role) (Role, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return Role{}, shared.Preconditionf("role name required")
	}
	if role.DisplayName == "" {
		role.DisplayName = role.Name
	}
	if role.Level == "" {
		role.Level = LevelUser
	}
	if !role.Level.Valid() {
		return Role{}, shared.Preconditionf("unknown role level %q", role.Level)
	}
	switch role.Type {
	case TypeSystem:
		if !actor.IsSuperAdmin {
			return Role{}, shared.Forbiddenf("only a platform operator may create system roles")
		}
		if role.TenantID != nil {
			return Role{}, shared.Preconditionf("system roles are global and cannot bind to a tenant")
		}
		role.IsSystem = true
	case TypeTenant, TypeCustom:
		// Nil tenant binding keeps the role shared across tenants.
	case "":
		role.Type = TypeCustom
	default:
		return Role{}, shared.Preconditionf("unknown role type %q", role.Type)
	}

	created, err := s.repo.Create(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actor.ID, "role.create", created.ID, nil)
	return created, nil
}

// Get fetches a role by ID.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns roles visible for the tenant filter.
func (s *Service) List(ctx context.Context, tenantID *int64, includeTrashed bool) ([]Role, error) {
	return s.repo.List(ctx, tenantID, includeTrashed)
}

// Grants returns the permissions attached to a role.
func (s *Service) Grants(ctx context.Context, roleID int64) ([]rbac.Permission, error) {
	if _, err := s.repo.GetByID(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListGrants(ctx, roleID)
}

// Update modifies a role's mutable fields. System roles reject modification
// unless the caller is a platform operator.
func (s *Service) Update(ctx context.Context, actor shared.Actor, role Role) (Role, error) {
	current, err := s.repo.GetByID(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	if err := guardSystemRole(current, actor); err != nil {
		return Role{}, err
	}
	if lifecycle.StateOf(current.DeletedAt) != lifecycle.StateActive {
		return Role{}, shared.Preconditionf("role %q is trashed", current.Name)
	}
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		role.Name = current.Name
	}
	if role.Level == "" {
		role.Level = current.Level
	}
	if !role.Level.Valid() {
		return Role{}, shared.Preconditionf("unknown role level %q", role.Level)
	}
	updated, err := s.repo.Update(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actor.ID, "role.update", role.ID, nil)
	s.invalidateRoleUsers(ctx, role.ID)
	return updated, nil
}

// SetStatus toggles is_active. System roles reject status toggling unless the
// caller is a platform operator.
func (s *Service) SetStatus(ctx context.Context, actor shared.Actor, id int64, active bool) error {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := guardSystemRole(role, actor); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "role.set_status", id, map[string]any{"active": active})
	s.invalidateRoleUsers(ctx, id)
	return nil
}

// SetPermissions replaces a role's grants with the given permission set,
// attaching and detaching inside one transaction.
func (s *Service) SetPermissions(ctx context.Context, actor shared.Actor, roleID int64, permissionIDs []int64) error {
	role, err := s.repo.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if err := guardSystemRole(role, actor); err != nil {
		return err
	}

	current, err := s.repo.ListGrants(ctx, roleID)
	if err != nil {
		return err
	}
	existing := make(map[int64]struct{}, len(current))
	for _, p := range current {
		existing[p.ID] = struct{}{}
	}
	keep := make(map[int64]struct{}, len(permissionIDs))

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range permissionIDs {
			keep[id] = struct{}{}
			if _, ok := existing[id]; !ok {
				if err := tx.AttachPermission(ctx, roleID, id, actor.ID); err != nil {
					return err
				}
			}
		}
		for id := range existing {
			if _, ok := keep[id]; !ok {
				if err := tx.DetachPermission(ctx, roleID, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor.ID, "role.set_permissions", roleID, map[string]any{"count": len(permissionIDs)})
	s.invalidateRoleUsers(ctx, roleID)
	return nil
}

// SoftDelete trashes a role. The role must have no ACTIVE assignments unless
// force is set, in which case they are deactivated first.
func (s *Service) SoftDelete(ctx context.Context, actor shared.Actor, id int64, force bool) error {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := guardSystemRole(role, actor); err != nil {
		return err
	}
	if err := lifecycle.EnsureCanTrash(lifecycle.StateOf(role.DeletedAt)); err != nil {
		return err
	}

	count, err := s.repo.CountActiveAssignments(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		if !force {
			return shared.Preconditionf("role %q has %d active assignments", role.Name, count)
		}
		if _, err := s.repo.DeactivateAssignments(ctx, id); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if err := s.repo.SetDeleted(ctx, id, &now, false); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "role.trash", id, map[string]any{"forced": force})
	s.invalidateRoleUsers(ctx, id)
	return nil
}

// Restore brings a trashed role back: deleted_at cleared, is_active true.
func (s *Service) Restore(ctx context.Context, actor shared.Actor, id int64) error {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := guardSystemRole(role, actor); err != nil {
		return err
	}
	if err := lifecycle.EnsureCanRestore(lifecycle.StateOf(role.DeletedAt)); err != nil {
		return err
	}
	if err := s.repo.SetDeleted(ctx, id, nil, true); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "role.restore", id, nil)
	return nil
}

// Purge permanently deletes a trashed role, cascading to its grants and
// assignment rows in one transaction.
func (s *Service) Purge(ctx context.Context, actor shared.Actor, id int64) error {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := guardSystemRole(role, actor); err != nil {
		return err
	}
	if err := lifecycle.EnsureCanPurge(lifecycle.StateOf(role.DeletedAt)); err != nil {
		return err
	}

	users, err := s.repo.UsersWithRole(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteGrants(ctx, id); err != nil {
			return err
		}
		if _, err := tx.DeleteAssignments(ctx, id); err != nil {
			return err
		}
		return tx.DeleteRole(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor.ID, "role.purge", id, nil)
	for _, userID := range users {
		s.invalidate(ctx, userID)
	}
	return nil
}

// Duplicate copies a role with its grants. Metadata is copied verbatim; it is
// opaque and has no effect on authorization.
func (s *Service) Duplicate(ctx context.Context, actor shared.Actor, id int64, name string) (Role, error) {
	source, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if lifecycle.StateOf(source.DeletedAt) != lifecycle.StateActive {
		return Role{}, shared.Preconditionf("role %q is trashed", source.Name)
	}
	if source.Type == TypeSystem && !actor.IsSuperAdmin {
		return Role{}, shared.Forbiddenf("only a platform operator may duplicate system roles")
	}

	copyRole := source
	copyRole.ID = 0
	copyRole.IsSystem = false
	if source.Type == TypeSystem {
		copyRole.Type = TypeCustom
		copyRole.TenantID = nil
	}
	copyRole.Name = strings.TrimSpace(name)
	if copyRole.Name == "" {
		copyRole.Name = source.Name + " (copy)"
	}
	copyRole.DisplayName = copyRole.Name

	var created Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertRole(ctx, copyRole)
		if err != nil {
			return err
		}
		return tx.CopyGrants(ctx, source.ID, created.ID, actor.ID)
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actor.ID, "role.duplicate", created.ID, map[string]any{"source_role_id": source.ID})
	return created, nil
}

func (s *Service) invalidateRoleUsers(ctx context.Context, roleID int64) {
	if s.invalidator == nil {
		return
	}
	users, err := s.repo.UsersWithRole(ctx, roleID)
	if err != nil {
		s.logger.Warn("invalidate role users", slog.Int64("role_id", roleID), slog.Any("error", err))
		return
	}
	for _, userID := range users {
		s.invalidator.InvalidateUser(ctx, userID)
	}
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(ctx, userID)
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	entry := audit.Entry{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// guardSystemRole rejects destructive operations on system-flagged roles for
// everyone below platform operator.
func guardSystemRole(role Role, actor shared.Actor) error {
	if role.IsSystem && !actor.IsSuperAdmin {
		return shared.Forbiddenf("system role %q is protected", role.Name)
	}
	return nil
}
