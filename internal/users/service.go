package users

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-hq/meridian/internal/audit"
	"github.com/meridian-hq/meridian/internal/lifecycle"
	"github.com/meridian-hq/meridian/internal/shared"
	"github.com/meridian-hq/meridian/internal/tenancy"
)

// Auditor records activity entries for user mutations.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// SessionRevoker drops live session entries from the session store.
type SessionRevoker interface {
	Revoke(ctx context.Context, sessionID string) error
}

// Invalidator drops cached permission sets for a user.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
}

// Service handles user accounts and their lifecycle.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	auditor     Auditor
	sessions    SessionRevoker
	invalidator Invalidator
}

// NewService builds Service instance. Auditor, sessions and invalidator may
// be nil.
func NewService(repo Repository, logger *slog.Logger, auditor Auditor, sessions SessionRevoker, invalidator Invalidator) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, auditor: auditor, sessions: sessions, invalidator: invalidator}
}

// Register creates a new account with a hashed password.
func (s *Service) Register(ctx context.Context, actor shared.Actor, user User, password string) (User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" {
		return User{}, shared.Preconditionf("email required")
	}
	if len(password) < 8 {
		return User{}, shared.Preconditionf("password must be at least 8 characters")
	}
	if user.Status == "" {
		user.Status = StatusActive
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	created, err := s.repo.Create(ctx, user, string(hash))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor.ID, "user.create", created.ID, nil)
	return created, nil
}

// Get fetches a user by ID.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the non-deleted users visible from the tenant context. A
// non-privileged context only sees users homed in its own tenant.
func (s *Service) List(ctx context.Context, tc *shared.TenantContext) ([]User, error) {
	list, err := s.repo.List(ctx, tc)
	if err != nil {
		return nil, err
	}
	return tenancy.ScopeResults(tc, list), nil
}

// UpdateProfile changes mutable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, actor shared.Actor, id int64, name string) (User, error) {
	updated, err := s.repo.UpdateProfile(ctx, id, strings.TrimSpace(name))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor.ID, "user.update", id, nil)
	return updated, nil
}

// SoftDelete trashes an account: status DELETED, assignments deactivated,
// sessions revoked and the token version bumped, all in one transaction.
func (s *Service) SoftDelete(ctx context.Context, actor shared.Actor, id int64, reason string) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := lifecycle.EnsureCanTrash(lifecycle.StateOf(user.DeletedAt)); err != nil {
		return err
	}

	now := time.Now().UTC()
	deletedBy := actor.ID
	var revoked []string
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.SetLifecycle(ctx, id, StatusDeleted, &now, &deletedBy, reason); err != nil {
			return err
		}
		if _, err := tx.DeactivateAssignments(ctx, id); err != nil {
			return err
		}
		sessionIDs, err := tx.DeactivateSessions(ctx, id)
		if err != nil {
			return err
		}
		revoked = sessionIDs
		_, err = tx.BumpTokenVersion(ctx, id)
		return err
	})
	if err != nil {
		return err
	}

	// Store cleanup is best effort; the bumped token version already rejects
	// stale sessions.
	if s.sessions != nil {
		for _, sessionID := range revoked {
			if err := s.sessions.Revoke(ctx, sessionID); err != nil {
				s.logger.Warn("revoke session", slog.String("session_id", sessionID), slog.Any("error", err))
			}
		}
	}
	s.invalidate(ctx, id)
	s.record(ctx, actor.ID, "user.trash", id, map[string]any{"reason": reason})
	return nil
}

// Restore brings a trashed account back to ACTIVE. Assignments stay INACTIVE
// until explicitly reassigned.
func (s *Service) Restore(ctx context.Context, actor shared.Actor, id int64) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := lifecycle.EnsureCanRestore(lifecycle.StateOf(user.DeletedAt)); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetLifecycle(ctx, id, StatusActive, nil, nil, "")
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor.ID, "user.restore", id, nil)
	return nil
}

// Purge permanently deletes a trashed account with its sessions and
// assignments in one transaction.
func (s *Service) Purge(ctx context.Context, actor shared.Actor, id int64) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := lifecycle.EnsureCanPurge(lifecycle.StateOf(user.DeletedAt)); err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.DeleteSessions(ctx, id); err != nil {
			return err
		}
		if _, err := tx.DeleteAssignments(ctx, id); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.record(ctx, actor.ID, "user.purge", id, nil)
	return nil
}

// DeactivateInTenant flips the user's assignments in one tenant to INACTIVE.
// The account itself goes INACTIVE only when no ACTIVE assignment remains
// anywhere; a user can stay globally ACTIVE while inactive in one tenant.
func (s *Service) DeactivateInTenant(ctx context.Context, actor shared.Actor, userID, tenantID int64) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if lifecycle.StateOf(user.DeletedAt) != lifecycle.StateActive {
		return shared.Preconditionf("user %d is trashed", userID)
	}
	if _, err := s.repo.DeactivateTenantAssignments(ctx, userID, tenantID); err != nil {
		return err
	}
	remaining, err := s.repo.CountActiveAssignments(ctx, userID)
	if err != nil {
		return err
	}
	if remaining == 0 && user.Status == StatusActive {
		if err := s.repo.SetStatus(ctx, userID, StatusInactive); err != nil {
			return err
		}
	}
	s.invalidate(ctx, userID)
	s.record(ctx, actor.ID, "user.deactivate_in_tenant", userID, map[string]any{"tenant_id": tenantID})
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(ctx, userID)
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	entry := audit.Entry{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
