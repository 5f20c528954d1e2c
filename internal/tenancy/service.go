package tenancy

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-hq/meridian/internal/audit"
	"github.com/meridian-hq/meridian/internal/lifecycle"
	"github.com/meridian-hq/meridian/internal/shared"
)

const (
	// DefaultCascadeBatchSize bounds each set-based assignment update.
	DefaultCascadeBatchSize = 500
	// defaultAsyncThreshold is the assignment count above which cascades move
	// to the background worker instead of running inline.
	defaultAsyncThreshold = 2000
)

// Auditor records activity entries for lifecycle transitions.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// CascadeEnqueuer hands oversized cascades to the background worker.
type CascadeEnqueuer interface {
	EnqueueTenantCascade(ctx context.Context, tenantID int64, from, to string) error
}

// Service owns the tenant lifecycle: create, archive/unarchive, trash,
// restore, purge, with assignment cascades per transition.
type Service struct {
	repo           Repository
	logger         *slog.Logger
	auditor        Auditor
	enqueuer       CascadeEnqueuer
	batchSize      int
	asyncThreshold int
}

// NewService builds a Service. Auditor and enqueuer may be nil.
func NewService(repo Repository, logger *slog.Logger, auditor Auditor, enqueuer CascadeEnqueuer, batchSize int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = DefaultCascadeBatchSize
	}
	return &Service{
		repo:           repo,
		logger:         logger,
		auditor:        auditor,
		enqueuer:       enqueuer,
		batchSize:      batchSize,
		asyncThreshold: defaultAsyncThreshold,
	}
}

// Create provisions a new tenant. The CORE tenant is seeded at install time
// and can never be created through this path.
func (s *Service) Create(ctx context.Context, actorID int64, t Tenant) (Tenant, error) {
	if t.Type == TypeCore {
		return Tenant{}, shared.Preconditionf("core tenant is provisioned at install time")
	}
	if t.Type == "" {
		t.Type = TypeBusiness
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	if t.Slug == "" {
		t.Slug = NormalizeSlug(t.Name)
	} else {
		t.Slug = NormalizeSlug(t.Slug)
	}
	if t.Slug == "" {
		return Tenant{}, shared.Preconditionf("tenant slug required")
	}
	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return Tenant{}, err
	}
	s.record(ctx, actorID, "tenant.create", created.ID, nil)
	return created, nil
}

// Get fetches a tenant by ID.
func (s *Service) Get(ctx context.Context, id int64) (Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all non-deleted tenants.
func (s *Service) List(ctx context.Context) ([]Tenant, error) {
	return s.repo.List(ctx)
}

// Archive deactivates a tenant and cascades all its assignments to INACTIVE.
func (s *Service) Archive(ctx context.Context, actorID, id int64) (CascadeResult, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return CascadeResult{}, err
	}
	if err := guardCore(t); err != nil {
		return CascadeResult{}, err
	}
	if t.Status == StatusDeactivated {
		return CascadeResult{}, shared.Preconditionf("tenant %q is already archived", t.Slug)
	}
	if t.Status == StatusDeleted {
		return CascadeResult{}, shared.Preconditionf("tenant %q is trashed", t.Slug)
	}

	if err := s.setStatus(ctx, id, StatusDeactivated, nil); err != nil {
		return CascadeResult{}, err
	}
	result, err := s.cascade(ctx, id, "ACTIVE", "INACTIVE")
	if err != nil {
		return result, err
	}
	s.record(ctx, actorID, "tenant.archive", id, map[string]any{"assignments_deactivated": result.Affected})
	return result, nil
}

// Unarchive reactivates an archived tenant and its assignments.
func (s *Service) Unarchive(ctx context.Context, actorID, id int64) (CascadeResult, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return CascadeResult{}, err
	}
	if err := guardCore(t); err != nil {
		return CascadeResult{}, err
	}
	if t.Status != StatusDeactivated {
		return CascadeResult{}, shared.Preconditionf("tenant %q is not archived", t.Slug)
	}

	if err := s.setStatus(ctx, id, StatusActive, nil); err != nil {
		return CascadeResult{}, err
	}
	result, err := s.cascade(ctx, id, "INACTIVE", "ACTIVE")
	if err != nil {
		return result, err
	}
	s.record(ctx, actorID, "tenant.unarchive", id, map[string]any{"assignments_reactivated": result.Affected})
	return result, nil
}

// SoftDelete trashes a tenant: status DELETED, deleted_at set, assignments
// deactivated. Restorable until purged.
func (s *Service) SoftDelete(ctx context.Context, actorID, id int64) (CascadeResult, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return CascadeResult{}, err
	}
	if err := guardCore(t); err != nil {
		return CascadeResult{}, err
	}
	if err := lifecycle.EnsureCanTrash(lifecycle.StateOf(t.DeletedAt)); err != nil {
		return CascadeResult{}, err
	}

	now := time.Now().UTC()
	if err := s.setStatus(ctx, id, StatusDeleted, &now); err != nil {
		return CascadeResult{}, err
	}
	result, err := s.cascade(ctx, id, "ACTIVE", "INACTIVE")
	if err != nil {
		return result, err
	}
	s.record(ctx, actorID, "tenant.trash", id, map[string]any{"assignments_deactivated": result.Affected})
	return result, nil
}

// Restore brings a trashed tenant back to ACTIVE and reactivates its
// assignments.
func (s *Service) Restore(ctx context.Context, actorID, id int64) (CascadeResult, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return CascadeResult{}, err
	}
	if err := guardCore(t); err != nil {
		return CascadeResult{}, err
	}
	if err := lifecycle.EnsureCanRestore(lifecycle.StateOf(t.DeletedAt)); err != nil {
		return CascadeResult{}, err
	}

	if err := s.setStatus(ctx, id, StatusActive, nil); err != nil {
		return CascadeResult{}, err
	}
	result, err := s.cascade(ctx, id, "INACTIVE", "ACTIVE")
	if err != nil {
		return result, err
	}
	s.record(ctx, actorID, "tenant.restore", id, map[string]any{"assignments_reactivated": result.Affected})
	return result, nil
}

// Purge permanently deletes a trashed tenant with all dependent rows in one
// transaction. Irreversible.
func (s *Service) Purge(ctx context.Context, actorID, id int64) error {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := guardCore(t); err != nil {
		return err
	}
	if err := lifecycle.EnsureCanPurge(lifecycle.StateOf(t.DeletedAt)); err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.DeleteAssignments(ctx, id); err != nil {
			return err
		}
		if _, err := tx.DeleteRoles(ctx, id); err != nil {
			return err
		}
		return tx.DeleteTenant(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "tenant.purge", id, nil)
	return nil
}

// CascadeAssignments runs the batched status flip for a tenant, one atomic
// set-based update per batch. Used inline and by the background worker.
func (s *Service) CascadeAssignments(ctx context.Context, tenantID int64, from, to string) (CascadeResult, error) {
	var result CascadeResult
	for {
		n, err := s.repo.SetAssignmentStatusBatch(ctx, tenantID, from, to, s.batchSize)
		if err != nil {
			// Partial progress stands; completed batches are already committed.
			return result, err
		}
		if n == 0 {
			return result, nil
		}
		result.Affected += n
		result.Batches++
	}
}

func (s *Service) cascade(ctx context.Context, tenantID int64, from, to string) (CascadeResult, error) {
	if s.enqueuer != nil {
		count, err := s.repo.CountActiveAssignments(ctx, tenantID)
		if err == nil && count > s.asyncThreshold {
			if err := s.enqueuer.EnqueueTenantCascade(ctx, tenantID, from, to); err == nil {
				return CascadeResult{Enqueued: true}, nil
			}
			s.logger.Warn("cascade enqueue failed, running inline", slog.Int64("tenant_id", tenantID))
		}
	}
	return s.CascadeAssignments(ctx, tenantID, from, to)
}

func (s *Service) setStatus(ctx context.Context, id int64, status Status, deletedAt *time.Time) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetStatus(ctx, id, status, deletedAt)
	})
}

func (s *Service) record(ctx context.Context, actorID int64, action string, tenantID int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	entry := audit.Entry{
		ActorID:  actorID,
		Action:   action,
		Entity:   "tenant",
		EntityID: strconv.FormatInt(tenantID, 10),
		Meta:     meta,
	}
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// guardCore rejects every mutating lifecycle operation on the CORE tenant.
// This is a hard invariant with no privileged override.
func guardCore(t Tenant) error {
	if t.Type == TypeCore {
		return shared.Preconditionf("core tenant cannot be archived or deleted")
	}
	return nil
}
