package assignments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-hq/meridian/internal/roles"
	"github.com/meridian-hq/meridian/internal/shared"
)

type memoryRepo struct {
	assignments map[int64]*Assignment
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{assignments: make(map[int64]*Assignment)}
}

func (r *memoryRepo) add(a Assignment) Assignment {
	r.nextID++
	a.ID = r.nextID
	a.AssignedAt = time.Now()
	r.assignments[a.ID] = &a
	return a
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (Assignment, error) {
	a, ok := r.assignments[id]
	if !ok {
		return Assignment{}, shared.NotFoundf("assignment %d", id)
	}
	return *a, nil
}

func (r *memoryRepo) ListForUser(ctx context.Context, userID int64) ([]Assignment, error) {
	var out []Assignment
	for _, a := range r.assignments {
		if a.UserID == userID && a.DeletedAt == nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListForTenant(ctx context.Context, tenantID int64, p shared.Pagination) ([]Assignment, error) {
	var out []Assignment
	for _, a := range r.assignments {
		if a.TenantID != nil && *a.TenantID == tenantID && a.DeletedAt == nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryRepo) SetStatus(ctx context.Context, id int64, status Status) error {
	a, ok := r.assignments[id]
	if !ok || a.DeletedAt != nil {
		return shared.NotFoundf("assignment %d", id)
	}
	a.Status = status
	return nil
}

func (r *memoryRepo) ActiveTenantIDs(ctx context.Context, userID int64) ([]int64, error) {
	seen := make(map[int64]bool)
	var out []int64
	for _, a := range r.assignments {
		if a.UserID == userID && a.TenantID != nil && a.Status == StatusActive && a.DeletedAt == nil && !seen[*a.TenantID] {
			seen[*a.TenantID] = true
			out = append(out, *a.TenantID)
		}
	}
	return out, nil
}

func (r *memoryRepo) PrimaryTenantID(ctx context.Context, userID int64) (int64, bool, error) {
	for _, a := range r.assignments {
		if a.UserID == userID && a.IsPrimary && a.TenantID != nil && a.Status == StatusActive && a.DeletedAt == nil {
			return *a.TenantID, true, nil
		}
	}
	return 0, false, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) Insert(ctx context.Context, a Assignment) (Assignment, error) {
	return tx.repo.add(a), nil
}

func (tx *memoryTx) HasActiveDuplicate(ctx context.Context, userID int64, tenantID *int64, roleID int64) (bool, error) {
	for _, a := range tx.repo.assignments {
		if a.UserID == userID && a.RoleID == roleID && a.Status == StatusActive && a.DeletedAt == nil && sameTenant(a.TenantID, tenantID) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) GetByID(ctx context.Context, id int64) (Assignment, error) {
	return tx.repo.GetByID(ctx, id)
}

func (tx *memoryTx) ClearPrimary(ctx context.Context, userID int64) error {
	for _, a := range tx.repo.assignments {
		if a.UserID == userID {
			a.IsPrimary = false
		}
	}
	return nil
}

func (tx *memoryTx) SetPrimary(ctx context.Context, id int64) error {
	a, ok := tx.repo.assignments[id]
	if !ok || a.DeletedAt != nil {
		return shared.NotFoundf("assignment %d", id)
	}
	a.IsPrimary = true
	return nil
}

func (tx *memoryTx) SoftDelete(ctx context.Context, id int64) error {
	a, ok := tx.repo.assignments[id]
	if !ok || a.DeletedAt != nil {
		return shared.NotFoundf("assignment %d", id)
	}
	now := time.Now()
	a.Status = StatusInactive
	a.IsPrimary = false
	a.DeletedAt = &now
	return nil
}

func sameTenant(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type stubRoleDirectory struct {
	roles map[int64]roles.Role
}

func (d *stubRoleDirectory) Get(ctx context.Context, id int64) (roles.Role, error) {
	role, ok := d.roles[id]
	if !ok {
		return roles.Role{}, shared.NotFoundf("role %d", id)
	}
	return role, nil
}

type recordingInvalidator struct {
	users []int64
}

func (i *recordingInvalidator) InvalidateUser(ctx context.Context, userID int64) {
	i.users = append(i.users, userID)
}

func ptr(v int64) *int64 { return &v }

var (
	operator = shared.Actor{ID: 1, IsSuperAdmin: true}
	manager  = shared.Actor{ID: 2}
)

func newTestService(repo *memoryRepo, dir *stubRoleDirectory) (*Service, *recordingInvalidator) {
	invalidator := &recordingInvalidator{}
	return NewService(repo, dir, nil, nil, invalidator), invalidator
}

func defaultRoles() *stubRoleDirectory {
	return &stubRoleDirectory{roles: map[int64]roles.Role{
		10: {ID: 10, Name: "editor", Type: roles.TypeCustom, IsActive: true},
		11: {ID: 11, Name: "platform-admin", Type: roles.TypeSystem, IsSystem: true, IsActive: true},
		12: {ID: 12, Name: "acme-only", Type: roles.TypeTenant, TenantID: ptr(3), IsActive: true},
		13: {ID: 13, Name: "disabled", Type: roles.TypeCustom, IsActive: false},
	}}
}

func TestAssignFirstTenantMembershipBecomesPrimary(t *testing.T) {
	repo := newMemoryRepo()
	svc, invalidator := newTestService(repo, defaultRoles())
	ctx := context.Background()

	created, err := svc.Assign(ctx, manager, Assignment{UserID: 7, TenantID: ptr(3), RoleID: 10}, false)
	require.NoError(t, err)
	require.True(t, created.IsPrimary)
	require.Equal(t, StatusActive, created.Status)
	require.Equal(t, manager.ID, *created.AssignedBy)
	require.Contains(t, invalidator.users, int64(7))

	// The second membership does not steal primary.
	second, err := svc.Assign(ctx, manager, Assignment{UserID: 7, TenantID: ptr(4), RoleID: 10}, false)
	require.NoError(t, err)
	require.False(t, second.IsPrimary)

	primary, ok, err := repo.PrimaryTenantID(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), primary)
}

func TestAssignMakePrimaryDemotesExisting(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, defaultRoles())
	ctx := context.Background()

	first, err := svc.Assign(ctx, manager, Assignment{UserID: 7, TenantID: ptr(3), RoleID: 10}, false)
	require.NoError(t, err)

	second, err := svc.Assign(ctx, manager, Assignment{UserID: 7, TenantID: ptr(4), RoleID: 10}, true)
	require.NoError(t, err)
	require.True(t, second.IsPrimary)

	got, _ := repo.GetByID(ctx, first.ID)
	require.False(t, got.IsPrimary)
}

func TestAssignDuplicateActiveBindingConflicts(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo(), defaultRoles())
	ctx := context.Background()

	_, err := svc.Assign(ctx, manager, Assignment{UserID: 7, TenantID: ptr(3), RoleID: 10}, false)
	require.NoError(t, err)
	_, err = svc.Assign(ctx, manager, Assignment{UserID: 7, TenantID: ptr(3), RoleID: 10}, false)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestAssignSystemRoleRequiresOperator(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo(), defaultRoles())
	ctx := context.Background()

	_, err := svc.Assign(ctx, manager, Assignment{UserID: 7, RoleID: 11}, false)
	require.ErrorIs(t, err, shared.ErrForbidden)

	created, err := svc.Assign(ctx, operator, Assignment{UserID: 7, RoleID: 11}, false)
	require.NoError(t, err)
	require.Nil(t, created.TenantID)
	require.False(t, created.IsPrimary)
}

func TestAssignNonSystemRoleRequiresTenant(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo(), defaultRoles())

	_, err := svc.Assign(context.Background(), manager, Assignment{UserID: 7, RoleID: 10}, false)
	require.ErrorIs(t, err, shared.ErrPrecondition)
}

func TestAssignTenantBoundRoleMustMatchTenant(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo(), defaultRoles())
	ctx := context.Background()

	_, err := svc.Assign(ctx, manager, Assignment{UserID: 7, TenantID: ptr(4), RoleID: 12}, false)
	require.ErrorIs(t, err, shared.ErrPrecondition)

	_, err = svc.Assign(ctx, manager, Assignment{UserID: 7, TenantID: ptr(3), RoleID: 12}, false)
	require.NoError(t, err)
}

func TestAssignRejectsInactiveRole(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo(), defaultRoles())

	_, err := svc.Assign(context.Background(), manager, Assignment{UserID: 7, TenantID: ptr(3), RoleID: 13}, false)
	require.ErrorIs(t, err, shared.ErrPrecondition)
}

func TestSetPrimaryGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, defaultRoles())
	ctx := context.Background()

	inactive := repo.add(Assignment{UserID: 7, TenantID: ptr(3), RoleID: 10, Status: StatusInactive})
	platform := repo.add(Assignment{UserID: 7, RoleID: 11, Status: StatusActive})
	now := time.Now()
	trashed := repo.add(Assignment{UserID: 7, TenantID: ptr(3), RoleID: 10, Status: StatusInactive, DeletedAt: &now})

	require.ErrorIs(t, svc.SetPrimary(ctx, manager, inactive.ID), shared.ErrPrecondition)
	require.ErrorIs(t, svc.SetPrimary(ctx, manager, platform.ID), shared.ErrPrecondition)
	require.ErrorIs(t, svc.SetPrimary(ctx, manager, trashed.ID), shared.ErrPrecondition)
}

func TestSetPrimaryMovesFlag(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, defaultRoles())
	ctx := context.Background()

	a := repo.add(Assignment{UserID: 7, TenantID: ptr(3), RoleID: 10, Status: StatusActive, IsPrimary: true})
	b := repo.add(Assignment{UserID: 7, TenantID: ptr(4), RoleID: 10, Status: StatusActive})

	require.NoError(t, svc.SetPrimary(ctx, manager, b.ID))

	gotA, _ := repo.GetByID(ctx, a.ID)
	gotB, _ := repo.GetByID(ctx, b.ID)
	require.False(t, gotA.IsPrimary)
	require.True(t, gotB.IsPrimary)
}

func TestRevokeSoftDeletes(t *testing.T) {
	repo := newMemoryRepo()
	svc, invalidator := newTestService(repo, defaultRoles())
	ctx := context.Background()

	a := repo.add(Assignment{UserID: 7, TenantID: ptr(3), RoleID: 10, Status: StatusActive, IsPrimary: true})

	require.NoError(t, svc.Revoke(ctx, manager, a.ID))

	got, _ := repo.GetByID(ctx, a.ID)
	require.NotNil(t, got.DeletedAt)
	require.Equal(t, StatusInactive, got.Status)
	require.False(t, got.IsPrimary)
	require.Contains(t, invalidator.users, int64(7))

	// Revoking twice fails.
	require.ErrorIs(t, svc.Revoke(ctx, manager, a.ID), shared.ErrPrecondition)
}

func TestSetStatusRejectsTrashed(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, defaultRoles())
	ctx := context.Background()

	a := repo.add(Assignment{UserID: 7, TenantID: ptr(3), RoleID: 10, Status: StatusActive})

	require.NoError(t, svc.SetStatus(ctx, manager, a.ID, StatusInactive))
	got, _ := repo.GetByID(ctx, a.ID)
	require.Equal(t, StatusInactive, got.Status)

	require.NoError(t, svc.Revoke(ctx, manager, a.ID))
	require.ErrorIs(t, svc.SetStatus(ctx, manager, a.ID, StatusActive), shared.ErrPrecondition)
}
