package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	platformAdmins map[int64]bool
	// perms maps userID -> cache field -> permissions, keyed the same way the
	// redis cache keys its hash fields.
	perms       map[int64]map[string][]Permission
	memberships map[int64]map[int64]bool
	created     map[string]Permission
	failLookups bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		platformAdmins: make(map[int64]bool),
		perms:          make(map[int64]map[string][]Permission),
		memberships:    make(map[int64]map[int64]bool),
		created:        make(map[string]Permission),
	}
}

func (s *memoryStore) grant(userID int64, tenantID *int64, p Permission) {
	if s.perms[userID] == nil {
		s.perms[userID] = make(map[string][]Permission)
	}
	field := fieldFor(tenantID)
	s.perms[userID][field] = append(s.perms[userID][field], p)
	// Tenant scoped grants are also visible in the unfiltered (global) set.
	if tenantID != nil {
		global := fieldFor(nil)
		s.perms[userID][global] = append(s.perms[userID][global], p)
	}
}

func (s *memoryStore) HoldsPlatformRole(ctx context.Context, userID int64) (bool, error) {
	if s.failLookups {
		return false, errors.New("store down")
	}
	return s.platformAdmins[userID], nil
}

func (s *memoryStore) ActivePermissions(ctx context.Context, userID int64, tenantID *int64) ([]Permission, error) {
	if s.failLookups {
		return nil, errors.New("store down")
	}
	return s.perms[userID][fieldFor(tenantID)], nil
}

func (s *memoryStore) HasActiveAssignment(ctx context.Context, userID, tenantID int64) (bool, error) {
	if s.failLookups {
		return false, errors.New("store down")
	}
	return s.memberships[userID][tenantID], nil
}

func (s *memoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(s.created))
	for _, p := range s.created {
		out = append(out, p)
	}
	return out, nil
}

func (s *memoryStore) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	if _, ok := s.created[p.Name]; ok {
		return Permission{}, errors.New("duplicate")
	}
	p.ID = int64(len(s.created) + 1)
	s.created[p.Name] = p
	return p, nil
}

func (s *memoryStore) EnsurePermission(ctx context.Context, p Permission) error {
	if _, ok := s.created[p.Name]; !ok {
		p.ID = int64(len(s.created) + 1)
		s.created[p.Name] = p
	}
	return nil
}

func ptr(v int64) *int64 { return &v }

func TestCanDeniesByDefault(t *testing.T) {
	svc := NewService(newMemoryStore(), nil, nil, nil)

	allowed := svc.Can(context.Background(), 1, nil, Check{Resource: "users", Action: "read"})
	require.False(t, allowed)
}

func TestCanMatchesExactTriple(t *testing.T) {
	store := newMemoryStore()
	store.grant(7, ptr(3), Permission{Name: "users:read", Resource: "users", Action: "read", Scope: ScopeTenant})
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	require.True(t, svc.Can(ctx, 7, ptr(3), Check{Resource: "users", Action: "read", Scope: ScopeTenant}))
	require.False(t, svc.Can(ctx, 7, ptr(3), Check{Resource: "users", Action: "write", Scope: ScopeTenant}))
	require.False(t, svc.Can(ctx, 7, ptr(3), Check{Resource: "roles", Action: "read", Scope: ScopeTenant}))
}

func TestCanScopeComparisonIsExactNotHierarchical(t *testing.T) {
	store := newMemoryStore()
	store.grant(7, ptr(3), Permission{Name: "users:read:all", Resource: "users", Action: "read", Scope: ScopeAll})
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	// An ALL grant does not satisfy a TENANT or OWN scoped check.
	require.False(t, svc.Can(ctx, 7, ptr(3), Check{Resource: "users", Action: "read", Scope: ScopeTenant}))
	require.False(t, svc.Can(ctx, 7, ptr(3), Check{Resource: "users", Action: "read", Scope: ScopeOwn}))
	require.True(t, svc.Can(ctx, 7, ptr(3), Check{Resource: "users", Action: "read", Scope: ScopeAll}))
	// A zero scope in the check matches any granted scope.
	require.True(t, svc.Can(ctx, 7, ptr(3), Check{Resource: "users", Action: "read"}))
}

func TestCanSentinelGrantBypassesMatching(t *testing.T) {
	store := newMemoryStore()
	store.grant(9, ptr(2), Permission{Name: PermissionAll, Resource: "permission", Action: "all", Scope: ScopeAll})
	svc := NewService(store, nil, nil, nil)

	require.True(t, svc.Can(context.Background(), 9, ptr(2), Check{Resource: "anything", Action: "whatever", Scope: ScopeOwn}))
}

func TestCanSuperAdminShortCircuits(t *testing.T) {
	store := newMemoryStore()
	store.platformAdmins[5] = true
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	require.True(t, svc.Can(ctx, 5, nil, Check{Resource: "tenants", Action: "delete", Scope: ScopeAll}))
	require.True(t, svc.Can(ctx, 5, ptr(99), Check{Resource: "users", Action: "write", Scope: ScopeTenant}))
	require.True(t, svc.IsSuperAdmin(ctx, 5))
	require.False(t, svc.IsSuperAdmin(ctx, 6))
}

func TestCanDeniesOnStoreError(t *testing.T) {
	store := newMemoryStore()
	store.platformAdmins[5] = true
	store.failLookups = true
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	require.False(t, svc.Can(ctx, 5, nil, Check{Resource: "users", Action: "read"}))
	require.False(t, svc.IsSuperAdmin(ctx, 5))
	require.False(t, svc.CanAccessTenant(ctx, 5, 1, Check{Resource: "users", Action: "read"}))
}

func TestCanAccessTenantRequiresMembership(t *testing.T) {
	store := newMemoryStore()
	store.grant(7, ptr(3), Permission{Name: "users:read", Resource: "users", Action: "read", Scope: ScopeTenant})
	store.memberships[7] = map[int64]bool{3: true}
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	require.True(t, svc.CanAccessTenant(ctx, 7, 3, Check{Resource: "users", Action: "read", Scope: ScopeTenant}))
	// Same grant, different tenant: no membership, no access.
	require.False(t, svc.CanAccessTenant(ctx, 7, 4, Check{Resource: "users", Action: "read", Scope: ScopeTenant}))
}

func TestCanAccessTenantSuperAdminBypassesMembership(t *testing.T) {
	store := newMemoryStore()
	store.platformAdmins[5] = true
	svc := NewService(store, nil, nil, nil)

	require.True(t, svc.CanAccessTenant(context.Background(), 5, 42, Check{Resource: "tenants", Action: "write"}))
}

func TestSeedPopulatesCatalog(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, Seed(context.Background(), store))

	perms, err := store.ListPermissions(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, perms)

	names := make(map[string]bool, len(perms))
	for _, p := range perms {
		names[p.Name] = true
	}
	require.True(t, names[PermissionAll])
	require.True(t, names["users:read"])
	require.True(t, names["users:read:own"])
	require.True(t, names["users:read:all"])

	// Seeding twice must not duplicate entries.
	require.NoError(t, Seed(context.Background(), store))
	again, err := store.ListPermissions(context.Background())
	require.NoError(t, err)
	require.Len(t, again, len(perms))
}
