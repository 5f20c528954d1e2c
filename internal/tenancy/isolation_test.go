package tenancy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-hq/meridian/internal/shared"
)

type stubAuthorizer struct {
	supers map[int64]bool
}

func (a *stubAuthorizer) IsSuperAdmin(ctx context.Context, userID int64) bool {
	return a.supers[userID]
}

type stubMembers struct {
	tenants map[int64][]int64
	primary map[int64]int64
}

func (m *stubMembers) ActiveTenantIDs(ctx context.Context, userID int64) ([]int64, error) {
	return m.tenants[userID], nil
}

func (m *stubMembers) PrimaryTenantID(ctx context.Context, userID int64) (int64, bool, error) {
	id, ok := m.primary[userID]
	return id, ok, nil
}

func newTestFilter(dir *memoryRepo, members *stubMembers, supers ...int64) *IsolationFilter {
	authz := &stubAuthorizer{supers: make(map[int64]bool)}
	for _, id := range supers {
		authz.supers[id] = true
	}
	return NewIsolationFilter(dir, members, authz, nil, nil, []string{"/auth", "/healthz"})
}

func TestResolveDefaultsToPrimaryTenant(t *testing.T) {
	members := &stubMembers{
		tenants: map[int64][]int64{7: {3, 4}},
		primary: map[int64]int64{7: 3},
	}
	filter := newTestFilter(newMemoryRepo(), members)

	tc, err := filter.Resolve(context.Background(), 7, "")
	require.NoError(t, err)
	require.Equal(t, int64(3), tc.ID)
	require.False(t, tc.IsSuperAdmin)
}

func TestResolveHonorsRequestedMemberTenant(t *testing.T) {
	members := &stubMembers{
		tenants: map[int64][]int64{7: {3, 4}},
		primary: map[int64]int64{7: 3},
	}
	filter := newTestFilter(newMemoryRepo(), members)

	tc, err := filter.Resolve(context.Background(), 7, "4")
	require.NoError(t, err)
	require.Equal(t, int64(4), tc.ID)
}

func TestResolveRejectsCrossTenantRequest(t *testing.T) {
	members := &stubMembers{
		tenants: map[int64][]int64{7: {3}},
		primary: map[int64]int64{7: 3},
	}
	filter := newTestFilter(newMemoryRepo(), members)

	_, err := filter.Resolve(context.Background(), 7, "4")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestResolveRejectsUserWithoutAssignments(t *testing.T) {
	filter := newTestFilter(newMemoryRepo(), &stubMembers{})

	_, err := filter.Resolve(context.Background(), 7, "")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestResolveRequiresExplicitSelectionWithoutPrimary(t *testing.T) {
	members := &stubMembers{tenants: map[int64][]int64{7: {3, 4}}}
	filter := newTestFilter(newMemoryRepo(), members)

	_, err := filter.Resolve(context.Background(), 7, "")
	require.ErrorIs(t, err, shared.ErrForbidden)

	tc, err := filter.Resolve(context.Background(), 7, "3")
	require.NoError(t, err)
	require.Equal(t, int64(3), tc.ID)
}

func TestResolveSuperAdminImpersonation(t *testing.T) {
	dir := newMemoryRepo()
	home := dir.addTenant(Tenant{Slug: "platform", Type: TypeCore, Status: StatusActive})
	target := dir.addTenant(Tenant{Slug: "acme", Type: TypeBusiness, Status: StatusActive})
	members := &stubMembers{primary: map[int64]int64{5: home.ID}}
	filter := newTestFilter(dir, members, 5)
	ctx := context.Background()

	// No header: home tenant.
	tc, err := filter.Resolve(ctx, 5, "")
	require.NoError(t, err)
	require.True(t, tc.IsSuperAdmin)
	require.Equal(t, home.ID, tc.ID)
	require.Equal(t, home.ID, tc.OriginalTenantID)

	// Any existing tenant may be selected; the home tenant is preserved.
	tc, err = filter.Resolve(ctx, 5, "2")
	require.NoError(t, err)
	require.Equal(t, target.ID, tc.ID)
	require.Equal(t, home.ID, tc.OriginalTenantID)

	// A nonexistent tenant is a 404, not a silent fallback.
	_, err = filter.Resolve(ctx, 5, "1000000")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveSuperAdminWithoutPrimaryRequiresExplicitSelection(t *testing.T) {
	dir := newMemoryRepo()
	target := dir.addTenant(Tenant{Slug: "acme", Type: TypeBusiness, Status: StatusActive})
	filter := newTestFilter(dir, &stubMembers{}, 5)
	ctx := context.Background()

	// No primary assignment and no header: same rejection as for regular
	// principals, not a zero-valued tenant context.
	_, err := filter.Resolve(ctx, 5, "")
	require.ErrorIs(t, err, shared.ErrForbidden)

	tc, err := filter.Resolve(ctx, 5, "1")
	require.NoError(t, err)
	require.Equal(t, target.ID, tc.ID)
	require.True(t, tc.IsSuperAdmin)
}

func TestResolveRejectsMalformedTenantHeader(t *testing.T) {
	members := &stubMembers{
		tenants: map[int64][]int64{7: {3}},
		primary: map[int64]int64{7: 3},
	}
	filter := newTestFilter(newMemoryRepo(), members)

	_, err := filter.Resolve(context.Background(), 7, "acme")
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = filter.Resolve(context.Background(), 7, "-1")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMiddlewareExemptPathSkipsIsolation(t *testing.T) {
	filter := newTestFilter(newMemoryRepo(), &stubMembers{})

	var sawTenant *shared.TenantContext
	handler := filter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawTenant = shared.TenantFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, sawTenant)
}

func TestMiddlewareRejectsAnonymous(t *testing.T) {
	filter := newTestFilter(newMemoryRepo(), &stubMembers{})

	handler := filter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareStoresTenantContext(t *testing.T) {
	members := &stubMembers{
		tenants: map[int64][]int64{7: {3}},
		primary: map[int64]int64{7: 3},
	}
	filter := newTestFilter(newMemoryRepo(), members)

	var sawTenant *shared.TenantContext
	handler := filter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawTenant = shared.TenantFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: 7}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sawTenant)
	require.Equal(t, int64(3), sawTenant.ID)
}

func TestMiddlewareRejectsCrossTenantWith403(t *testing.T) {
	members := &stubMembers{
		tenants: map[int64][]int64{7: {3}},
		primary: map[int64]int64{7: 3},
	}
	filter := newTestFilter(newMemoryRepo(), members)

	handler := filter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set(TenantHeader, "4")
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: 7}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
