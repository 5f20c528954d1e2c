package tenancy

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-hq/meridian/internal/rbac"
	"github.com/meridian-hq/meridian/internal/shared"
)

func TestListEndpointScopedToCallerTenant(t *testing.T) {
	repo := newMemoryRepo()
	own := repo.addTenant(Tenant{Slug: "acme", Name: "Acme", Type: TypeBusiness, Status: StatusActive})
	repo.addTenant(Tenant{Slug: "globex", Name: "Globex", Type: TypeBusiness, Status: StatusActive})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(repo, nil, nil, nil, 0), rbac.Middleware{})

	serve := func(tc *shared.TenantContext) []tenantResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/tenants/", nil)
		req = req.WithContext(shared.ContextWithTenant(req.Context(), tc))
		rec := httptest.NewRecorder()
		h.list(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Tenants []tenantResponse `json:"tenants"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Tenants
	}

	visible := serve(&shared.TenantContext{ID: own.ID})
	require.Len(t, visible, 1)
	require.Equal(t, own.ID, visible[0].ID)

	require.Len(t, serve(&shared.TenantContext{ID: own.ID, IsSuperAdmin: true}), 2)
}
