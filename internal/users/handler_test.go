package users

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-hq/meridian/internal/shared"
)

func TestListEndpointDoesNotLeakOtherTenants(t *testing.T) {
	repo := newMemoryRepo()
	t1, t2 := int64(1), int64(2)
	repo.addUser(User{Email: "a@tenant1.example", Status: StatusActive, HomeTenantID: &t1})
	repo.addUser(User{Email: "b@tenant2.example", Status: StatusActive, HomeTenantID: &t2})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(repo, nil, nil, nil, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/users/", nil)
	ctx := shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: 7})
	ctx = shared.ContextWithTenant(ctx, &shared.TenantContext{ID: 1})
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	h.list(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Users []userResponse `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Users, 1)
	require.Equal(t, "a@tenant1.example", body.Users[0].Email)
}
