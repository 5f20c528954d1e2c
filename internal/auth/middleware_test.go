package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-hq/meridian/internal/shared"
)

func runPrincipalMiddleware(t *testing.T, svc *Service, sess *shared.Session) *shared.Principal {
	t.Helper()
	var principal *shared.Principal
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := PrincipalMiddleware(svc, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return principal
}

func TestPrincipalMiddlewareAnonymousPassesThrough(t *testing.T) {
	svc := NewService(newMemoryRepo())

	require.Nil(t, runPrincipalMiddleware(t, svc, nil))
	require.Nil(t, runPrincipalMiddleware(t, svc, &shared.Session{ID: "anon"}))
}

func TestPrincipalMiddlewareResolvesPrincipal(t *testing.T) {
	repo := newMemoryRepo()
	account := repo.addAccount("jo@example.com", "hunter22-long", "ACTIVE", 2)
	svc := NewService(repo)

	sess := &shared.Session{ID: "sess-1"}
	sess.Authenticate(account.ID, 2)

	principal := runPrincipalMiddleware(t, svc, sess)
	require.NotNil(t, principal)
	require.Equal(t, account.ID, principal.UserID)
	require.Equal(t, "jo@example.com", principal.Email)
	require.Equal(t, "sess-1", principal.SessionID)
}

func TestPrincipalMiddlewareDropsStaleTokenVersion(t *testing.T) {
	repo := newMemoryRepo()
	account := repo.addAccount("jo@example.com", "hunter22-long", "ACTIVE", 2)
	svc := NewService(repo)

	sess := &shared.Session{ID: "sess-1"}
	sess.Authenticate(account.ID, 1)

	// Pre-bump session proceeds anonymous instead of failing the request.
	require.Nil(t, runPrincipalMiddleware(t, svc, sess))
}
