package auth

import (
	"log/slog"
	"net/http"

	"github.com/meridian-hq/meridian/internal/shared"
)

// PrincipalMiddleware resolves the request principal from the loaded session.
// Anonymous requests pass through without a principal; route guards decide
// whether that is acceptable. A session whose token version no longer matches
// the account is treated as anonymous and destroyed.
func PrincipalMiddleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.UserID() == 0 {
				next.ServeHTTP(w, r)
				return
			}

			account, err := service.Verify(r.Context(), sess.UserID(), sess.TokenVersion())
			if err != nil {
				logger.Info("stale session rejected",
					slog.Int64("user_id", sess.UserID()), slog.String("session_id", sess.ID))
				sess.Destroy()
				next.ServeHTTP(w, r)
				return
			}

			principal := &shared.Principal{
				UserID:    account.ID,
				Email:     account.Email,
				SessionID: sess.ID,
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}
