package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-hq/meridian/internal/auth"
	jobmetrics "github.com/meridian-hq/meridian/internal/jobs"
)

// SessionSweepHandler removes expired session rows on a schedule.
type SessionSweepHandler struct {
	auth    *auth.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSessionSweepHandler constructs the handler.
func NewSessionSweepHandler(authService *auth.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepHandler {
	return &SessionSweepHandler{auth: authService, logger: logger, metrics: metrics}
}

// Handle deletes sessions past their expiry.
func (h *SessionSweepHandler) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := h.metrics.Track("session_sweep")
	deleted, err := h.auth.SweepExpiredSessions(ctx)
	if err != nil {
		return tracker.End(err)
	}
	if deleted > 0 {
		h.logger.Info("expired sessions swept", slog.Int64("deleted", deleted))
	}
	return tracker.End(nil)
}
