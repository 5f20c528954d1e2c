package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-hq/meridian/internal/jobs"
	"github.com/meridian-hq/meridian/internal/tenancy"
)

// TenantCascadeHandler processes deferred assignment cascades.
type TenantCascadeHandler struct {
	tenants *tenancy.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewTenantCascadeHandler constructs the handler.
func NewTenantCascadeHandler(tenants *tenancy.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *TenantCascadeHandler {
	return &TenantCascadeHandler{tenants: tenants, logger: logger, metrics: metrics}
}

// Handle runs the batched cascade for the payload's tenant. Retries are safe:
// already flipped assignments no longer match the from-status predicate.
func (h *TenantCascadeHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload TenantCascadePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := h.metrics.Track("tenant_cascade")
	result, err := h.tenants.CascadeAssignments(ctx, payload.TenantID, payload.FromStatus, payload.ToStatus)
	if err != nil {
		h.logger.Error("tenant cascade failed",
			slog.Int64("tenant_id", payload.TenantID), slog.Any("error", err))
		return tracker.End(err)
	}
	h.logger.Info("tenant cascade completed",
		slog.Int64("tenant_id", payload.TenantID),
		slog.Int("affected", result.Affected),
		slog.Int("batches", result.Batches))
	return tracker.End(nil)
}
