package tenancy

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-hq/meridian/internal/platform/httpx"
	"github.com/meridian-hq/meridian/internal/rbac"
	"github.com/meridian-hq/meridian/internal/shared"
)

// Handler manages tenant endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW, validator: validator.New()}
}

// MountRoutes registers tenant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "tenants", Action: "read"}))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "tenants", Action: "write", Scope: rbac.ScopeAll}))
		r.Post("/", h.create)
		r.Post("/{id}/archive", h.archive)
		r.Post("/{id}/unarchive", h.unarchive)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "tenants", Action: "delete", Scope: rbac.ScopeAll}))
		r.Delete("/{id}", h.softDelete)
		r.Post("/{id}/restore", h.restore)
		r.Delete("/{id}/purge", h.purge)
	})
}

type tenantResponse struct {
	ID        int64      `json:"id"`
	Slug      string     `json:"slug"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	Tier      string     `json:"tier,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type cascadeResponse struct {
	Affected int  `json:"affected"`
	Batches  int  `json:"batches"`
	Enqueued bool `json:"enqueued"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list tenants", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	// The directory only shows the caller's own tenant unless the caller is
	// a platform operator.
	tenants = ScopeResults(shared.TenantFromContext(r.Context()), tenants)
	out := make([]tenantResponse, len(tenants))
	for i, t := range tenants {
		out[i] = toTenantResponse(t)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tenants": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTenantResponse(t))
}

type createTenantRequest struct {
	Name string `json:"name" validate:"required"`
	Slug string `json:"slug"`
	Type string `json:"type" validate:"omitempty,oneof=BUSINESS TRIAL"`
	Tier string `json:"tier"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), actorID(r), Tenant{
		Name: req.Name,
		Slug: req.Slug,
		Type: Type(req.Type),
		Tier: req.Tier,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTenantResponse(created))
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	h.cascadeOp(w, r, h.service.Archive)
}

func (h *Handler) unarchive(w http.ResponseWriter, r *http.Request) {
	h.cascadeOp(w, r, h.service.Unarchive)
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	h.cascadeOp(w, r, h.service.SoftDelete)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	h.cascadeOp(w, r, h.service.Restore)
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Purge(r.Context(), actorID(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cascadeOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actorID, id int64) (CascadeResult, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := op(r.Context(), actorID(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cascadeResponse{
		Affected: result.Affected,
		Batches:  result.Batches,
		Enqueued: result.Enqueued,
	})
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NotFoundf("tenant %q", raw)
	}
	return id, nil
}

func actorID(r *http.Request) int64 {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}

func toTenantResponse(t Tenant) tenantResponse {
	return tenantResponse{
		ID:        t.ID,
		Slug:      t.Slug,
		Name:      t.Name,
		Type:      string(t.Type),
		Status:    string(t.Status),
		Tier:      t.Tier,
		DeletedAt: t.DeletedAt,
		CreatedAt: t.CreatedAt,
	}
}
