package assignments

import (
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

// Handler manages assignment ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     *rbac.Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz *rbac.Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		authz:     authz,
		rbac:      rbac.Middleware{Service: authz, Logger: logger},
		validator: validator.New(),
	}
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "assignments", Action: "read"}))
		r.Get("/", h.listForTenant)
		r.Get("/{id}", h.get)
		r.Get("/users/{userID}", h.listForUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "assignments", Action: "write"}))
		r.Post("/", h.create)
		r.Post("/{id}/primary", h.setPrimary)
		r.Post("/{id}/status", h.setStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "assignments", Action: "delete"}))
		r.Delete("/{id}", h.revoke)
	})
}

type assignmentResponse struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	TenantID   *int64     `json:"tenant_id,omitempty"`
	RoleID     int64      `json:"role_id"`
	Status     string     `json:"status"`
	IsPrimary  bool       `json:"is_primary"`
	AssignedBy *int64     `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

func (h *Handler) listForTenant(w http.ResponseWriter, r *http.Request) {
	tc := shared.TenantFromContext(r.Context())
	if tc == nil || tc.ID == 0 {
		httpx.RespondError(w, shared.Forbiddenf("tenant context required"))
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	list, err := h.service.ListForTenant(r.Context(), tc.ID, shared.NewPagination(page, perPage, 0))
	if err != nil {
		h.logger.Error("list assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": toResponses(list)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(a))
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := h.pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListForUser(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": toResponses(list)})
}

type createAssignmentRequest struct {
	UserID      int64  `json:"user_id" validate:"required,gt=0"`
	TenantID    *int64 `json:"tenant_id"`
	RoleID      int64  `json:"role_id" validate:"required,gt=0"`
	MakePrimary bool   `json:"make_primary"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tenantID := req.TenantID
	// Non-privileged actors always assign within their own tenant.
	if tc := shared.TenantFromContext(r.Context()); tc != nil && !tc.IsSuperAdmin && tc.ID != 0 {
		id := tc.ID
		tenantID = &id
	}
	created, err := h.service.Assign(r.Context(), h.actor(r), Assignment{
		UserID:   req.UserID,
		TenantID: tenantID,
		RoleID:   req.RoleID,
	}, req.MakePrimary)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) setPrimary(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetPrimary(r.Context(), h.actor(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetStatus(r.Context(), h.actor(r), id, Status(req.Status)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Revoke(r.Context(), h.actor(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NotFoundf("assignment %q", raw)
	}
	return id, nil
}

func (h *Handler) actor(r *http.Request) shared.Actor {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		return shared.Actor{}
	}
	return shared.Actor{
		ID:           principal.UserID,
		IsSuperAdmin: h.authz.IsSuperAdmin(r.Context(), principal.UserID),
	}
}

func toResponse(a Assignment) assignmentResponse {
	return assignmentResponse{
		ID:         a.ID,
		UserID:     a.UserID,
		TenantID:   a.TenantID,
		RoleID:     a.RoleID,
		Status:     string(a.Status),
		IsPrimary:  a.IsPrimary,
		AssignedBy: a.AssignedBy,
		AssignedAt: a.AssignedAt,
		DeletedAt:  a.DeletedAt,
	}
}

func toResponses(list []Assignment) []assignmentResponse {
	out := make([]assignmentResponse, len(list))
	for i, a := range list {
		out[i] = toResponse(a)
	}
	return out
}
