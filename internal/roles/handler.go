package roles

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

// Handler manages role management endpoints.
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

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "roles", Action: "read"}))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/permissions", h.grants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "roles", Action: "write"}))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Put("/{id}/permissions", h.setPermissions)
		r.Post("/{id}/status", h.setStatus)
		r.Post("/{id}/duplicate", h.duplicate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "roles", Action: "delete"}))
		r.Delete("/{id}", h.softDelete)
		r.Post("/{id}/restore", h.restore)
		r.Delete("/{id}/purge", h.purge)
	})
}

type roleResponse struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name"`
	Type         string         `json:"type"`
	Level        string         `json:"level"`
	TenantID     *int64         `json:"tenant_id,omitempty"`
	IsSystem     bool           `json:"is_system"`
	IsActive     bool           `json:"is_active"`
	ParentRoleID *int64         `json:"parent_role_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var tenantFilter *int64
	if tc := shared.TenantFromContext(r.Context()); tc != nil && !tc.IsSuperAdmin && tc.ID != 0 {
		id := tc.ID
		tenantFilter = &id
	}
	includeTrashed := r.URL.Query().Get("trashed") == "true"
	list, err := h.service.List(r.Context(), tenantFilter, includeTrashed)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, len(list))
	for i, role := range list {
		out[i] = toRoleResponse(role)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) grants(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.service.Grants(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	names := make([]map[string]any, len(perms))
	for i, p := range perms {
		names[i] = map[string]any{
			"id":       p.ID,
			"name":     p.Name,
			"resource": p.Resource,
			"action":   p.Action,
			"scope":    string(p.Scope),
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": names})
}

type createRoleRequest struct {
	Name         string         `json:"name" validate:"required"`
	DisplayName  string         `json:"display_name"`
	Type         string         `json:"type" validate:"omitempty,oneof=SYSTEM TENANT CUSTOM"`
	Level        string         `json:"level" validate:"omitempty,oneof=GUEST USER MANAGER ADMIN SUPER_ADMIN"`
	TenantID     *int64         `json:"tenant_id"`
	ParentRoleID *int64         `json:"parent_role_id"`
	Metadata     map[string]any `json:"metadata"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role := Role{
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		Type:         RoleType(req.Type),
		Level:        Level(req.Level),
		TenantID:     req.TenantID,
		ParentRoleID: req.ParentRoleID,
		Metadata:     req.Metadata,
	}
	// Non-privileged creators always bind the role to their own tenant.
	if tc := shared.TenantFromContext(r.Context()); tc != nil && !tc.IsSuperAdmin && tc.ID != 0 {
		id := tc.ID
		role.TenantID = &id
	}
	created, err := h.service.Create(r.Context(), h.actor(r), role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(created))
}

type updateRoleRequest struct {
	Name         string         `json:"name"`
	DisplayName  string         `json:"display_name"`
	Level        string         `json:"level" validate:"omitempty,oneof=GUEST USER MANAGER ADMIN SUPER_ADMIN"`
	ParentRoleID *int64         `json:"parent_role_id"`
	Metadata     map[string]any `json:"metadata"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.Update(r.Context(), h.actor(r), Role{
		ID:           id,
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		Level:        Level(req.Level),
		ParentRoleID: req.ParentRoleID,
		Metadata:     req.Metadata,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(updated))
}

type setPermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required"`
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.service.SetPermissions(r.Context(), h.actor(r), id, req.PermissionIDs); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setStatusRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.service.SetStatus(r.Context(), h.actor(r), id, req.Active); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if err := h.service.SoftDelete(r.Context(), h.actor(r), id, force); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Restore(r.Context(), h.actor(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Purge(r.Context(), h.actor(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type duplicateRequest struct {
	Name string `json:"name"`
}

func (h *Handler) duplicate(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req duplicateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && err.Error() != "EOF" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	created, err := h.service.Duplicate(r.Context(), h.actor(r), id, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(created))
}

func (h *Handler) pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NotFoundf("role %q", raw)
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

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:           role.ID,
		Name:         role.Name,
		DisplayName:  role.DisplayName,
		Type:         string(role.Type),
		Level:        string(role.Level),
		TenantID:     role.TenantID,
		IsSystem:     role.IsSystem,
		IsActive:     role.IsActive,
		ParentRoleID: role.ParentRoleID,
		Metadata:     role.Metadata,
		DeletedAt:    role.DeletedAt,
		CreatedAt:    role.CreatedAt,
	}
}
