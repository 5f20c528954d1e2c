package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-hq/meridian/internal/platform/httpx"
	"github.com/meridian-hq/meridian/internal/shared"
)

// Handler exposes the permission catalog over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	store     Store
	validator *validator.Validate
}

// NewHandler builds a catalog handler.
func NewHandler(logger *slog.Logger, service *Service, store Store) *Handler {
	return &Handler{logger: logger, service: service, store: store, validator: validator.New()}
}

// MountRoutes registers permission catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Middleware{Service: h.service, Logger: h.logger}.Require(Check{Resource: "permissions", Action: "read"}))
		r.Get("/", h.listPermissions)
	})
	r.Post("/", h.createPermission)
}

type permissionResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    string `json:"scope"`
	IsSystem bool   `json:"is_system"`
	Category string `json:"category,omitempty"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, len(perms))
	for i, p := range perms {
		out[i] = toPermissionResponse(p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

type createPermissionRequest struct {
	Name     string `json:"name" validate:"required"`
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
	Scope    string `json:"scope" validate:"required,oneof=OWN TENANT ALL"`
	Category string `json:"category"`
}

// createPermission adds a catalog entry. The catalog is immutable for everyone
// except a platform operator.
func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if !h.service.IsSuperAdmin(r.Context(), principal.UserID) {
		httpx.RespondError(w, shared.Forbiddenf("only a platform operator may extend the catalog"))
		return
	}

	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	created, err := h.store.CreatePermission(r.Context(), Permission{
		Name:     req.Name,
		Resource: req.Resource,
		Action:   req.Action,
		Scope:    Scope(req.Scope),
		Category: req.Category,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(created))
}

func toPermissionResponse(p Permission) permissionResponse {
	return permissionResponse{
		ID:       p.ID,
		Name:     p.Name,
		Resource: p.Resource,
		Action:   p.Action,
		Scope:    string(p.Scope),
		IsSystem: p.IsSystem,
		Category: p.Category,
	}
}
