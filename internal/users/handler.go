package users

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

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "users", Action: "read"}))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "users", Action: "write"}))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Post("/{id}/deactivate", h.deactivateInTenant)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Check{Resource: "users", Action: "delete"}))
		r.Delete("/{id}", h.softDelete)
		r.Post("/{id}/restore", h.restore)
		r.Delete("/{id}/purge", h.purge)
	})
}

type userResponse struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	HomeTenantID *int64     `json:"home_tenant_id,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, len(list))
	for i, user := range list {
		out[i] = toUserResponse(user)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

type createUserRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name"`
	Password     string `json:"password" validate:"required,min=8"`
	Status       string `json:"status" validate:"omitempty,oneof=PENDING ACTIVE"`
	HomeTenantID *int64 `json:"home_tenant_id"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Register(r.Context(), h.actor(r), User{
		Email:        req.Email,
		Name:         req.Name,
		Status:       Status(req.Status),
		HomeTenantID: req.HomeTenantID,
	}, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(created))
}

type updateUserRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.UpdateProfile(r.Context(), h.actor(r), id, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(updated))
}

type softDeleteRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req softDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && err.Error() != "EOF" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.service.SoftDelete(r.Context(), h.actor(r), id, req.Reason); err != nil {
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

func (h *Handler) deactivateInTenant(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tc := shared.TenantFromContext(r.Context())
	if tc == nil || tc.ID == 0 {
		httpx.RespondError(w, shared.Forbiddenf("tenant context required"))
		return
	}
	if err := h.service.DeactivateInTenant(r.Context(), h.actor(r), id, tc.ID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NotFoundf("user %q", raw)
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

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Status:       string(u.Status),
		HomeTenantID: u.HomeTenantID,
		DeletedAt:    u.DeletedAt,
		CreatedAt:    u.CreatedAt,
	}
}
