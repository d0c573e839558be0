package admins

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ouptel/ouptel-admin/internal/platform/httpx"
	"github.com/ouptel/ouptel-admin/internal/rbac"
	"github.com/ouptel/ouptel-admin/internal/shared"
)

// Handler manages admin listing and role assignment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	roles     *rbac.Service
	validator *validator.Validate
	mw        rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, roles *rbac.Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, roles: roles, validator: validator.New(), mw: mw}
}

// MountRoutes registers admin management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Require(shared.PermManageUsers))
		r.Get("/", h.list)
		r.Get("/{id}/roles", h.listRoles)
		r.Post("/{id}/roles", h.assignRole)
		r.Delete("/{id}/roles/{roleID}", h.revokeRole)
	})
}

type adminResponse struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	AdminLevel string `json:"admin_level"`
	IsActive   bool   `json:"is_active"`
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if limit <= 0 {
		limit = 25
	}
	pagination := shared.NewPagination(page, limit, 0)

	admins, total, err := h.service.List(r.Context(), pagination.PerPage, (pagination.Page-1)*pagination.PerPage)
	if err != nil {
		h.logger.Error("list admins", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]adminResponse, 0, len(admins))
	for _, a := range admins {
		out = append(out, toAdminResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"admins":     out,
		"pagination": shared.NewPagination(pagination.Page, pagination.PerPage, total),
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		h.notFoundOr500(w, "get admin", err)
		return
	}
	roles, err := h.roles.UserRoles(r.Context(), id)
	if err != nil {
		h.logger.Error("list user roles", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	type roleOut struct {
		ID           int64  `json:"id"`
		Name         string `json:"name"`
		IsSuperAdmin bool   `json:"is_super_admin"`
	}
	out := make([]roleOut, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleOut{ID: role.ID, Name: role.Name, IsSuperAdmin: role.IsSuperAdmin})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": id, "roles": out})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "role_id required")
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	if err := h.roles.AssignRole(r.Context(), actor, id, req.RoleID); err != nil {
		h.notFoundOr500(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	if err := h.roles.RevokeRole(r.Context(), actor, id, roleID); err != nil {
		h.notFoundOr500(w, "revoke role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) notFoundOr500(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "record not found")
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func toAdminResponse(a Admin) adminResponse {
	return adminResponse{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		AdminLevel: a.AdminLevel,
		IsActive:   a.IsActive,
	}
}
