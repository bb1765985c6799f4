package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terraconstructs/authuser/internal/auth"
)

// RoleHandlers wires the /roles REST endpoints.
type RoleHandlers struct {
	service iamAdminService
	logger  *slog.Logger
}

// NewRoleHandlers creates the role handler set.
func NewRoleHandlers(service iamAdminService, logger *slog.Logger) *RoleHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleHandlers{service: service, logger: logger}
}

// RoleRequest is the body of role create and update.
type RoleRequest struct {
	Name string `json:"name"`
}

// AttachPrincipalRequest is the body of POST /roles/{id}.
type AttachPrincipalRequest struct {
	ID string `json:"id"`
}

// List handles GET /roles with an optional ?filter= expression.
func (h *RoleHandlers) List(w http.ResponseWriter, r *http.Request) {
	filter, err := auth.CompileFilter(r.URL.Query().Get("filter"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	roles, err := h.service.ListRoles(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// FindOrCreate handles GET /roles/findOrCreate/{name}.
func (h *RoleHandlers) FindOrCreate(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.FindOrCreateRole(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// Get handles GET /roles/{id}.
func (h *RoleHandlers) Get(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// Create handles POST /roles.
func (h *RoleHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	role, err := h.service.CreateRole(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

// Update handles PUT /roles/{id}.
func (h *RoleHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	role, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// Delete handles DELETE /roles/{id}.
func (h *RoleHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

// AttachPrincipal handles POST /roles/{id}: the role comes from the path and
// the principal from the body.
func (h *RoleHandlers) AttachPrincipal(w http.ResponseWriter, r *http.Request) {
	var req AttachPrincipalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if req.ID == "" {
		http.Error(w, "principal id is required", http.StatusBadRequest)
		return
	}

	link, created, err := h.service.AttachRole(r.Context(), req.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, link)
}
