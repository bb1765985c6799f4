package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terraconstructs/authuser/internal/auth"
	"github.com/terraconstructs/authuser/internal/services/iam"
)

// PrincipalHandlers wires the /principals REST endpoints.
type PrincipalHandlers struct {
	service iamAdminService
	logger  *slog.Logger
}

// NewPrincipalHandlers creates the principal handler set.
func NewPrincipalHandlers(service iamAdminService, logger *slog.Logger) *PrincipalHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrincipalHandlers{service: service, logger: logger}
}

// CreatePrincipalRequest is the body of POST /principals.
type CreatePrincipalRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// List handles GET /principals with an optional ?filter= expression.
func (h *PrincipalHandlers) List(w http.ResponseWriter, r *http.Request) {
	filter, err := auth.CompileFilter(r.URL.Query().Get("filter"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	principals, err := h.service.ListPrincipals(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, principals)
}

// Create handles POST /principals.
func (h *PrincipalHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePrincipalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	principal, err := h.service.CreatePrincipal(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, iam.NewPublicPrincipal(principal, nil))
}

// Get handles GET /principals/{id} and GET /principals/{id}/public.
func (h *PrincipalHandlers) Get(w http.ResponseWriter, r *http.Request) {
	principal, err := h.service.GetPrincipal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

// Update handles PUT /principals/{id}.
func (h *PrincipalHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req iam.PrincipalUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	principal, err := h.service.UpdatePrincipal(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, principal)
}

// Delete handles DELETE /principals/{id}.
func (h *PrincipalHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePrincipal(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

// AddRole handles POST /principals/{id}/addRole/{roleId}.
func (h *PrincipalHandlers) AddRole(w http.ResponseWriter, r *http.Request) {
	h.attach(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "roleId"))
}

func (h *PrincipalHandlers) attach(w http.ResponseWriter, r *http.Request, principalID, roleID string) {
	link, created, err := h.service.AttachRole(r.Context(), principalID, roleID)
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
