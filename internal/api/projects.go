package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListProjects handles GET /api/projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"projects": h.store.Projects(),
	})
}

// CreateProject handles POST /api/projects.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.store.CreateProject(req.Name)
	if err != nil {
		writeError(w, h.logger, "create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// RenameProject handles PUT /api/projects/{id}.
func (h *Handler) RenameProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.store.RenameProject(chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, h.logger, "rename project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject handles DELETE /api/projects/{id}. Notes keep their dangling
// reference.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteProject(chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, "delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
