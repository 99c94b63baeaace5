package api

import (
	"net/http"

	"github.com/starford/demotape/internal/models"
)

// applySnapshot commits staged edits according to the requested policy.
// "none" leaves the draft staged and returns the stored note.
func (h *Handler) applySnapshot(id, policy string) (models.Note, error) {
	switch policy {
	case SnapshotNow:
		return h.editor.SnapshotNow(id)
	case SnapshotDebounced:
		return h.editor.DebouncedSnapshot(id)
	}
	return h.store.Get(id)
}

// StageDraft handles PUT /api/notes/{id}/draft.
//
//	@Summary		Stage title, sections or open text
//	@Description	snapshot=none keeps the edit staged; now commits and records an undo step;
//	@Description	debounced commits and records the undo step after a quiet period.
//	@Tags			editing
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Note id"
//	@Param			body	body		DraftRequest	true	"Draft"
//	@Success		200		{object}	NoteView
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/draft [put]
func (h *Handler) StageDraft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := noteID(r)
	if req.Title != nil {
		if err := h.editor.StageTitle(id, *req.Title); err != nil {
			writeError(w, h.logger, "stage draft", err)
			return
		}
	}
	if req.Sections != nil {
		if err := h.editor.StageSections(id, req.Sections); err != nil {
			writeError(w, h.logger, "stage draft", err)
			return
		}
	}
	if req.OpenText != nil {
		if err := h.editor.StageOpenText(id, *req.OpenText); err != nil {
			writeError(w, h.logger, "stage draft", err)
			return
		}
	}
	n, err := h.applySnapshot(id, req.Snapshot)
	h.respond(w, "stage draft", n, err)
}

// StageSection handles PUT /api/notes/{id}/draft/sections/{index}.
func (h *Handler) StageSection(w http.ResponseWriter, r *http.Request) {
	idx, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	var req SectionDraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := noteID(r)
	if err := h.editor.StageSection(id, idx, req.Type, req.Content); err != nil {
		writeError(w, h.logger, "stage section", err)
		return
	}
	n, err := h.applySnapshot(id, req.Snapshot)
	h.respond(w, "stage section", n, err)
}

// GetDraft handles GET /api/notes/{id}/draft.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id := noteID(r)
	if _, err := h.store.Get(id); err != nil {
		writeError(w, h.logger, "get draft", err)
		return
	}
	d, ok := h.editor.Draft(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Commit handles POST /api/notes/{id}/commit: staged edits are written
// without recording an undo step.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	n, err := h.editor.CommitEdit(noteID(r))
	h.respond(w, "commit", n, err)
}

// Snapshot handles POST /api/notes/{id}/snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	n, err := h.editor.SnapshotNow(noteID(r))
	h.respond(w, "snapshot", n, err)
}

// Undo handles POST /api/notes/{id}/undo. With nothing to undo the note is
// returned unchanged.
//
//	@Summary		Undo the last recorded step
//	@Tags			history
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/undo [post]
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	n, err := h.editor.Undo(noteID(r))
	h.respond(w, "undo", n, err)
}

// Redo handles POST /api/notes/{id}/redo.
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	n, err := h.editor.Redo(noteID(r))
	h.respond(w, "redo", n, err)
}

// History handles GET /api/notes/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id := noteID(r)
	if _, err := h.store.Get(id); err != nil {
		writeError(w, h.logger, "history", err)
		return
	}
	undo, redo := h.store.History().Depth(id)
	writeJSON(w, http.StatusOK, HistoryResponse{
		CanUndo:   h.editor.CanUndo(id),
		CanRedo:   h.editor.CanRedo(id),
		UndoDepth: undo,
		RedoDepth: redo,
		Pending:   h.editor.Pending(id),
	})
}

// AddSection handles POST /api/notes/{id}/sections.
func (h *Handler) AddSection(w http.ResponseWriter, r *http.Request) {
	var req AddSectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.editor.AddSection(noteID(r), req.Type)
	h.respond(w, "add section", n, err)
}

// ReorderSections handles PUT /api/notes/{id}/sections/order.
//
//	@Summary		Reorder sections as one undo step
//	@Tags			sections
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Note id"
//	@Param			body	body		ReorderRequest	true	"New order"
//	@Success		200		{object}	NoteView
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/sections/order [put]
func (h *Handler) ReorderSections(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.editor.ReorderSections(noteID(r), req.Order)
	h.respond(w, "reorder sections", n, err)
}

// MoveSection handles POST /api/notes/{id}/sections/{index}/move.
func (h *Handler) MoveSection(w http.ResponseWriter, r *http.Request) {
	idx, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	var req MoveSectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.editor.MoveSection(noteID(r), idx, req.To)
	h.respond(w, "move section", n, err)
}

// DeleteSection handles DELETE /api/notes/{id}/sections/{index}.
func (h *Handler) DeleteSection(w http.ResponseWriter, r *http.Request) {
	idx, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	n, err := h.editor.DeleteSection(noteID(r), idx)
	h.respond(w, "delete section", n, err)
}

// ChangeSectionType handles PUT /api/notes/{id}/sections/{index}/type.
func (h *Handler) ChangeSectionType(w http.ResponseWriter, r *http.Request) {
	idx, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	var req SectionTypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.editor.ChangeSectionType(noteID(r), idx, req.Type)
	h.respond(w, "change section type", n, err)
}

// ToggleFormat handles POST /api/notes/{id}/format/toggle.
func (h *Handler) ToggleFormat(w http.ResponseWriter, r *http.Request) {
	n, err := h.editor.ToggleFormat(noteID(r))
	h.respond(w, "toggle format", n, err)
}
