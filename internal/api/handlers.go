package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/editor"
	"github.com/starford/demotape/internal/index"
	"github.com/starford/demotape/internal/markdown"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/notestore"
	"github.com/starford/demotape/internal/recorder"
	"github.com/starford/demotape/internal/restructure"
)

// Handler holds API route handlers.
type Handler struct {
	editor  *editor.Coordinator
	store   *notestore.Store
	index   index.NoteIndex
	ai      *restructure.Pipeline
	session *recorder.Session
	mic     *recorder.PushMicrophone
	prober  recorder.DurationProber
	logger  *slog.Logger
}

// NewHandler creates a new Handler. Optional dependencies may be nil.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		editor:  d.Editor,
		store:   d.Editor.Store(),
		index:   d.Index,
		ai:      d.AI,
		session: d.Session,
		mic:     d.Mic,
		prober:  d.Prober,
		logger:  logger,
	}
}

func noteID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// sectionIndex parses the {index} URL parameter. It writes the 400 itself.
func sectionIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid section index"))
		return 0, false
	}
	return i, true
}

func takeURL(noteID, takeID string) string {
	return "/api/notes/" + url.PathEscape(noteID) + "/takes/" + url.PathEscape(takeID) + "/audio"
}

func takeView(noteID string, t models.AudioTake) TakeView {
	return TakeView{
		ID:         t.ID,
		MimeType:   t.MimeType,
		DurationMs: t.DurationMs,
		Timestamp:  t.Timestamp,
		AudioURL:   takeURL(noteID, t.ID),
	}
}

func (h *Handler) view(n models.Note) NoteView {
	sections := make([]SectionView, len(n.Sections))
	for i, s := range n.Sections {
		takes := make([]TakeView, len(s.Takes))
		for j, t := range s.Takes {
			takes[j] = takeView(n.ID, t)
		}
		sections[i] = SectionView{Type: s.Type, Content: s.Content, Takes: takes}
	}
	return NoteView{
		ID:               n.ID,
		Title:            n.Title,
		RawTranscription: n.RawTranscription,
		Sections:         sections,
		PolishedNote:     n.PolishedNote,
		EditorFormat:     n.EditorFormat,
		Timestamp:        n.Timestamp,
		ProjectID:        n.ProjectID,
		Active:           h.store.ActiveID() == n.ID,
		CanUndo:          h.editor.CanUndo(n.ID),
		CanRedo:          h.editor.CanRedo(n.ID),
	}
}

// respond writes the note view, or the mapped error.
func (h *Handler) respond(w http.ResponseWriter, op string, n models.Note, err error) {
	if err != nil {
		writeError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(n))
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, most recently modified first
//	@Tags			notes
//	@Produce		json
//	@Param			project	query		string	false	"Filter by project id"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	active := h.store.ActiveID()

	items := []NoteListItem{}
	for _, n := range h.store.ListByRecency() {
		if project != "" && n.ProjectID != project {
			continue
		}
		items = append(items, NoteListItem{
			ID:        n.ID,
			Title:     n.Title,
			ProjectID: n.ProjectID,
			Timestamp: n.Timestamp,
			Active:    n.ID == active,
			Sections:  len(n.Sections),
			Takes:     len(n.TakeIDs()),
		})
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note and make it active
//	@Tags			notes
//	@Produce		json
//	@Success		201	{object}	NoteView
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	n := h.store.Create()
	writeJSON(w, http.StatusCreated, h.view(n))
}

// ImportNote handles POST /api/notes/import with a Markdown body.
//
//	@Summary		Create a note from Markdown
//	@Tags			notes
//	@Accept			plain
//	@Produce		json
//	@Success		201	{object}	NoteView
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/import [post]
func (h *Handler) ImportNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("markdown body is required"))
		return
	}
	n, err := h.editor.ImportMarkdown(data)
	if err != nil {
		writeError(w, h.logger, "import note", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(n))
}

// GetActive handles GET /api/notes/active.
func (h *Handler) GetActive(w http.ResponseWriter, r *http.Request) {
	n, ok := h.store.Active()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no active note"))
		return
	}
	writeJSON(w, http.StatusOK, h.view(n))
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Get(noteID(r))
	h.respond(w, "get note", n, err)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.editor.DeleteNote(noteID(r)); err != nil {
		writeError(w, h.logger, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateNote handles POST /api/notes/{id}/activate.
func (h *Handler) ActivateNote(w http.ResponseWriter, r *http.Request) {
	id := noteID(r)
	if err := h.store.SetActive(id); err != nil {
		writeError(w, h.logger, "activate note", err)
		return
	}
	n, err := h.store.Get(id)
	h.respond(w, "activate note", n, err)
}

// RenameNote handles PUT /api/notes/{id}/title.
func (h *Handler) RenameNote(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.editor.Rename(noteID(r), req.Title)
	h.respond(w, "rename note", n, err)
}

// AssignProject handles PUT /api/notes/{id}/project.
func (h *Handler) AssignProject(w http.ResponseWriter, r *http.Request) {
	var req AssignProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.store.AssignProject(noteID(r), req.ProjectID)
	h.respond(w, "assign project", n, err)
}

// ExportMarkdown handles GET /api/notes/{id}/markdown.
//
//	@Summary		Export a note as Markdown with YAML frontmatter
//	@Tags			notes
//	@Produce		text/markdown
//	@Param			id	path	string	true	"Note id"
//	@Success		200	{string}	string
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/markdown [get]
func (h *Handler) ExportMarkdown(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Get(noteID(r))
	if err != nil {
		writeError(w, h.logger, "export markdown", err)
		return
	}
	var project *models.Project
	if n.ProjectID != "" {
		if p, pErr := h.store.Project(n.ProjectID); pErr == nil {
			project = &p
		}
	}
	data, err := markdown.Render(n, project)
	if err != nil {
		writeError(w, h.logger, "export markdown", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across note titles and sections
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			project	query		string	false	"Restrict to a project id"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	if h.index == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("search index disabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.index.Search(index.Query{
		Text:      q,
		ProjectID: r.URL.Query().Get("project"),
		Limit:     limit,
	})
	if err != nil {
		h.logger.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	out := make([]SearchResult, len(results))
	for i, res := range results {
		out[i] = SearchResult{ID: res.ID, Title: res.Title, Snippet: res.Snippet}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: out})
}

// ApplyTranscript handles POST /api/notes/{id}/transcript: typed or pasted
// text is structured by the AI and applied like a recorded transcription.
func (h *Handler) ApplyTranscript(w http.ResponseWriter, r *http.Request) {
	var req TranscriptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := noteID(r)
	if _, err := h.store.Get(id); err != nil {
		writeError(w, h.logger, "apply transcript", err)
		return
	}
	var res restructure.Result
	if h.ai != nil {
		res = h.ai.Structure(r.Context(), req.Text)
	} else {
		res = restructure.Result{Transcript: req.Text, Sections: restructure.Fallback(req.Text), Degraded: true}
	}
	n, err := h.editor.ApplyAIResult(id, res.Transcript, res.Sections)
	if errors.Is(err, apperr.ErrNotFound) {
		h.logger.Info("api: transcript dropped, note deleted", slog.String("id", id))
	}
	h.respond(w, "apply transcript", n, err)
}
