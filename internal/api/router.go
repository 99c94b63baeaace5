package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/demotape/internal/editor"
	"github.com/starford/demotape/internal/index"
	"github.com/starford/demotape/internal/recorder"
	"github.com/starford/demotape/internal/restructure"
)

// Deps are the collaborators the API serves. Editor, Session and Mic are
// required; the rest may be nil.
type Deps struct {
	Editor  *editor.Coordinator
	Index   index.NoteIndex
	AI      *restructure.Pipeline
	Session *recorder.Session
	Mic     *recorder.PushMicrophone
	Prober  recorder.DurationProber
	Events  http.Handler
	Logger  *slog.Logger
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// Events, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(d Deps, authEnabled bool, token string) chi.Router {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Post("/import", h.ImportNote)
		r.Get("/active", h.GetActive)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetNote)
			r.Delete("/", h.DeleteNote)
			r.Post("/activate", h.ActivateNote)
			r.Put("/title", h.RenameNote)
			r.Put("/project", h.AssignProject)
			r.Get("/markdown", h.ExportMarkdown)
			r.Post("/transcript", h.ApplyTranscript)

			// Edits and history.
			r.Get("/draft", h.GetDraft)
			r.Put("/draft", h.StageDraft)
			r.Put("/draft/sections/{index}", h.StageSection)
			r.Post("/commit", h.Commit)
			r.Post("/snapshot", h.Snapshot)
			r.Post("/undo", h.Undo)
			r.Post("/redo", h.Redo)
			r.Get("/history", h.History)

			// Structural operations.
			r.Post("/sections", h.AddSection)
			r.Put("/sections/order", h.ReorderSections)
			r.Post("/sections/{index}/move", h.MoveSection)
			r.Delete("/sections/{index}", h.DeleteSection)
			r.Put("/sections/{index}/type", h.ChangeSectionType)
			r.Post("/format/toggle", h.ToggleFormat)

			// Takes.
			r.Post("/sections/{index}/takes", h.UploadTake)
			r.Delete("/sections/{index}/takes/{takeID}", h.DeleteTake)
			r.Get("/takes/{takeID}/audio", h.TakeAudio)
		})
	})

	r.Get("/search", h.Search)

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Post("/", h.CreateProject)
		r.Put("/{id}", h.RenameProject)
		r.Delete("/{id}", h.DeleteProject)
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.SessionStatus)
		r.Post("/start", h.StartSession)
		r.Post("/chunk", h.PushChunk)
		r.Post("/pause", h.PauseSession)
		r.Post("/redo", h.RedoSession)
		r.Post("/finish", h.FinishSession)
		r.Post("/cancel", h.CancelSession)
	})

	// SSE endpoint (protected by same auth middleware).
	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}

	return r
}
