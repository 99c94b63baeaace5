package api

import (
	"context"
	"io"
	"net/http"

	"github.com/starford/demotape/internal/audio"
	"github.com/starford/demotape/internal/recorder"
)

// SessionStatus handles GET /api/session.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status())
}

// StartSession handles POST /api/session/start.
//
//	@Summary		Open the recording session for a section or the whole note
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SessionStartRequest	true	"Target"
//	@Success		200		{object}	recorder.Status
//	@Failure		403		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/start [post]
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req SessionStartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.store.Get(req.NoteID); err != nil {
		writeError(w, h.logger, "start session", err)
		return
	}
	if req.MimeType != "" && !audio.Supported[audio.Normalize(req.MimeType)] {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported mimeType"))
		return
	}
	if h.session.Status().State == recorder.StateIdle {
		h.mic.SetMimeType(req.MimeType)
	}
	target := recorder.Target{NoteID: req.NoteID, SectionIndex: req.SectionIndex}
	if err := h.session.Start(r.Context(), target); err != nil {
		writeError(w, h.logger, "start session", err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// PushChunk handles POST /api/session/chunk with a raw audio body.
func (h *Handler) PushChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, audio.MaxSize)
	n, err := io.Copy(h.mic, r.Body)
	if err != nil {
		writeError(w, h.logger, "push chunk", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"written": n})
}

// PauseSession handles POST /api/session/pause.
func (h *Handler) PauseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Pause(); err != nil {
		writeError(w, h.logger, "pause session", err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// RedoSession handles POST /api/session/redo: the paused capture is thrown
// away and a fresh one starts recording.
func (h *Handler) RedoSession(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Redo(r.Context()); err != nil {
		writeError(w, h.logger, "redo session", err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

// CancelSession handles POST /api/session/cancel.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.session.Cancel()
	writeJSON(w, http.StatusOK, h.session.Status())
}

// FinishSession handles POST /api/session/finish. The commit is not tied to
// the request: a disconnecting client does not abort transcription. Use
// cancel to drop it.
//
//	@Summary		Stop recording and commit it
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	SessionFinishResponse
//	@Failure		409	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/finish [post]
func (h *Handler) FinishSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.session.Finish(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, h.logger, "finish session", err)
		return
	}
	out := SessionFinishResponse{Note: h.view(res.Note), Degraded: res.Degraded}
	if res.Take != nil {
		tv := takeView(res.Note.ID, *res.Take)
		out.Take = &tv
	}
	writeJSON(w, http.StatusOK, out)
}
