package api

import (
	"bytes"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/audio"
	"github.com/starford/demotape/internal/models"
)

const maxUploadBytes = audio.MaxSize + 1<<20 // payload plus multipart overhead

// UploadTake handles POST /api/notes/{id}/sections/{index}/takes
// (multipart/form-data, field "file"; optional "durationMs").
//
//	@Summary		Attach a recorded take to a section
//	@Tags			takes
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id		path		string	true	"Note id"
//	@Param			index	path		int		true	"Section index"
//	@Param			file	formData	file	true	"Audio file"
//	@Success		201		{object}	NoteView
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/sections/{index}/takes [post]
func (h *Handler) UploadTake(w http.ResponseWriter, r *http.Request) {
	idx, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	mime, err := audio.Validate(data, header.Header.Get("Content-Type"))
	if err != nil {
		// Browsers often send application/octet-stream; fall back to sniffing.
		if mime, err = audio.Validate(data, ""); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}

	take := models.AudioTake{
		ID:        uuid.NewString(),
		AudioData: base64.StdEncoding.EncodeToString(data),
		MimeType:  mime,
		Timestamp: h.store.Now(),
	}
	if ms, convErr := strconv.ParseInt(r.FormValue("durationMs"), 10, 64); convErr == nil && ms >= 0 {
		take.DurationMs = ms
	} else if h.prober != nil {
		if d, probeErr := h.prober.Duration(r.Context(), data, mime); probeErr == nil {
			take.DurationMs = d.Milliseconds()
		} else {
			h.logger.Debug("api: probe failed", slog.String("error", probeErr.Error()))
		}
	}

	n, err := h.editor.AttachTake(noteID(r), idx, take)
	if err != nil {
		writeError(w, h.logger, "upload take", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(n))
}

// DeleteTake handles DELETE /api/notes/{id}/sections/{index}/takes/{takeID}.
func (h *Handler) DeleteTake(w http.ResponseWriter, r *http.Request) {
	idx, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	n, err := h.editor.DeleteTake(noteID(r), idx, chi.URLParam(r, "takeID"))
	h.respond(w, "delete take", n, err)
}

// TakeAudio handles GET /api/notes/{id}/takes/{takeID}/audio. The payload is
// served from the playback handle registry, decoding it on first request.
func (h *Handler) TakeAudio(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Get(noteID(r))
	if err != nil {
		writeError(w, h.logger, "take audio", err)
		return
	}
	takeID := chi.URLParam(r, "takeID")
	take, found := findTake(n, takeID)
	if !found {
		writeError(w, h.logger, "take audio", apperr.ErrNotFound)
		return
	}
	handle, err := h.store.Handles().Acquire(n.ID, take)
	if err != nil {
		writeError(w, h.logger, "take audio", err)
		return
	}
	w.Header().Set("Content-Type", handle.MimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, takeID, take.Timestamp, bytes.NewReader(handle.Data))
}

func findTake(n models.Note, takeID string) (models.AudioTake, bool) {
	for _, s := range n.Sections {
		for _, t := range s.Takes {
			if t.ID == takeID {
				return t, true
			}
		}
	}
	return models.AudioTake{}, false
}
