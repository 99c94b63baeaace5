package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/demotape/internal/editor"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/recorder"
)

// Snapshot policies for draft staging.
const (
	SnapshotNone      = "none"
	SnapshotNow       = "now"
	SnapshotDebounced = "debounced"
)

var snapshotRule = validation.In(SnapshotNone, SnapshotNow, SnapshotDebounced)

// TakeView is an audio take without its payload. AudioURL serves the bytes.
type TakeView struct {
	ID         string    `json:"id" validate:"required"`
	MimeType   string    `json:"mimeType" example:"audio/webm" validate:"required"`
	DurationMs int64     `json:"durationMs" example:"1500"`
	Timestamp  time.Time `json:"timestamp"`
	AudioURL   string    `json:"audioUrl" validate:"required"`
}

// SectionView is a section as returned by the API.
type SectionView struct {
	Type    string     `json:"type" example:"Chorus" validate:"required"`
	Content string     `json:"content"`
	Takes   []TakeView `json:"takes" validate:"required"`
}

// NoteView is the full note response.
type NoteView struct {
	ID               string              `json:"id" validate:"required"`
	Title            string              `json:"title" example:"Summer hook" validate:"required"`
	RawTranscription string              `json:"rawTranscription"`
	Sections         []SectionView       `json:"sections" validate:"required"`
	PolishedNote     string              `json:"polishedNote"`
	EditorFormat     models.EditorFormat `json:"editorFormat" example:"structured" validate:"required"`
	Timestamp        time.Time           `json:"timestamp"`
	ProjectID        string              `json:"projectId,omitempty"`
	Active           bool                `json:"active"`
	CanUndo          bool                `json:"canUndo"`
	CanRedo          bool                `json:"canRedo"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID        string    `json:"id" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	ProjectID string    `json:"projectId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Active    bool      `json:"active"`
	Sections  int       `json:"sections"`
	Takes     int       `json:"takes"`
}

// NoteListResponse wraps note listings, most recent first.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// HistoryResponse describes the undo state of a note.
type HistoryResponse struct {
	CanUndo   bool `json:"canUndo"`
	CanRedo   bool `json:"canRedo"`
	UndoDepth int  `json:"undoDepth"`
	RedoDepth int  `json:"redoDepth"`
	Pending   bool `json:"pending"`
}

// RenameRequest sets a note or project name.
type RenameRequest struct {
	Title string `json:"title" example:"Summer hook" validate:"required"`
}

func (r *RenameRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
	)
}

// AssignProjectRequest points a note at a project. An empty id clears it.
type AssignProjectRequest struct {
	ProjectID string `json:"projectId"`
}

func (r *AssignProjectRequest) Validate() error { return nil }

// DraftRequest stages view state. Omitted fields are left as staged.
type DraftRequest struct {
	Title    *string              `json:"title,omitempty"`
	Sections []editor.SectionEdit `json:"sections,omitempty"`
	OpenText *string              `json:"openText,omitempty"`
	Snapshot string               `json:"snapshot" example:"debounced"`
}

func (r *DraftRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Snapshot, snapshotRule),
		validation.Field(&r.Sections, validation.Each(validation.By(validSectionEdit))),
	)
}

// SectionDraftRequest stages a single section.
type SectionDraftRequest struct {
	Type     string `json:"type" example:"Verse"`
	Content  string `json:"content"`
	Snapshot string `json:"snapshot" example:"debounced"`
}

func (r *SectionDraftRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Snapshot, snapshotRule),
	)
}

func validSectionEdit(v any) error {
	e, _ := v.(editor.SectionEdit)
	return validation.Validate(e.Content, validation.Length(0, 100_000))
}

// AddSectionRequest appends a section.
type AddSectionRequest struct {
	Type string `json:"type" example:"Bridge"`
}

func (r *AddSectionRequest) Validate() error {
	return validation.ValidateStruct(r, validation.Field(&r.Type, validation.Length(0, 64)))
}

// ReorderRequest sets the section order: position i receives the section
// currently at Order[i].
type ReorderRequest struct {
	Order []int `json:"order" example:"1,0,2" validate:"required"`
}

func (r *ReorderRequest) Validate() error {
	return validation.ValidateStruct(r, validation.Field(&r.Order, validation.Required))
}

// MoveSectionRequest moves one section.
type MoveSectionRequest struct {
	To int `json:"to" example:"0"`
}

func (r *MoveSectionRequest) Validate() error {
	return validation.ValidateStruct(r, validation.Field(&r.To, validation.Min(0)))
}

// SectionTypeRequest relabels a section. A blank type becomes the default.
type SectionTypeRequest struct {
	Type string `json:"type" example:"Chorus"`
}

func (r *SectionTypeRequest) Validate() error {
	return validation.ValidateStruct(r, validation.Field(&r.Type, validation.Length(0, 64)))
}

// TranscriptRequest runs text through the structuring model and applies it.
type TranscriptRequest struct {
	Text string `json:"text" validate:"required"`
}

func (r *TranscriptRequest) Validate() error {
	return validation.ValidateStruct(r, validation.Field(&r.Text, validation.Required))
}

// ProjectRequest creates or renames a project.
type ProjectRequest struct {
	Name string `json:"name" example:"Album" validate:"required"`
}

func (r *ProjectRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// SessionStartRequest opens the recording session. SectionIndex -1 records
// the whole note for transcription.
type SessionStartRequest struct {
	NoteID       string `json:"noteId" validate:"required"`
	SectionIndex int    `json:"sectionIndex" example:"0"`
	MimeType     string `json:"mimeType" example:"audio/webm;codecs=opus"`
}

func (r *SessionStartRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.NoteID, validation.Required),
		validation.Field(&r.SectionIndex, validation.Min(recorder.WholeNote)),
	)
}

// SessionFinishResponse reports a committed recording.
type SessionFinishResponse struct {
	Note     NoteView  `json:"note"`
	Take     *TakeView `json:"take,omitempty"`
	Degraded bool      `json:"degraded"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	ID      string `json:"id" validate:"required"`
	Title   string `json:"title" example:"Summer hook" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}
