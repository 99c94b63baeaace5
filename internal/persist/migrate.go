package persist

import (
	"time"

	"github.com/starford/demotape/internal/models"
)

// legacyNote accepts every shape a note has been stored in. Fields that were
// added over time are pointers or nil-able so their absence is visible.
// Transient playback fields (audioUrl) are intentionally not declared, so
// they are dropped on load and can never be written back.
type legacyNote struct {
	ID               string               `json:"id"`
	Title            string               `json:"title"`
	RawTranscription string               `json:"rawTranscription"`
	Sections         []legacySection      `json:"sections"`
	PolishedNote     string               `json:"polishedNote"`
	EditorFormat     *models.EditorFormat `json:"editorFormat"`
	Timestamp        time.Time            `json:"timestamp"`
	ProjectID        string               `json:"projectId"`
}

type legacySection struct {
	Type    string             `json:"type"`
	Content string             `json:"content"`
	Takes   []models.AudioTake `json:"takes"`
}

// migrateNote brings a stored note up to the current invariants:
//   - a note without editorFormat predates sections and becomes structured,
//     wrapping its flattened text as a single default section
//   - sections without takes get an empty take list
//   - the derived PolishedNote cache is rebuilt for structured notes
func migrateNote(l legacyNote) models.Note {
	n := models.Note{
		ID:               l.ID,
		Title:            l.Title,
		RawTranscription: l.RawTranscription,
		PolishedNote:     l.PolishedNote,
		Timestamp:        l.Timestamp,
		ProjectID:        l.ProjectID,
	}
	for _, s := range l.Sections {
		takes := s.Takes
		if takes == nil {
			takes = []models.AudioTake{}
		}
		n.Sections = append(n.Sections, models.Section{Type: s.Type, Content: s.Content, Takes: takes})
	}

	switch {
	case l.EditorFormat == nil:
		if len(n.Sections) == 0 {
			n.Sections = []models.Section{{Type: models.DefaultSectionType, Content: l.PolishedNote, Takes: []models.AudioTake{}}}
		}
		n.EditorFormat = models.FormatStructured
	case *l.EditorFormat == models.FormatOpen:
		n.EditorFormat = models.FormatOpen
	default:
		n.EditorFormat = models.FormatStructured
	}

	if n.Sections == nil {
		n.Sections = []models.Section{}
	}
	n.RefreshPolished()
	return n
}
