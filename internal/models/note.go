// Package models defines the domain types for demotape and the pure
// transformations over them.
package models

import (
	"slices"
	"strings"
	"time"
)

// EditorFormat selects which field of a Note is the authoritative body.
type EditorFormat string

const (
	// FormatStructured makes Sections authoritative; PolishedNote is a derived cache.
	FormatStructured EditorFormat = "structured"
	// FormatOpen makes PolishedNote the authoritative free-text body.
	FormatOpen EditorFormat = "open"
)

// DefaultSectionType is used for seeded sections and fallback content.
const DefaultSectionType = "Verse"

// SuggestedSectionTypes lists the labels offered by the editor. Section types
// are free-form; this list is advisory only.
var SuggestedSectionTypes = []string{
	"Intro", "Verse", "Pre-Chorus", "Chorus", "Bridge", "Hook", "Outro", "Notes",
}

// Note is a single song-idea document.
type Note struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	RawTranscription string       `json:"rawTranscription"`
	Sections         []Section    `json:"sections"`
	PolishedNote     string       `json:"polishedNote"`
	EditorFormat     EditorFormat `json:"editorFormat"`
	Timestamp        time.Time    `json:"timestamp"`
	ProjectID        string       `json:"projectId,omitempty"`
}

// Section is a named, orderable chunk of a structured note. Its position in
// Note.Sections is its only identity.
type Section struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Takes   []AudioTake `json:"takes"`
}

// AudioTake is one recorded attempt attached to a section. AudioData holds the
// base64-encoded payload; playable handles are derived from it on demand and
// never stored here.
type AudioTake struct {
	ID         string    `json:"id"`
	AudioData  string    `json:"audioData"`
	MimeType   string    `json:"mimeType"`
	DurationMs int64     `json:"durationMs"`
	Timestamp  time.Time `json:"timestamp"`
}

// Project is a label notes may point at. Notes hold a weak reference.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NoteState is a value copy of a note's editable surface, used as a history entry.
type NoteState struct {
	Title        string       `json:"title"`
	Sections     []Section    `json:"sections"`
	PolishedNote string       `json:"polishedNote"`
	EditorFormat EditorFormat `json:"editorFormat"`
}

// NewNote returns a structured note with a single empty default section.
func NewNote(id string, now time.Time) Note {
	return Note{
		ID:           id,
		Title:        "Untitled Note",
		Sections:     []Section{{Type: DefaultSectionType, Takes: []AudioTake{}}},
		EditorFormat: FormatStructured,
		Timestamp:    now,
	}
}

// Snapshot deep-copies the editable fields of n.
func Snapshot(n *Note) NoteState {
	return NoteState{
		Title:        n.Title,
		Sections:     CloneSections(n.Sections),
		PolishedNote: n.PolishedNote,
		EditorFormat: n.EditorFormat,
	}
}

// Restore overwrites the editable fields of n with a copy of s. ID, Timestamp
// and ProjectID are left alone.
func Restore(n *Note, s NoteState) {
	n.Title = s.Title
	n.Sections = CloneSections(s.Sections)
	n.PolishedNote = s.PolishedNote
	n.EditorFormat = s.EditorFormat
}

// Flatten renders sections as "[type]\ncontent" blocks separated by a blank line.
func Flatten(sections []Section) string {
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = "[" + s.Type + "]\n" + s.Content
	}
	return strings.Join(parts, "\n\n")
}

// ToOpenFormat switches n to open format. The flattened sections become the body.
func ToOpenFormat(n *Note) {
	if n.EditorFormat == FormatStructured {
		n.PolishedNote = Flatten(n.Sections)
	}
	n.EditorFormat = FormatOpen
}

// ToStructuredFormat switches n to structured format. The conversion is lossy:
// with no sections the open text is wrapped as one default section, otherwise
// the existing sections win and the open text is discarded.
func ToStructuredFormat(n *Note) {
	if len(n.Sections) == 0 {
		n.Sections = []Section{{Type: DefaultSectionType, Content: n.PolishedNote, Takes: []AudioTake{}}}
	}
	n.EditorFormat = FormatStructured
	n.PolishedNote = Flatten(n.Sections)
}

// RefreshPolished re-derives the PolishedNote cache when sections are authoritative.
func (n *Note) RefreshPolished() {
	if n.EditorFormat == FormatStructured {
		n.PolishedNote = Flatten(n.Sections)
	}
}

// Clone returns a deep copy of n.
func (n Note) Clone() Note {
	n.Sections = CloneSections(n.Sections)
	return n
}

// TakeIDs returns the ids of every take in n, in document order.
func (n *Note) TakeIDs() []string {
	var ids []string
	for _, s := range n.Sections {
		for _, t := range s.Takes {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// IsEmpty reports whether the sections hold no content worth keeping: none at
// all, or exactly one section with empty content.
func IsEmpty(sections []Section) bool {
	switch len(sections) {
	case 0:
		return true
	case 1:
		return sections[0].Content == ""
	}
	return false
}

// CloneSections deep-copies sections including their takes. Take payloads are
// immutable strings and are shared.
func CloneSections(in []Section) []Section {
	if in == nil {
		return nil
	}
	out := make([]Section, len(in))
	for i, s := range in {
		out[i] = Section{Type: s.Type, Content: s.Content, Takes: slices.Clone(s.Takes)}
		if out[i].Takes == nil {
			out[i].Takes = []AudioTake{}
		}
	}
	return out
}

// Equal reports structural equality of two states.
func (s NoteState) Equal(o NoteState) bool {
	return s.Title == o.Title &&
		s.PolishedNote == o.PolishedNote &&
		s.EditorFormat == o.EditorFormat &&
		slices.EqualFunc(s.Sections, o.Sections, Section.Equal)
}

// Equal compares type, content and the ordered take list.
func (s Section) Equal(o Section) bool {
	return s.Type == o.Type && s.Content == o.Content && slices.Equal(s.Takes, o.Takes)
}
