// Package persist serializes notes and projects to the key-value layout used
// by the storage provider: an ordered JSON list of [id, value] pairs per key.
package persist

import (
	"encoding/json"
	"fmt"

	"github.com/starford/demotape/internal/models"
)

// Storage keys.
const (
	NotesKey    = "voiceNotes"
	ProjectsKey = "voiceProjects"
)

// EncodeNotes writes notes as [[id, note], ...] in the given order.
func EncodeNotes(notes []models.Note) ([]byte, error) {
	pairs := make([][2]any, len(notes))
	for i, n := range notes {
		pairs[i] = [2]any{n.ID, n}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("persist: encode notes: %w", err)
	}
	return data, nil
}

// DecodeNotes parses the notes layout and migrates every entry to the current
// shape. Order is preserved.
func DecodeNotes(data []byte) ([]models.Note, error) {
	var pairs []pair[legacyNote]
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("persist: decode notes: %w", err)
	}
	out := make([]models.Note, 0, len(pairs))
	for _, p := range pairs {
		n := migrateNote(p.Value)
		if n.ID == "" {
			n.ID = p.ID
		}
		out = append(out, n)
	}
	return out, nil
}

// EncodeProjects writes projects as [[id, project], ...].
func EncodeProjects(projects []models.Project) ([]byte, error) {
	pairs := make([][2]any, len(projects))
	for i, p := range projects {
		pairs[i] = [2]any{p.ID, p}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("persist: encode projects: %w", err)
	}
	return data, nil
}

// DecodeProjects parses the projects layout.
func DecodeProjects(data []byte) ([]models.Project, error) {
	var pairs []pair[models.Project]
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("persist: decode projects: %w", err)
	}
	out := make([]models.Project, 0, len(pairs))
	for _, p := range pairs {
		v := p.Value
		if v.ID == "" {
			v.ID = p.ID
		}
		out = append(out, v)
	}
	return out, nil
}

// pair decodes a two-element JSON array [id, value].
type pair[T any] struct {
	ID    string
	Value T
}

func (p *pair[T]) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("expected [id, value] pair, got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.ID); err != nil {
		return fmt.Errorf("pair id: %w", err)
	}
	return json.Unmarshal(raw[1], &p.Value)
}
