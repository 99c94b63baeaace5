// Package history keeps bounded per-note undo/redo stacks of note snapshots.
package history

import (
	"sync"

	"github.com/starford/demotape/internal/models"
)

// DefaultLimit is the maximum undo depth per note.
const DefaultLimit = 50

type entry struct {
	undo []models.NoteState // oldest first; undo[0] is the floor
	redo []models.NoteState
}

// Manager owns the undo/redo stacks of every note. Operations on an unknown
// note id are no-ops.
type Manager struct {
	mu      sync.Mutex
	limit   int
	entries map[string]*entry
}

// New creates a Manager that keeps at most limit undo states per note.
// A non-positive limit selects DefaultLimit.
func New(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit, entries: make(map[string]*entry)}
}

// Init seeds the history of noteID with its initial state. It does nothing if
// the note already has a history.
func (m *Manager) Init(noteID string, initial models.NoteState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[noteID]; ok {
		return
	}
	m.entries[noteID] = &entry{undo: []models.NoteState{copyState(initial)}}
}

// Has reports whether noteID has been seeded.
func (m *Manager) Has(noteID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[noteID]
	return ok
}

// Push records a new state. A state equal to the current top is ignored.
// Any forward edit clears the redo stack, and the oldest state is evicted once
// the limit is exceeded.
func (m *Manager) Push(noteID string, state models.NoteState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[noteID]
	if !ok {
		return
	}
	if n := len(e.undo); n > 0 && e.undo[n-1].Equal(state) {
		return
	}
	e.undo = append(e.undo, copyState(state))
	e.redo = nil
	if over := len(e.undo) - m.limit; over > 0 {
		e.undo = append([]models.NoteState(nil), e.undo[over:]...)
	}
}

// Undo moves the top state onto the redo stack and returns the state to apply.
// The seed state is never popped.
func (m *Manager) Undo(noteID string) (models.NoteState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[noteID]
	if !ok || len(e.undo) <= 1 {
		return models.NoteState{}, false
	}
	top := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = append(e.redo, top)
	return copyState(e.undo[len(e.undo)-1]), true
}

// Redo moves the most recently undone state back onto the undo stack and
// returns it.
func (m *Manager) Redo(noteID string) (models.NoteState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[noteID]
	if !ok || len(e.redo) == 0 {
		return models.NoteState{}, false
	}
	s := e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]
	e.undo = append(e.undo, s)
	return copyState(s), true
}

// CanUndo reports whether Undo would change anything.
func (m *Manager) CanUndo(noteID string) bool {
	u, _ := m.Depth(noteID)
	return u > 1
}

// CanRedo reports whether Redo would change anything.
func (m *Manager) CanRedo(noteID string) bool {
	_, r := m.Depth(noteID)
	return r > 0
}

// Depth returns the undo and redo stack lengths for noteID.
func (m *Manager) Depth(noteID string) (undo, redo int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[noteID]
	if !ok {
		return 0, 0
	}
	return len(e.undo), len(e.redo)
}

// Delete drops the history of noteID.
func (m *Manager) Delete(noteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, noteID)
}

// Oldest returns the floor state of noteID.
func (m *Manager) Oldest(noteID string) (models.NoteState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[noteID]
	if !ok || len(e.undo) == 0 {
		return models.NoteState{}, false
	}
	return copyState(e.undo[0]), true
}

func copyState(s models.NoteState) models.NoteState {
	s.Sections = models.CloneSections(s.Sections)
	return s
}
