// Package playback tracks transient playable handles derived from the durable
// base64 payload of audio takes. Handles are never persisted and must be
// released when their take is superseded or deleted.
package playback

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/starford/demotape/internal/models"
)

// Handle is a decoded, ready-to-serve copy of a take's audio.
type Handle struct {
	NoteID   string
	TakeID   string
	MimeType string
	Data     []byte
}

// Registry owns every live handle, keyed by take id.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Acquire returns the handle for take, decoding the payload on first use.
func (r *Registry) Acquire(noteID string, take models.AudioTake) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[take.ID]; ok {
		return h, nil
	}
	data, err := base64.StdEncoding.DecodeString(take.AudioData)
	if err != nil {
		return nil, fmt.Errorf("playback: decode take %s: %w", take.ID, err)
	}
	h := &Handle{NoteID: noteID, TakeID: take.ID, MimeType: take.MimeType, Data: data}
	r.handles[take.ID] = h
	return h, nil
}

// Release drops the handle for takeID, if any.
func (r *Registry) Release(takeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, takeID)
}

// ReleaseNote drops every handle owned by noteID.
func (r *Registry) ReleaseNote(noteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range r.handles {
		if h.NoteID == noteID {
			delete(r.handles, id)
		}
	}
}

// Reconcile drops handles of n whose takes are no longer present in it.
func (r *Registry) Reconcile(n models.Note) {
	live := make(map[string]struct{})
	for _, id := range n.TakeIDs() {
		live[id] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range r.handles {
		if h.NoteID != n.ID {
			continue
		}
		if _, ok := live[id]; !ok {
			delete(r.handles, id)
		}
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
