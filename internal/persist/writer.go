package persist

import (
	"context"
	"errors"
	"sync"

	"github.com/starford/demotape/internal/checksum"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/storage"
)

// Writer saves and loads application state through a storage.Provider,
// skipping writes whose payload has not changed since the last one.
type Writer struct {
	provider storage.Provider

	mu   sync.Mutex
	last map[string]string // key -> checksum of last written payload
}

// NewWriter creates a Writer over provider.
func NewWriter(provider storage.Provider) *Writer {
	return &Writer{provider: provider, last: make(map[string]string)}
}

// SaveNotes writes the notes key.
func (w *Writer) SaveNotes(ctx context.Context, notes []models.Note) error {
	data, err := EncodeNotes(notes)
	if err != nil {
		return err
	}
	return w.write(ctx, NotesKey, data)
}

// SaveProjects writes the projects key.
func (w *Writer) SaveProjects(ctx context.Context, projects []models.Project) error {
	data, err := EncodeProjects(projects)
	if err != nil {
		return err
	}
	return w.write(ctx, ProjectsKey, data)
}

// Load reads both keys. Missing keys yield empty results.
func (w *Writer) Load(ctx context.Context) ([]models.Note, []models.Project, error) {
	var (
		notes    []models.Note
		projects []models.Project
	)
	data, err := w.read(ctx, NotesKey)
	if err != nil {
		return nil, nil, err
	}
	if data != nil {
		if notes, err = DecodeNotes(data); err != nil {
			return nil, nil, err
		}
	}
	data, err = w.read(ctx, ProjectsKey)
	if err != nil {
		return nil, nil, err
	}
	if data != nil {
		if projects, err = DecodeProjects(data); err != nil {
			return nil, nil, err
		}
	}
	return notes, projects, nil
}

func (w *Writer) read(ctx context.Context, key string) ([]byte, error) {
	data, err := w.provider.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.last[key] = checksum.Sum(data)
	w.mu.Unlock()
	return data, nil
}

func (w *Writer) write(ctx context.Context, key string, data []byte) error {
	sum := checksum.Sum(data)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last[key] == sum {
		return nil
	}
	if err := w.provider.Set(ctx, key, data); err != nil {
		return err
	}
	w.last[key] = sum
	return nil
}
