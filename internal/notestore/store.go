// Package notestore owns the in-memory collection of notes and projects, the
// active-note pointer and the per-note history, and writes every change
// through to the persistence layer.
package notestore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/history"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/playback"
)

// Change kinds passed to listeners.
const (
	KindCreated   = "created"
	KindUpdated   = "updated"
	KindDeleted   = "deleted"
	KindActivated = "activated"
)

// Listener observes note changes. It is called outside the store lock with a
// copy of the affected note (the removed note for KindDeleted).
type Listener func(kind string, note models.Note)

// Persister is the write-through target for the store's state.
type Persister interface {
	SaveNotes(ctx context.Context, notes []models.Note) error
	SaveProjects(ctx context.Context, projects []models.Project) error
	Load(ctx context.Context) ([]models.Note, []models.Project, error)
}

type record struct {
	note models.Note
	seq  uint64 // insertion order, breaks recency ties
}

// Store is the authoritative in-memory note collection. It is safe for
// concurrent use.
type Store struct {
	mu       sync.RWMutex
	notes    map[string]*record
	projects []models.Project
	activeID string
	seq      uint64

	history   *history.Manager
	handles   *playback.Registry
	persister Persister
	persistMu sync.Mutex // serializes snapshot+write so the newest state lands last
	logger    *slog.Logger
	listeners []Listener
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPersister enables write-through persistence.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithHandles sets the playback registry whose handles are released when
// notes are deleted.
func WithHandles(r *playback.Registry) Option {
	return func(s *Store) { s.handles = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithListener registers a change listener.
func WithListener(l Listener) Option {
	return func(s *Store) { s.listeners = append(s.listeners, l) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store using hist for undo/redo bookkeeping.
func New(hist *history.Manager, opts ...Option) *Store {
	s := &Store{
		notes:   make(map[string]*record),
		history: hist,
		handles: playback.NewRegistry(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// History returns the history manager owned by the store.
func (s *Store) History() *history.Manager {
	return s.history
}

// Handles returns the playback registry.
func (s *Store) Handles() *playback.Registry {
	return s.handles
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Load replaces the in-memory state with the persisted one. With no stored
// notes a fresh note is created, so the store always has an active note.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		if s.Len() == 0 {
			s.Create()
		}
		return nil
	}
	notes, projects, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("notestore: load: %w", err)
	}

	s.mu.Lock()
	s.notes = make(map[string]*record, len(notes))
	s.seq = 0
	for _, n := range notes {
		if _, dup := s.notes[n.ID]; dup {
			s.logger.Warn("notestore: duplicate note id dropped", slog.String("id", n.ID))
			continue
		}
		s.seq++
		s.notes[n.ID] = &record{note: n, seq: s.seq}
	}
	s.projects = projects
	s.activeID = ""
	s.mu.Unlock()

	s.logger.Info("notestore: loaded", slog.Int("notes", len(notes)), slog.Int("projects", len(projects)))

	if recent, ok := s.mostRecent(); ok {
		return s.SetActive(recent)
	}
	s.Create()
	return nil
}

// Create allocates a new structured note with one empty section, seeds its
// history and makes it active.
func (s *Store) Create() models.Note {
	n := models.NewNote(uuid.NewString(), s.now())
	n.RefreshPolished()

	s.mu.Lock()
	s.seq++
	s.notes[n.ID] = &record{note: n, seq: s.seq}
	s.activeID = n.ID
	s.history.Init(n.ID, models.Snapshot(&n))
	s.mu.Unlock()

	s.persist()
	s.notify(KindCreated, n)
	return n.Clone()
}

// Get returns a copy of the note with id.
func (s *Store) Get(id string) (models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.notes[id]
	if !ok {
		return models.Note{}, apperr.ErrNotFound
	}
	return r.note.Clone(), nil
}

// Len returns the number of notes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// ActiveID returns the id of the active note, or "" if none.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns a copy of the active note.
func (s *Store) Active() (models.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.notes[s.activeID]
	if !ok {
		return models.Note{}, false
	}
	return r.note.Clone(), true
}

// SetActive makes id the active note and seeds its history if needed.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	r, ok := s.notes[id]
	if !ok {
		s.mu.Unlock()
		return apperr.ErrNotFound
	}
	s.activeID = id
	s.history.Init(id, models.Snapshot(&r.note))
	n := r.note.Clone()
	s.mu.Unlock()

	s.notify(KindActivated, n)
	return nil
}

// Update runs fn on the note with id under the store lock, then persists and
// notifies. fn's error aborts without persisting; fn must leave the note
// unchanged in that case.
func (s *Store) Update(id string, fn func(n *models.Note) error) (models.Note, error) {
	s.mu.Lock()
	r, ok := s.notes[id]
	if !ok {
		s.mu.Unlock()
		return models.Note{}, apperr.ErrNotFound
	}
	if err := fn(&r.note); err != nil {
		s.mu.Unlock()
		return models.Note{}, err
	}
	n := r.note.Clone()
	s.mu.Unlock()

	s.persist()
	s.notify(KindUpdated, n)
	return n, nil
}

// Rename sets the note title. Blank titles are rejected. The timestamp is
// bumped so the note sorts first by recency.
func (s *Store) Rename(id, title string) (models.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Note{}, apperr.ErrInvalidTitle
	}
	return s.Update(id, func(n *models.Note) error {
		n.Title = title
		n.Timestamp = s.now()
		return nil
	})
}

// Delete removes the note, its history and its playback handles. When the
// active note is deleted the most recently modified remaining note becomes
// active, or a fresh note is created if none remain.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	r, ok := s.notes[id]
	if !ok {
		s.mu.Unlock()
		return apperr.ErrNotFound
	}
	delete(s.notes, id)
	wasActive := s.activeID == id
	if wasActive {
		s.activeID = ""
	}
	s.mu.Unlock()

	s.history.Delete(id)
	s.handles.ReleaseNote(id)
	s.persist()
	s.notify(KindDeleted, r.note)

	if !wasActive {
		return nil
	}
	if recent, ok := s.mostRecent(); ok {
		return s.SetActive(recent)
	}
	s.Create()
	return nil
}

// ListByRecency returns copies of all notes, most recently modified first.
// Equal timestamps keep insertion order.
func (s *Store) ListByRecency() []models.Note {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.notes))
	for _, r := range s.notes {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b *record) int { return cmp.Compare(a.seq, b.seq) })
	slices.SortStableFunc(recs, func(a, b *record) int { return b.note.Timestamp.Compare(a.note.Timestamp) })

	out := make([]models.Note, len(recs))
	for i, r := range recs {
		out[i] = r.note.Clone()
	}
	return out
}

func (s *Store) mostRecent() (string, bool) {
	list := s.ListByRecency()
	if len(list) == 0 {
		return "", false
	}
	return list[0].ID, true
}

// ordered returns notes in insertion order. Caller holds the lock.
func (s *Store) ordered() []models.Note {
	recs := make([]*record, 0, len(s.notes))
	for _, r := range s.notes {
		recs = append(recs, r)
	}
	slices.SortFunc(recs, func(a, b *record) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]models.Note, len(recs))
	for i, r := range recs {
		out[i] = r.note.Clone()
	}
	return out
}

// persist writes notes and projects through. Failures are logged; the
// in-memory change stands.
func (s *Store) persist() {
	if err := s.Save(context.Background()); err != nil {
		s.logger.Error("notestore: save failed", slog.String("error", err.Error()))
	}
}

// Save writes every note and project through the persister. Both keys are
// attempted even if the first write fails.
func (s *Store) Save(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	notes := s.ordered()
	projects := slices.Clone(s.projects)
	s.mu.RUnlock()

	var errs []error
	if err := s.persister.SaveNotes(ctx, notes); err != nil {
		errs = append(errs, fmt.Errorf("notestore: save notes: %w", err))
	}
	if err := s.persister.SaveProjects(ctx, projects); err != nil {
		errs = append(errs, fmt.Errorf("notestore: save projects: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Store) notify(kind string, n models.Note) {
	for _, l := range s.listeners {
		l(kind, n)
	}
}
