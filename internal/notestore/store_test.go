package notestore

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/history"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/persist"
	"github.com/starford/demotape/internal/storage"
)

// fakeClock hands out strictly increasing times unless frozen.
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	frozen bool
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.frozen {
		c.t = c.t.Add(time.Second)
	}
	return c.t
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return New(history.New(0), opts...)
}

func newPersistedStore(t *testing.T, dir string) *Store {
	t.Helper()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return newTestStore(t, WithPersister(persist.NewWriter(fs)))
}

func TestCreateSeedsNote(t *testing.T) {
	s := newTestStore(t)
	n := s.Create()

	if n.EditorFormat != models.FormatStructured {
		t.Errorf("format = %q", n.EditorFormat)
	}
	if len(n.Sections) != 1 || n.Sections[0].Type != models.DefaultSectionType || n.Sections[0].Content != "" {
		t.Errorf("sections = %+v", n.Sections)
	}
	if s.ActiveID() != n.ID {
		t.Errorf("active = %q, want %q", s.ActiveID(), n.ID)
	}
	if !s.History().Has(n.ID) {
		t.Error("history should be seeded")
	}
	if s.History().CanUndo(n.ID) {
		t.Error("fresh note must not be undoable")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	n := s.Create()

	got, _ := s.Get(n.ID)
	got.Sections[0].Content = "mutated"

	again, _ := s.Get(n.ID)
	if again.Sections[0].Content != "" {
		t.Error("Get must not expose internal state")
	}
}

func TestSetActiveUnknown(t *testing.T) {
	s := newTestStore(t)
	s.Create()
	if err := s.SetActive("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteActiveReactivatesMostRecent(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.now))
	a := s.Create()
	b := s.Create()
	c := s.Create()

	// Touch a so it becomes the most recent.
	if _, err := s.Rename(a.ID, "touched"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetActive(c.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(c.ID); err != nil {
		t.Fatal(err)
	}
	if s.ActiveID() != a.ID {
		t.Errorf("active = %q, want %q (b=%q)", s.ActiveID(), a.ID, b.ID)
	}
	if s.History().Has(c.ID) {
		t.Error("history of deleted note should be gone")
	}
}

func TestDeleteLastNoteCreatesFresh(t *testing.T) {
	s := newTestStore(t)
	n := s.Create()
	if err := s.Delete(n.ID); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	if s.ActiveID() == "" || s.ActiveID() == n.ID {
		t.Errorf("expected a fresh active note, got %q", s.ActiveID())
	}
}

func TestDeleteReleasesHandles(t *testing.T) {
	s := newTestStore(t)
	n := s.Create()
	take := models.AudioTake{ID: "t1", AudioData: base64.StdEncoding.EncodeToString([]byte("abc")), MimeType: "audio/webm"}
	if _, err := s.Update(n.ID, func(note *models.Note) error {
		note.Sections[0].Takes = append(note.Sections[0].Takes, take)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Handles().Acquire(n.ID, take); err != nil {
		t.Fatal(err)
	}
	if s.Handles().Len() != 1 {
		t.Fatalf("handles = %d", s.Handles().Len())
	}
	if err := s.Delete(n.ID); err != nil {
		t.Fatal(err)
	}
	if s.Handles().Len() != 0 {
		t.Errorf("handles leaked: %d", s.Handles().Len())
	}
}

func TestRenameRejectsBlank(t *testing.T) {
	s := newTestStore(t)
	n := s.Create()
	if _, err := s.Rename(n.ID, "   "); !errors.Is(err, apperr.ErrInvalidTitle) {
		t.Errorf("err = %v, want ErrInvalidTitle", err)
	}
	got, _ := s.Get(n.ID)
	if got.Title != "Untitled Note" {
		t.Errorf("title changed to %q", got.Title)
	}
}

func TestRenameBumpsTimestamp(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.now))
	n := s.Create()
	renamed, err := s.Rename(n.ID, "  Summer Song ")
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Title != "Summer Song" {
		t.Errorf("title = %q", renamed.Title)
	}
	if !renamed.Timestamp.After(n.Timestamp) {
		t.Error("timestamp should advance")
	}
}

func TestListByRecencyStableTies(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), frozen: true}
	s := newTestStore(t, WithClock(clock.now))
	a := s.Create()
	b := s.Create()
	c := s.Create()

	for range 5 {
		list := s.ListByRecency()
		if len(list) != 3 || list[0].ID != a.ID || list[1].ID != b.ID || list[2].ID != c.ID {
			t.Fatalf("ties must keep insertion order: %v %v %v", list[0].ID, list[1].ID, list[2].ID)
		}
	}
}

func TestListByRecencyNewestFirst(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestStore(t, WithClock(clock.now))
	a := s.Create()
	b := s.Create()

	list := s.ListByRecency()
	if list[0].ID != b.ID || list[1].ID != a.ID {
		t.Errorf("order = %s, %s", list[0].ID, list[1].ID)
	}
}

func TestLoadColdStartCreatesNote(t *testing.T) {
	s := newPersistedStore(t, t.TempDir())
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 || s.ActiveID() == "" {
		t.Errorf("cold start: len=%d active=%q", s.Len(), s.ActiveID())
	}
}

func TestPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := newPersistedStore(t, dir)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	n := s.Create()
	if _, err := s.Rename(n.ID, "Persisted"); err != nil {
		t.Fatal(err)
	}
	p, err := s.CreateProject("Album")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AssignProject(n.ID, p.ID); err != nil {
		t.Fatal(err)
	}

	reloaded := newPersistedStore(t, dir)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("len = %d, want 2", reloaded.Len())
	}
	got, err := reloaded.Get(n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Persisted" || got.ProjectID != p.ID {
		t.Errorf("reloaded note = %+v", got)
	}
	if reloaded.ActiveID() != n.ID {
		t.Errorf("most recent note should be active, got %q", reloaded.ActiveID())
	}
	if len(reloaded.Projects()) != 1 {
		t.Errorf("projects = %+v", reloaded.Projects())
	}
}

func TestDeleteProjectLeavesDanglingReference(t *testing.T) {
	s := newTestStore(t)
	n := s.Create()
	p, _ := s.CreateProject("EP")
	if _, err := s.AssignProject(n.ID, p.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteProject(p.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(n.ID)
	if got.ProjectID != p.ID {
		t.Error("delete must not cascade to notes")
	}
	if _, err := s.AssignProject(n.ID, p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("assigning a missing project: err = %v", err)
	}
}

func TestRenameProject(t *testing.T) {
	s := newTestStore(t)
	p, _ := s.CreateProject("Demo")
	if _, err := s.RenameProject(p.ID, ""); !errors.Is(err, apperr.ErrInvalidTitle) {
		t.Errorf("blank rename: err = %v", err)
	}
	got, err := s.RenameProject(p.ID, "Demos")
	if err != nil || got.Name != "Demos" {
		t.Errorf("rename = %+v, %v", got, err)
	}
	if _, err := s.RenameProject("missing", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
}

func TestListenersSeeChanges(t *testing.T) {
	var (
		mu    sync.Mutex
		kinds []string
	)
	s := newTestStore(t, WithListener(func(kind string, _ models.Note) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	}))
	n := s.Create()
	_, _ = s.Rename(n.ID, "x")
	_ = s.SetActive(n.ID)
	_ = s.Delete(n.ID)

	mu.Lock()
	defer mu.Unlock()
	want := []string{KindCreated, KindUpdated, KindActivated, KindDeleted, KindCreated}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}

type failingPersister struct {
	mu    sync.Mutex
	calls int
}

func (p *failingPersister) SaveNotes(context.Context, []models.Note) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return errors.New("disk full")
}

func (p *failingPersister) SaveProjects(context.Context, []models.Project) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return errors.New("disk full")
}

func (p *failingPersister) Load(context.Context) ([]models.Note, []models.Project, error) {
	return nil, nil, nil
}

func TestSaveReportsBothFailures(t *testing.T) {
	p := &failingPersister{}
	s := newTestStore(t, WithPersister(p))
	s.Create()

	p.mu.Lock()
	p.calls = 0
	p.mu.Unlock()

	err := s.Save(context.Background())
	if err == nil {
		t.Fatal("expected save error")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls != 2 {
		t.Errorf("calls = %d, want both keys attempted", p.calls)
	}
}
