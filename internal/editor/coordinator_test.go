package editor

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/history"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/notestore"
)

const testDebounce = 30 * time.Millisecond

func newTestCoordinator(t *testing.T) (*Coordinator, models.Note) {
	t.Helper()
	store := notestore.New(history.New(0))
	c := New(store, WithDebounce(testDebounce))
	t.Cleanup(c.Close)
	return c, store.Create()
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

// mustNote returns a checker for (models.Note, error) results, so calls read
// as mustNote(t)(c.Undo(id)).
func mustNote(t *testing.T) func(models.Note, error) models.Note {
	t.Helper()
	return func(n models.Note, err error) models.Note {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return n
	}
}

func testTake(id string) models.AudioTake {
	return models.AudioTake{
		ID:         id,
		AudioData:  base64.StdEncoding.EncodeToString([]byte("take-" + id)),
		MimeType:   "audio/webm",
		DurationMs: 1500,
	}
}

func TestEditUndoScenario(t *testing.T) {
	c, n := newTestCoordinator(t)

	if err := c.StageSections(n.ID, []SectionEdit{{Type: "Verse"}, {Type: "Chorus", Content: "la la"}}); err != nil {
		t.Fatal(err)
	}
	mustNote(t)(c.CommitEdit(n.ID))
	mustNote(t)(c.SnapshotNow(n.ID))

	if err := c.StageSection(n.ID, 1, "Chorus", "la la la"); err != nil {
		t.Fatal(err)
	}
	got := mustNote(t)(c.DebouncedSnapshot(n.ID))
	if got.Sections[1].Content != "la la la" {
		t.Fatalf("edit not committed: %+v", got.Sections)
	}
	eventually(t, time.Second, 5*time.Millisecond, func() bool { return !c.Pending(n.ID) }, "debounced snapshot never fired")

	if u, _ := c.hist.Depth(n.ID); u != 3 {
		t.Fatalf("undo depth = %d, want 3", u)
	}

	got = mustNote(t)(c.Undo(n.ID))
	if len(got.Sections) != 2 || got.Sections[1].Content != "la la" {
		t.Fatalf("first undo = %+v", got.Sections)
	}
	got = mustNote(t)(c.Undo(n.ID))
	if len(got.Sections) != 1 || got.Sections[0].Content != "" || got.Sections[0].Type != models.DefaultSectionType {
		t.Fatalf("second undo = %+v", got.Sections)
	}
	if c.CanUndo(n.ID) {
		t.Error("seed is the floor")
	}
	got = mustNote(t)(c.Undo(n.ID))
	if len(got.Sections) != 1 {
		t.Error("undo at the floor must be a no-op")
	}
}

func TestUndoFlushesPendingDebounce(t *testing.T) {
	store := notestore.New(history.New(0))
	c := New(store, WithDebounce(time.Hour))
	defer c.Close()
	n := store.Create()

	_ = c.StageSection(n.ID, 0, "Verse", "first")
	mustNote(t)(c.SnapshotNow(n.ID))
	_ = c.StageSection(n.ID, 0, "Verse", "second")
	mustNote(t)(c.DebouncedSnapshot(n.ID))

	got := mustNote(t)(c.Undo(n.ID))
	if got.Sections[0].Content != "first" {
		t.Errorf("undo should land on the snapshot before the pending edit, got %q", got.Sections[0].Content)
	}
	got = mustNote(t)(c.Redo(n.ID))
	if got.Sections[0].Content != "second" {
		t.Errorf("redo = %q", got.Sections[0].Content)
	}
}

func TestDebouncePerNote(t *testing.T) {
	store := notestore.New(history.New(0))
	c := New(store, WithDebounce(testDebounce))
	defer c.Close()
	a := store.Create()
	b := store.Create()

	_ = c.StageSection(a.ID, 0, "Verse", "a")
	mustNote(t)(c.DebouncedSnapshot(a.ID))
	_ = c.StageSection(b.ID, 0, "Verse", "b")
	mustNote(t)(c.DebouncedSnapshot(b.ID))

	eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return !c.Pending(a.ID) && !c.Pending(b.ID)
	}, "timers did not fire")

	if u, _ := c.hist.Depth(a.ID); u != 2 {
		t.Errorf("note a depth = %d, want 2 (edit to b must not pre-empt a)", u)
	}
	if u, _ := c.hist.Depth(b.ID); u != 2 {
		t.Errorf("note b depth = %d, want 2", u)
	}
}

func TestDebounceCoalesces(t *testing.T) {
	c, n := newTestCoordinator(t)
	for _, s := range []string{"l", "la", "la ", "la l", "la la"} {
		_ = c.StageSection(n.ID, 0, "Verse", s)
		mustNote(t)(c.DebouncedSnapshot(n.ID))
	}
	eventually(t, time.Second, 5*time.Millisecond, func() bool { return !c.Pending(n.ID) }, "timer did not fire")
	if u, _ := c.hist.Depth(n.ID); u != 2 {
		t.Errorf("depth = %d, want 2 (keystrokes collapse into one step)", u)
	}
}

func TestDebounceFireCommitsLateDraft(t *testing.T) {
	c, n := newTestCoordinator(t)
	_ = c.StageSection(n.ID, 0, "Verse", "one")
	mustNote(t)(c.DebouncedSnapshot(n.ID))
	_ = c.StageSection(n.ID, 0, "Verse", "two")

	eventually(t, time.Second, 5*time.Millisecond, func() bool { return !c.Pending(n.ID) }, "timer did not fire")

	stored := mustNote(t)(c.store.Get(n.ID))
	if stored.Sections[0].Content != "two" {
		t.Errorf("stored content = %q, want the edit staged during the quiet period", stored.Sections[0].Content)
	}
	if _, ok := c.Draft(n.ID); ok {
		t.Error("draft should be committed when the timer fires")
	}
	if u, _ := c.hist.Depth(n.ID); u != 2 {
		t.Errorf("depth = %d, want 2", u)
	}
	got := mustNote(t)(c.Undo(n.ID))
	if len(got.Sections) != 1 || got.Sections[0].Content != "" {
		t.Errorf("undo = %+v, want the blank starting state", got.Sections)
	}
	got = mustNote(t)(c.Redo(n.ID))
	if got.Sections[0].Content != "two" {
		t.Errorf("redo = %q, want %q", got.Sections[0].Content, "two")
	}
}

func TestUndoFlushCommitsLateDraft(t *testing.T) {
	store := notestore.New(history.New(0))
	c := New(store, WithDebounce(time.Hour))
	defer c.Close()
	n := store.Create()

	_ = c.StageSection(n.ID, 0, "Verse", "one")
	mustNote(t)(c.DebouncedSnapshot(n.ID))
	_ = c.StageSection(n.ID, 0, "Verse", "two")
	mustNote(t)(c.Undo(n.ID))

	got := mustNote(t)(c.Redo(n.ID))
	if got.Sections[0].Content != "two" {
		t.Errorf("redo = %q, the flushed snapshot should hold the late edit", got.Sections[0].Content)
	}
}

func TestStructuralOpIsOneUndoStep(t *testing.T) {
	c, n := newTestCoordinator(t)
	_ = c.StageSections(n.ID, []SectionEdit{{Type: "Verse", Content: "v"}, {Type: "Chorus", Content: "c"}, {Type: "Bridge", Content: "b"}})
	mustNote(t)(c.SnapshotNow(n.ID))

	got := mustNote(t)(c.ReorderSections(n.ID, []int{2, 0, 1}))
	if got.Sections[0].Type != "Bridge" || got.Sections[2].Type != "Chorus" {
		t.Fatalf("reorder = %+v", got.Sections)
	}
	if got.PolishedNote != "[Bridge]\nb\n\n[Verse]\nv\n\n[Chorus]\nc" {
		t.Errorf("polished cache stale: %q", got.PolishedNote)
	}

	got = mustNote(t)(c.Undo(n.ID))
	if got.Sections[0].Type != "Verse" || got.Sections[2].Type != "Bridge" {
		t.Errorf("undo reorder = %+v", got.Sections)
	}
	got = mustNote(t)(c.Redo(n.ID))
	if got.Sections[0].Type != "Bridge" {
		t.Errorf("redo reorder = %+v", got.Sections)
	}
}

func TestStructuralCommitsPendingDraftFirst(t *testing.T) {
	c, n := newTestCoordinator(t)
	_ = c.StageSection(n.ID, 0, "Verse", "typed but not snapshotted")
	mustNote(t)(c.AddSection(n.ID, "Chorus"))

	got := mustNote(t)(c.Undo(n.ID))
	if len(got.Sections) != 1 || got.Sections[0].Content != "typed but not snapshotted" {
		t.Errorf("undo should keep the committed text edit: %+v", got.Sections)
	}
}

func TestReorderRejectsBadPermutation(t *testing.T) {
	c, n := newTestCoordinator(t)
	mustNote(t)(c.AddSection(n.ID, "Chorus"))
	for _, perm := range [][]int{{0}, {0, 0}, {1, 2}, {-1, 0}} {
		if _, err := c.ReorderSections(n.ID, perm); !errors.Is(err, apperr.ErrInvalidPermutation) {
			t.Errorf("perm %v: err = %v", perm, err)
		}
	}
}

func TestSectionIndexValidated(t *testing.T) {
	c, n := newTestCoordinator(t)
	if _, err := c.DeleteSection(n.ID, 3); !errors.Is(err, apperr.ErrSectionOutOfRange) {
		t.Errorf("DeleteSection err = %v", err)
	}
	if _, err := c.ChangeSectionType(n.ID, -1, "Bridge"); !errors.Is(err, apperr.ErrSectionOutOfRange) {
		t.Errorf("ChangeSectionType err = %v", err)
	}
	if err := c.StageSection(n.ID, 1, "x", "y"); !errors.Is(err, apperr.ErrSectionOutOfRange) {
		t.Errorf("StageSection err = %v", err)
	}
	if _, err := c.AttachTake(n.ID, 2, testTake("t")); !errors.Is(err, apperr.ErrSectionOutOfRange) {
		t.Errorf("AttachTake err = %v", err)
	}
}

func TestUnknownNote(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if _, err := c.Undo("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Undo err = %v", err)
	}
	if err := c.StageTitle("missing", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("StageTitle err = %v", err)
	}
}

func TestApplyAIResultReplacesEmpty(t *testing.T) {
	c, n := newTestCoordinator(t)
	ai := []models.Section{{Type: "Verse", Content: "one"}, {Type: "Chorus", Content: "two"}}
	got := mustNote(t)(c.ApplyAIResult(n.ID, "one two", ai))
	if len(got.Sections) != 2 || got.Sections[0].Content != "one" {
		t.Fatalf("sections = %+v", got.Sections)
	}
	if got.RawTranscription != "one two" {
		t.Errorf("raw = %q", got.RawTranscription)
	}
	if got.Sections[1].Takes == nil {
		t.Error("AI sections need an empty take list")
	}

	got = mustNote(t)(c.Undo(n.ID))
	if len(got.Sections) != 1 || got.Sections[0].Content != "" {
		t.Errorf("AI apply should undo in one step: %+v", got.Sections)
	}
}

func TestApplyAIResultAppendsToContent(t *testing.T) {
	c, n := newTestCoordinator(t)
	_ = c.StageSection(n.ID, 0, "Verse", "existing")
	mustNote(t)(c.SnapshotNow(n.ID))

	got := mustNote(t)(c.ApplyAIResult(n.ID, "t", []models.Section{{Type: "Bridge", Content: "new"}}))
	if len(got.Sections) != 2 || got.Sections[0].Content != "existing" || got.Sections[1].Type != "Bridge" {
		t.Errorf("sections = %+v", got.Sections)
	}
}

func TestApplyAIResponseFallback(t *testing.T) {
	c, n := newTestCoordinator(t)
	raw := "I could not format that, sorry"
	got := mustNote(t)(c.ApplyAIResponse(n.ID, "t", raw))
	if len(got.Sections) != 1 || got.Sections[0].Content != raw {
		t.Errorf("fallback sections = %+v", got.Sections)
	}
}

func TestApplyAIResponseEmptyListUsesTranscript(t *testing.T) {
	c, n := newTestCoordinator(t)
	got := mustNote(t)(c.ApplyAIResponse(n.ID, "hum hum", "```json\n[]\n```"))
	if len(got.Sections) != 1 || got.Sections[0].Content != "hum hum" || got.Sections[0].Type != models.DefaultSectionType {
		t.Errorf("sections = %+v, want the transcript as one section", got.Sections)
	}
}

func TestApplyAIResultForDeletedNoteDropped(t *testing.T) {
	c, n := newTestCoordinator(t)
	if err := c.DeleteNote(n.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ApplyAIResult(n.ID, "t", []models.Section{{Type: "Verse", Content: "x"}}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestToggleFormatLossy(t *testing.T) {
	c, n := newTestCoordinator(t)
	_ = c.StageSections(n.ID, []SectionEdit{{Type: "Verse", Content: "a"}})
	mustNote(t)(c.SnapshotNow(n.ID))

	open := mustNote(t)(c.ToggleFormat(n.ID))
	if open.EditorFormat != models.FormatOpen || open.PolishedNote != "[Verse]\na" {
		t.Fatalf("open = %+v", open)
	}
	_ = c.StageOpenText(n.ID, "[Chorus]\nrewritten")
	mustNote(t)(c.CommitEdit(n.ID))

	back := mustNote(t)(c.ToggleFormat(n.ID))
	if back.EditorFormat != models.FormatStructured || len(back.Sections) != 1 || back.Sections[0].Content != "a" {
		t.Errorf("structured sections must win, got %+v", back.Sections)
	}
}

func TestCommitKeepsTakesByPosition(t *testing.T) {
	c, n := newTestCoordinator(t)
	mustNote(t)(c.AddSection(n.ID, "Chorus"))
	mustNote(t)(c.AttachTake(n.ID, 1, testTake("t1")))

	_ = c.StageSections(n.ID, []SectionEdit{{Type: "Verse", Content: "v"}, {Type: "Hook", Content: "h"}})
	got := mustNote(t)(c.CommitEdit(n.ID))
	if len(got.Sections[1].Takes) != 1 || got.Sections[1].Takes[0].ID != "t1" {
		t.Errorf("take lost on commit: %+v", got.Sections[1])
	}
}

func TestBlankTitleDraftKeepsTitle(t *testing.T) {
	c, n := newTestCoordinator(t)
	_ = c.StageTitle(n.ID, "   ")
	got := mustNote(t)(c.CommitEdit(n.ID))
	if got.Title != "Untitled Note" {
		t.Errorf("title = %q", got.Title)
	}
	if _, err := c.Rename(n.ID, ""); !errors.Is(err, apperr.ErrInvalidTitle) {
		t.Errorf("Rename err = %v", err)
	}
}

func TestAttachTakeSurvivesUndoOfLaterEdit(t *testing.T) {
	c, n := newTestCoordinator(t)
	mustNote(t)(c.AttachTake(n.ID, 0, testTake("t1")))
	_ = c.StageSection(n.ID, 0, "Verse", "words")
	mustNote(t)(c.SnapshotNow(n.ID))

	got := mustNote(t)(c.Undo(n.ID))
	if got.Sections[0].Content != "" || len(got.Sections[0].Takes) != 1 {
		t.Errorf("undo of text edit should keep the take: %+v", got.Sections[0])
	}
}

func TestHandlesReleasedOnDeleteSectionAndUndo(t *testing.T) {
	c, n := newTestCoordinator(t)
	handles := c.Store().Handles()

	mustNote(t)(c.AddSection(n.ID, "Chorus"))
	got := mustNote(t)(c.AttachTake(n.ID, 1, testTake("t1")))
	if _, err := handles.Acquire(n.ID, got.Sections[1].Takes[0]); err != nil {
		t.Fatal(err)
	}

	mustNote(t)(c.DeleteSection(n.ID, 1))
	if handles.Len() != 0 {
		t.Fatalf("handle leaked after section delete: %d", handles.Len())
	}

	got = mustNote(t)(c.Undo(n.ID))
	if len(got.Sections) != 2 {
		t.Fatalf("undo delete = %+v", got.Sections)
	}
	if _, err := handles.Acquire(n.ID, got.Sections[1].Takes[0]); err != nil {
		t.Fatal(err)
	}
	mustNote(t)(c.Undo(n.ID)) // back before the attach
	if handles.Len() != 0 {
		t.Errorf("handle leaked after undo removed the take: %d", handles.Len())
	}
}

func TestCommitReleasesDroppedTrailingTakes(t *testing.T) {
	c, n := newTestCoordinator(t)
	handles := c.Store().Handles()
	mustNote(t)(c.AddSection(n.ID, "Chorus"))
	got := mustNote(t)(c.AttachTake(n.ID, 1, testTake("t1")))
	_, _ = handles.Acquire(n.ID, got.Sections[1].Takes[0])

	_ = c.StageSections(n.ID, []SectionEdit{{Type: "Verse", Content: "only"}})
	mustNote(t)(c.CommitEdit(n.ID))
	if handles.Len() != 0 {
		t.Errorf("handle leaked: %d", handles.Len())
	}
}

func TestCloseStopsTimers(t *testing.T) {
	c, n := newTestCoordinator(t)
	_ = c.StageSection(n.ID, 0, "Verse", "x")
	mustNote(t)(c.DebouncedSnapshot(n.ID))
	c.Close()
	if c.Pending(n.ID) {
		t.Error("Close should drop pending timers")
	}
	time.Sleep(2 * testDebounce)
	if u, _ := c.hist.Depth(n.ID); u != 1 {
		t.Errorf("depth = %d, timer fired after Close", u)
	}
}

func TestImportMarkdown(t *testing.T) {
	c, _ := newTestCoordinator(t)

	n := mustNote(t)(c.ImportMarkdown([]byte("---\ntitle: Dropped\n---\n# Dropped\n\n## Verse\n\nfirst\n\n## Chorus\n\nhook\n")))
	if n.Title != "Dropped" || len(n.Sections) != 2 || n.Sections[1].Content != "hook" {
		t.Fatalf("imported = %+v", n)
	}
	if c.CanUndo(n.ID) {
		t.Error("imported content should be the first history state")
	}
	if c.Store().ActiveID() != n.ID {
		t.Error("imported note should become active")
	}

	open := mustNote(t)(c.ImportMarkdown([]byte("---\nformat: open\n---\nloose words\n")))
	if open.EditorFormat != models.FormatOpen || open.PolishedNote != "loose words" || open.Title != "Untitled Note" {
		t.Errorf("open import = %+v", open)
	}
}
