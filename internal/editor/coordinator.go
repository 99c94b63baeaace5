// Package editor is the transactional boundary between incoming edits and the
// note model. It stages drafts from the presentation layer, applies them to the
// store, and decides when a history snapshot is taken.
package editor

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/history"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/notestore"
	"github.com/starford/demotape/internal/restructure"
)

// DefaultDebounce is the quiet period before a debounced snapshot is taken.
const DefaultDebounce = time.Second

// SectionEdit is the (type, content) pair the view holds for one section.
type SectionEdit struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Draft is the staged, not yet committed view state of one note. Nil fields
// were not staged.
type Draft struct {
	Title    *string       `json:"title,omitempty"`
	Sections []SectionEdit `json:"sections,omitempty"`
	OpenText *string       `json:"openText,omitempty"`
}

type pending struct {
	timer *time.Timer
	gen   uint64
}

// Coordinator serializes every edit that reaches the note store.
type Coordinator struct {
	store    *notestore.Store
	hist     *history.Manager
	logger   *slog.Logger
	debounce time.Duration

	mu     sync.Mutex
	drafts map[string]*Draft
	timers map[string]*pending
	gen    uint64
	closed bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDebounce sets the snapshot quiet period.
func WithDebounce(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator over store.
func New(store *notestore.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		hist:     store.History(),
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		drafts:   make(map[string]*Draft),
		timers:   make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying note store.
func (c *Coordinator) Store() *notestore.Store {
	return c.store
}

// StageTitle stages a title edit.
func (c *Coordinator) StageTitle(id, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.draftLocked(id)
	if err != nil {
		return err
	}
	d.Title = &title
	return nil
}

// StageSections stages the full ordered section list as the view shows it.
func (c *Coordinator) StageSections(id string, sections []SectionEdit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.draftLocked(id)
	if err != nil {
		return err
	}
	d.Sections = slices.Clone(sections)
	if d.Sections == nil {
		d.Sections = []SectionEdit{}
	}
	return nil
}

// StageSection stages an edit of the section at index. The draft section list
// is seeded from the note on first use.
func (c *Coordinator) StageSection(id string, index int, typ, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.draftLocked(id)
	if err != nil {
		return err
	}
	if d.Sections == nil {
		n, err := c.store.Get(id)
		if err != nil {
			return err
		}
		d.Sections = make([]SectionEdit, len(n.Sections))
		for i, s := range n.Sections {
			d.Sections[i] = SectionEdit{Type: s.Type, Content: s.Content}
		}
	}
	if index < 0 || index >= len(d.Sections) {
		return apperr.ErrSectionOutOfRange
	}
	d.Sections[index] = SectionEdit{Type: typ, Content: content}
	return nil
}

// StageOpenText stages the free-text body of an open-format note.
func (c *Coordinator) StageOpenText(id, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, err := c.draftLocked(id)
	if err != nil {
		return err
	}
	d.OpenText = &text
	return nil
}

// Draft returns a copy of the staged draft for id.
func (c *Coordinator) Draft(id string) (Draft, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drafts[id]
	if !ok {
		return Draft{}, false
	}
	out := *d
	out.Sections = slices.Clone(d.Sections)
	return out, true
}

// CommitEdit applies the staged draft to the note. Without a draft the note
// is returned unchanged.
func (c *Coordinator) CommitEdit(id string) (models.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitLocked(id)
}

// SnapshotNow commits the draft and records the result as an undo step.
func (c *Coordinator) SnapshotNow(id string) (models.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureHistory(id); err != nil {
		return models.Note{}, err
	}
	n, err := c.commitLocked(id)
	if err != nil {
		return models.Note{}, err
	}
	c.cancelTimerLocked(id)
	c.hist.Push(id, models.Snapshot(&n))
	return n, nil
}

// DebouncedSnapshot commits the draft and schedules a snapshot once no
// further call for the same note arrives within the quiet period. Each note
// has its own timer.
func (c *Coordinator) DebouncedSnapshot(id string) (models.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureHistory(id); err != nil {
		return models.Note{}, err
	}
	n, err := c.commitLocked(id)
	if err != nil {
		return models.Note{}, err
	}
	if c.closed {
		return n, nil
	}
	c.cancelTimerLocked(id)
	c.gen++
	gen := c.gen
	c.timers[id] = &pending{
		gen:   gen,
		timer: time.AfterFunc(c.debounce, func() { c.fire(id, gen) }),
	}
	return n, nil
}

// Pending reports whether a debounced snapshot is scheduled for id.
func (c *Coordinator) Pending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timers[id]
	return ok
}

// Flush takes a pending debounced snapshot immediately.
func (c *Coordinator) Flush(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked(id)
}

// Close stops all pending timers. Later debounced calls commit without
// scheduling.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, p := range c.timers {
		p.timer.Stop()
		delete(c.timers, id)
	}
}

func (c *Coordinator) fire(id string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.timers[id]
	if !ok || p.gen != gen || c.closed {
		return
	}
	delete(c.timers, id)
	c.pushCurrent(id)
}

func (c *Coordinator) flushLocked(id string) {
	p, ok := c.timers[id]
	if !ok {
		return
	}
	p.timer.Stop()
	delete(c.timers, id)
	c.pushCurrent(id)
}

func (c *Coordinator) cancelTimerLocked(id string) {
	if p, ok := c.timers[id]; ok {
		p.timer.Stop()
		delete(c.timers, id)
	}
}

// pushCurrent commits whatever was staged during the quiet period and then
// snapshots the stored note.
func (c *Coordinator) pushCurrent(id string) {
	n, err := c.commitLocked(id)
	if err != nil {
		c.logger.Debug("editor: snapshot skipped, note gone", slog.String("id", id))
		return
	}
	c.hist.Push(id, models.Snapshot(&n))
}

func (c *Coordinator) ensureHistory(id string) error {
	n, err := c.store.Get(id)
	if err != nil {
		return err
	}
	c.hist.Init(id, models.Snapshot(&n))
	return nil
}

func (c *Coordinator) draftLocked(id string) (*Draft, error) {
	if _, err := c.store.Get(id); err != nil {
		return nil, err
	}
	d, ok := c.drafts[id]
	if !ok {
		d = &Draft{}
		c.drafts[id] = d
	}
	return d, nil
}

// commitLocked writes the draft through the single-authority rule. Structured
// notes take the draft's sections by position, keeping each position's takes;
// open notes take the draft's body.
func (c *Coordinator) commitLocked(id string) (models.Note, error) {
	d, ok := c.drafts[id]
	if !ok {
		return c.store.Get(id)
	}

	var dropped []string
	n, err := c.store.Update(id, func(n *models.Note) error {
		if d.Title != nil {
			if t := strings.TrimSpace(*d.Title); t != "" {
				n.Title = t
			}
		}
		switch n.EditorFormat {
		case models.FormatOpen:
			if d.OpenText != nil {
				n.PolishedNote = *d.OpenText
			}
		default:
			if d.Sections != nil {
				dropped = reconcileSections(n, d.Sections)
			}
		}
		n.RefreshPolished()
		n.Timestamp = c.store.Now()
		return nil
	})
	if err != nil {
		return models.Note{}, err
	}
	delete(c.drafts, id)
	for _, takeID := range dropped {
		c.store.Handles().Release(takeID)
	}
	return n, nil
}

// reconcileSections rewrites n.Sections from edits and returns the ids of
// takes whose sections were dropped.
func reconcileSections(n *models.Note, edits []SectionEdit) []string {
	next := make([]models.Section, len(edits))
	for i, e := range edits {
		takes := []models.AudioTake{}
		if i < len(n.Sections) {
			takes = n.Sections[i].Takes
		}
		next[i] = models.Section{Type: e.Type, Content: e.Content, Takes: takes}
	}
	var dropped []string
	for _, s := range n.Sections[min(len(edits), len(n.Sections)):] {
		for _, t := range s.Takes {
			dropped = append(dropped, t.ID)
		}
	}
	n.Sections = next
	return dropped
}

// structural wraps fn as one undo step: pending edits are committed and
// snapshotted first, then fn runs and the result is snapshotted.
func (c *Coordinator) structural(id string, fn func(n *models.Note) error) (models.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureHistory(id); err != nil {
		return models.Note{}, err
	}
	c.flushLocked(id)
	before, err := c.commitLocked(id)
	if err != nil {
		return models.Note{}, err
	}
	c.hist.Push(id, models.Snapshot(&before))

	n, err := c.store.Update(id, func(n *models.Note) error {
		if err := fn(n); err != nil {
			return err
		}
		n.RefreshPolished()
		n.Timestamp = c.store.Now()
		return nil
	})
	if err != nil {
		return models.Note{}, err
	}
	c.store.Handles().Reconcile(n)
	c.hist.Push(id, models.Snapshot(&n))
	return n, nil
}

// ReorderSections moves sections so that position i holds the section that
// was at perm[i].
func (c *Coordinator) ReorderSections(id string, perm []int) (models.Note, error) {
	return c.structural(id, func(n *models.Note) error {
		if !isPermutation(perm, len(n.Sections)) {
			return apperr.ErrInvalidPermutation
		}
		next := make([]models.Section, len(perm))
		for i, from := range perm {
			next[i] = n.Sections[from]
		}
		n.Sections = next
		return nil
	})
}

// MoveSection moves the section at from to position to.
func (c *Coordinator) MoveSection(id string, from, to int) (models.Note, error) {
	return c.structural(id, func(n *models.Note) error {
		if from < 0 || from >= len(n.Sections) || to < 0 || to >= len(n.Sections) {
			return apperr.ErrSectionOutOfRange
		}
		s := n.Sections[from]
		n.Sections = slices.Insert(slices.Delete(n.Sections, from, from+1), to, s)
		return nil
	})
}

// DeleteSection removes the section at index. Playback handles of its takes
// are released.
func (c *Coordinator) DeleteSection(id string, index int) (models.Note, error) {
	return c.structural(id, func(n *models.Note) error {
		if index < 0 || index >= len(n.Sections) {
			return apperr.ErrSectionOutOfRange
		}
		n.Sections = slices.Delete(n.Sections, index, index+1)
		return nil
	})
}

// ChangeSectionType relabels the section at index. A blank type selects the
// default.
func (c *Coordinator) ChangeSectionType(id string, index int, typ string) (models.Note, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		typ = models.DefaultSectionType
	}
	return c.structural(id, func(n *models.Note) error {
		if index < 0 || index >= len(n.Sections) {
			return apperr.ErrSectionOutOfRange
		}
		n.Sections[index].Type = typ
		return nil
	})
}

// AddSection appends an empty section.
func (c *Coordinator) AddSection(id, typ string) (models.Note, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		typ = models.DefaultSectionType
	}
	return c.structural(id, func(n *models.Note) error {
		n.Sections = append(n.Sections, models.Section{Type: typ, Takes: []models.AudioTake{}})
		return nil
	})
}

// ToggleFormat switches between structured and open format.
func (c *Coordinator) ToggleFormat(id string) (models.Note, error) {
	return c.structural(id, func(n *models.Note) error {
		if n.EditorFormat == models.FormatOpen {
			models.ToStructuredFormat(n)
		} else {
			models.ToOpenFormat(n)
		}
		return nil
	})
}

// Rename sets the title as its own undo step.
func (c *Coordinator) Rename(id, title string) (models.Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Note{}, apperr.ErrInvalidTitle
	}
	return c.structural(id, func(n *models.Note) error {
		n.Title = title
		return nil
	})
}

// ApplyAIResult merges AI sections into the note: they replace the sections
// when the note is empty-equivalent and are appended otherwise. Open notes are
// converted to structured first. A result for a deleted note is dropped with
// apperr.ErrNotFound.
func (c *Coordinator) ApplyAIResult(id, transcript string, sections []models.Section) (models.Note, error) {
	incoming := models.CloneSections(sections)
	if len(incoming) == 0 {
		incoming = restructure.Fallback(transcript)
	}
	return c.structural(id, func(n *models.Note) error {
		if n.EditorFormat == models.FormatOpen {
			models.ToStructuredFormat(n)
		}
		if models.IsEmpty(n.Sections) {
			n.Sections = incoming
		} else {
			n.Sections = append(n.Sections, incoming...)
		}
		n.RawTranscription = transcript
		return nil
	})
}

// ApplyAIResponse parses a raw structuring response, falling back to one
// section holding the raw text, and applies it. An empty section list applies
// the transcript instead.
func (c *Coordinator) ApplyAIResponse(id, transcript, raw string) (models.Note, error) {
	sections, ok := restructure.SectionsOrFallback(raw)
	if !ok {
		c.logger.Warn("editor: malformed AI response, applying raw text", slog.String("id", id))
	}
	return c.ApplyAIResult(id, transcript, sections)
}

// AttachTake appends take to the section at index. The attach is recorded as
// its own undo step so later undos of text edits keep the take.
func (c *Coordinator) AttachTake(id string, index int, take models.AudioTake) (models.Note, error) {
	if take.ID == "" {
		take.ID = uuid.NewString()
	}
	if take.Timestamp.IsZero() {
		take.Timestamp = c.store.Now()
	}
	return c.structural(id, func(n *models.Note) error {
		if index < 0 || index >= len(n.Sections) {
			return apperr.ErrSectionOutOfRange
		}
		n.Sections[index].Takes = append(slices.Clone(n.Sections[index].Takes), take)
		return nil
	})
}

// DeleteTake removes a take from the section at index.
func (c *Coordinator) DeleteTake(id string, index int, takeID string) (models.Note, error) {
	return c.structural(id, func(n *models.Note) error {
		if index < 0 || index >= len(n.Sections) {
			return apperr.ErrSectionOutOfRange
		}
		takes := n.Sections[index].Takes
		i := slices.IndexFunc(takes, func(t models.AudioTake) bool { return t.ID == takeID })
		if i < 0 {
			return apperr.ErrNotFound
		}
		n.Sections[index].Takes = slices.Delete(slices.Clone(takes), i, i+1)
		return nil
	})
}

// Undo restores the previous state. A pending debounced snapshot is taken
// first and any uncommitted draft is discarded. At the floor it is a no-op.
func (c *Coordinator) Undo(id string) (models.Note, error) {
	return c.step(id, c.hist.Undo)
}

// Redo re-applies the most recently undone state.
func (c *Coordinator) Redo(id string) (models.Note, error) {
	return c.step(id, c.hist.Redo)
}

func (c *Coordinator) step(id string, pop func(string) (models.NoteState, bool)) (models.Note, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureHistory(id); err != nil {
		return models.Note{}, err
	}
	c.flushLocked(id)
	delete(c.drafts, id)

	state, ok := pop(id)
	if !ok {
		return c.store.Get(id)
	}
	n, err := c.store.Update(id, func(n *models.Note) error {
		models.Restore(n, state)
		return nil
	})
	if err != nil {
		return models.Note{}, err
	}
	c.store.Handles().Reconcile(n)
	return n, nil
}

// CanUndo reports whether Undo would change the note.
func (c *Coordinator) CanUndo(id string) bool {
	return c.hist.CanUndo(id)
}

// CanRedo reports whether Redo would change the note.
func (c *Coordinator) CanRedo(id string) bool {
	return c.hist.CanRedo(id)
}

// DeleteNote removes the note and forgets its draft and pending snapshot.
func (c *Coordinator) DeleteNote(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Delete(id); err != nil {
		return err
	}
	c.cancelTimerLocked(id)
	delete(c.drafts, id)
	return nil
}

func isPermutation(perm []int, n int) bool {
	if len(perm) != n {
		return false
	}
	seen := make([]bool, n)
	for _, p := range perm {
		if p < 0 || p >= n || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}
