// Package inbox imports voice memos dropped into a watched folder as new notes.
package inbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/notestore"
	"github.com/starford/demotape/internal/restructure"
)

// Directories created under the drop folder for finished files.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// DefaultSettle is how long a file must stay unchanged before it is imported.
const DefaultSettle = 500 * time.Millisecond

var mimeByExt = map[string]string{
	".webm": "audio/webm",
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
}

// Processor turns recorded audio into a transcript and sections.
type Processor interface {
	Process(ctx context.Context, audio []byte, mimeType string) (restructure.Result, error)
}

// Prober reports the playable length of an audio payload.
type Prober interface {
	Duration(ctx context.Context, data []byte, mimeType string) (time.Duration, error)
}

// Editor is the part of the edit coordinator an import needs.
type Editor interface {
	Store() *notestore.Store
	ApplyAIResult(id, transcript string, sections []models.Section) (models.Note, error)
	AttachTake(id string, index int, take models.AudioTake) (models.Note, error)
	DeleteNote(id string) error
}

// ImportFunc is called after each successful import.
type ImportFunc func(n models.Note, file string)

// Watcher imports audio files from a drop folder.
type Watcher struct {
	dir      string
	editor   Editor
	proc     Processor
	prober   Prober
	settle   time.Duration
	patterns []string
	logger   *slog.Logger
	onImport ImportFunc
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithPatterns restricts imports to file names matching at least one glob
// (doublestar syntax, e.g. "memo-*.{m4a,webm}"). Invalid patterns are ignored.
func WithPatterns(patterns ...string) Option {
	return func(w *Watcher) {
		for _, p := range patterns {
			if doublestar.ValidatePattern(p) {
				w.patterns = append(w.patterns, p)
			}
		}
	}
}

func WithProber(p Prober) Option { return func(w *Watcher) { w.prober = p } }

func WithLogger(l *slog.Logger) Option { return func(w *Watcher) { w.logger = l } }

func WithImportFunc(fn ImportFunc) Option { return func(w *Watcher) { w.onImport = fn } }

// New returns a Watcher over dir. The directory is created if missing.
func New(dir string, ed Editor, proc Processor, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox: resolve dir: %w", err)
	}
	for _, d := range []string{abs, filepath.Join(abs, ProcessedDir), filepath.Join(abs, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("inbox: create %s: %w", d, err)
		}
	}
	w := &Watcher{
		dir:    abs,
		editor: ed,
		proc:   proc,
		settle: DefaultSettle,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Dir returns the absolute drop folder path.
func (w *Watcher) Dir() string { return w.dir }

// Run imports files already waiting in the folder, then watches for new ones
// until ctx is cancelled. Only the top level of the folder is watched.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", w.dir, err)
	}
	w.logger.Info("inbox: started", slog.String("dir", w.dir))

	ready := make(chan string, 16)
	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Reset(w.settle)
			return
		}
		timers[path] = time.AfterFunc(w.settle, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("inbox: scan: %w", err)
	}
	for _, e := range entries {
		if w.acceptsEntry(e) {
			schedule(filepath.Join(w.dir, e.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox: stopped")
			return nil

		case path := <-ready:
			w.importFile(ctx, path)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.accepts(filepath.Base(ev.Name)) {
				continue
			}
			schedule(ev.Name)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		// Moved away or deleted before it settled.
		w.logger.Debug("inbox: read failed", slog.String("file", name), slog.String("error", err.Error()))
		return
	}
	n, err := w.Import(ctx, name, data)
	if err != nil {
		w.logger.Warn("inbox: import failed", slog.String("file", name), slog.String("error", err.Error()))
		w.move(path, FailedDir)
		return
	}
	w.move(path, ProcessedDir)
	w.logger.Info("inbox: imported", slog.String("file", name), slog.String("note", n.ID))
	if w.onImport != nil {
		w.onImport(n, name)
	}
}

// Import creates a note from one audio file: the transcript is restructured
// into sections and the recording is attached to the first section as a take.
// No note is left behind when any step fails.
func (w *Watcher) Import(ctx context.Context, name string, data []byte) (models.Note, error) {
	ext := strings.ToLower(filepath.Ext(name))
	mime, ok := mimeByExt[ext]
	if !ok {
		return models.Note{}, fmt.Errorf("inbox: unsupported file %q", name)
	}

	res, err := w.proc.Process(ctx, data, mime)
	if err != nil {
		return models.Note{}, fmt.Errorf("inbox: process %s: %w", name, err)
	}

	store := w.editor.Store()
	n := store.Create()
	built, err := w.fill(ctx, n.ID, name, mime, data, res)
	if err != nil {
		if derr := w.editor.DeleteNote(n.ID); derr != nil {
			w.logger.Warn("inbox: remove partial note failed", slog.String("note", n.ID), slog.String("error", derr.Error()))
		}
		return models.Note{}, err
	}
	return built, nil
}

func (w *Watcher) fill(ctx context.Context, id, name, mime string, data []byte, res restructure.Result) (models.Note, error) {
	store := w.editor.Store()
	if title := strings.TrimSpace(strings.TrimSuffix(name, filepath.Ext(name))); title != "" {
		if _, err := store.Rename(id, title); err != nil {
			return models.Note{}, fmt.Errorf("inbox: title %s: %w", name, err)
		}
	}
	if _, err := w.editor.ApplyAIResult(id, res.Transcript, res.Sections); err != nil {
		return models.Note{}, fmt.Errorf("inbox: apply %s: %w", name, err)
	}

	take := models.AudioTake{
		ID:        uuid.NewString(),
		AudioData: base64.StdEncoding.EncodeToString(data),
		MimeType:  mime,
		Timestamp: store.Now(),
	}
	if w.prober != nil {
		if d, err := w.prober.Duration(ctx, data, mime); err == nil {
			take.DurationMs = d.Milliseconds()
		} else {
			w.logger.Debug("inbox: probe failed", slog.String("file", name), slog.String("error", err.Error()))
		}
	}
	n, err := w.editor.AttachTake(id, 0, take)
	if err != nil {
		return models.Note{}, fmt.Errorf("inbox: attach %s: %w", name, err)
	}
	return n, nil
}
