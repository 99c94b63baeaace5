// Package testutil provides shared test helpers for setting up stores, editors and databases.
package testutil

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/demotape/internal/editor"
	"github.com/starford/demotape/internal/history"
	"github.com/starford/demotape/internal/index"
	"github.com/starford/demotape/internal/notestore"
	"github.com/starford/demotape/internal/persist"
	"github.com/starford/demotape/internal/storage"
)

// Debounce is the snapshot debounce used by TestEditor.
const Debounce = 30 * time.Millisecond

// Logger returns a logger that only reports errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "demotape-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStorage creates a temporary directory with a file-backed storage.Provider.
func TestStorage(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// TestStore returns an in-memory note store with a history limit of 50.
func TestStore(t *testing.T, opts ...notestore.Option) *notestore.Store {
	t.Helper()
	opts = append([]notestore.Option{notestore.WithLogger(Logger())}, opts...)
	return notestore.New(history.New(50), opts...)
}

// TestPersistedStore returns a store writing through to temporary storage.
func TestPersistedStore(t *testing.T, opts ...notestore.Option) (*notestore.Store, *persist.Writer) {
	t.Helper()
	_, fs := TestStorage(t)
	w := persist.NewWriter(fs)
	opts = append([]notestore.Option{notestore.WithPersister(w)}, opts...)
	return TestStore(t, opts...), w
}

// TestEditor wraps store in a coordinator that is closed on cleanup.
func TestEditor(t *testing.T, store *notestore.Store) *editor.Coordinator {
	t.Helper()
	c := editor.New(store, editor.WithDebounce(Debounce), editor.WithLogger(Logger()))
	t.Cleanup(c.Close)
	return c
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
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
