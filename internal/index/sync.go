package index

import (
	"log/slog"

	"github.com/starford/demotape/internal/checksum"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/notestore"
)

// Sync brings the index up to date with notes:
//   - new/changed notes are upserted
//   - notes no longer present are deleted from the index
func Sync(db *DB, notes []models.Note, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	live := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		live[n.ID] = struct{}{}

		row, body := rowFor(n)
		if checksums[n.ID] == row.Checksum {
			continue
		}
		if err := db.UpsertNote(row, body); err != nil {
			logger.Warn("sync: index failed", slog.String("id", n.ID), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("id", n.ID))
		}
	}

	// Remove stale entries.
	for id := range checksums {
		if _, ok := live[id]; !ok {
			if err := db.DeleteNote(id); err != nil {
				logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("id", id))
			}
		}
	}

	return nil
}

// IndexNote upserts n unless its indexed checksum is unchanged.
func IndexNote(db *DB, n models.Note) error {
	row, body := rowFor(n)
	cs, err := db.GetChecksum(n.ID)
	if err != nil {
		return err
	}
	if cs == row.Checksum {
		return nil
	}
	return db.UpsertNote(row, body)
}

// Listener keeps the index in step with note store changes.
func Listener(db *DB, logger *slog.Logger) notestore.Listener {
	return func(kind string, n models.Note) {
		var err error
		switch kind {
		case notestore.KindCreated, notestore.KindUpdated:
			err = IndexNote(db, n)
		case notestore.KindDeleted:
			err = db.DeleteNote(n.ID)
		default:
			return
		}
		if err != nil {
			logger.Warn("index: update failed", slog.String("id", n.ID), slog.String("kind", kind), slog.String("error", err.Error()))
		}
	}
}

// rowFor derives the index row and searchable body of n. The body is the
// authoritative text for the note's format.
func rowFor(n models.Note) (NoteRow, string) {
	body := n.PolishedNote
	if n.EditorFormat == models.FormatStructured {
		body = models.Flatten(n.Sections)
	}
	return NoteRow{
		ID:        n.ID,
		Title:     n.Title,
		ProjectID: n.ProjectID,
		Checksum:  checksum.Fields(n.Title, n.ProjectID, body),
		UpdatedAt: n.Timestamp,
	}, body
}
