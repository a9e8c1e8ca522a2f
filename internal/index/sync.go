package index

import (
	"log/slog"
	"time"

	"github.com/aeshef/knowledge-bot/internal/checksum"
	"github.com/aeshef/knowledge-bot/internal/notemd"
	"github.com/aeshef/knowledge-bot/internal/storage"
)

// Sync walks the vault and brings the catalog up to date:
//   - new/changed note files are parsed and upserted
//   - files removed from disk are deleted from the catalog
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexNote(db, m.Path, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexNote parses a note file and upserts its catalog row. The commit flow
// calls it directly so a fresh note is searchable before the watcher fires.
func IndexNote(db *DB, path string, data []byte, updatedAt time.Time) error {
	note := notemd.Parse(data)
	row := NoteRow{
		Path:      path,
		Type:      note.Type,
		Title:     note.Title,
		Created:   note.Created,
		Checksum:  checksum.Sum(data),
		Tags:      note.Tags,
		UpdatedAt: updatedAt,
	}
	return db.UpsertNote(row, note.Body)
}
