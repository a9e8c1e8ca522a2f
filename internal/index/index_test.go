package index

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/aeshef/knowledge-bot/internal/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertListDelete(t *testing.T) {
	db := openTestDB(t)
	row := NoteRow{
		Path:      "Knowledge/a.md",
		Type:      "knowledge",
		Title:     "Alpha",
		Created:   "2026-08-30",
		Checksum:  "abc",
		Tags:      []string{"topic/ml"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertNote(row, "alpha body"); err != nil {
		t.Fatal(err)
	}

	notes, err := db.ListNotes("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Title != "Alpha" || notes[0].Type != "knowledge" {
		t.Fatalf("ListNotes = %+v", notes)
	}
	if len(notes[0].Tags) != 1 || notes[0].Tags[0] != "topic/ml" {
		t.Fatalf("tags = %v", notes[0].Tags)
	}

	// Upsert with a new checksum replaces, not duplicates.
	row.Checksum = "def"
	row.Title = "Alpha v2"
	if err := db.UpsertNote(row, "new body"); err != nil {
		t.Fatal(err)
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		t.Fatal(err)
	}
	if len(checksums) != 1 || checksums["Knowledge/a.md"] != "def" {
		t.Fatalf("AllChecksums = %v", checksums)
	}

	if err := db.DeleteNote("Knowledge/a.md"); err != nil {
		t.Fatal(err)
	}
	if checksums, _ = db.AllChecksums(); len(checksums) != 0 {
		t.Fatalf("note not deleted: %v", checksums)
	}
}

func TestListNotesTypeFilterAndOrder(t *testing.T) {
	db := openTestDB(t)
	base := time.Now()
	for i, spec := range []struct{ path, typ string }{
		{"Ideas/a.md", "idea"},
		{"Knowledge/b.md", "knowledge"},
		{"Ideas/c.md", "idea"},
	} {
		row := NoteRow{Path: spec.path, Type: spec.typ, Title: spec.path, UpdatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.UpsertNote(row, ""); err != nil {
			t.Fatal(err)
		}
	}

	ideas, err := db.ListNotes("idea", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ideas) != 2 {
		t.Fatalf("ideas = %d, want 2", len(ideas))
	}
	// Newest first.
	if ideas[0].Path != "Ideas/c.md" {
		t.Fatalf("order wrong: %+v", ideas)
	}

	counts, err := db.CountByType()
	if err != nil {
		t.Fatal(err)
	}
	if counts["idea"] != 2 || counts["knowledge"] != 1 {
		t.Fatalf("CountByType = %v", counts)
	}
}

func TestSearchFindsBody(t *testing.T) {
	db := openTestDB(t)
	row := NoteRow{Path: "Knowledge/a.md", Type: "knowledge", Title: "Distillation", UpdatedAt: time.Now()}
	if err := db.UpsertNote(row, "compressing large models into small ones"); err != nil {
		t.Fatal(err)
	}

	hits, err := db.Search("compressing", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Path != "Knowledge/a.md" {
		t.Fatalf("Search = %+v", hits)
	}
}

func TestSyncIndexesAndRemoves(t *testing.T) {
	db := openTestDB(t)
	logger := slog.New(slog.DiscardHandler)

	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	note := "---\ntype: idea\ntitle: Synced\ntags:\n  - topic/ml\n---\nbody"
	if err := fs.Write("Ideas/synced.md", []byte(note)); err != nil {
		t.Fatal(err)
	}

	if err := Sync(db, fs, logger); err != nil {
		t.Fatal(err)
	}
	notes, err := db.ListNotes("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Title != "Synced" || notes[0].Type != "idea" {
		t.Fatalf("after sync: %+v", notes)
	}

	// Removing the file removes the row on the next pass.
	if err := fs.Delete("Ideas/synced.md"); err != nil {
		t.Fatal(err)
	}
	if err := Sync(db, fs, logger); err != nil {
		t.Fatal(err)
	}
	if notes, _ = db.ListNotes("", 10); len(notes) != 0 {
		t.Fatalf("stale row survived sync: %+v", notes)
	}
}
