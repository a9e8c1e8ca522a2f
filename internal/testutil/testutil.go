// Package testutil provides shared test helpers for setting up vaults,
// databases and configuration directories.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aeshef/knowledge-bot/internal/index"
	"github.com/aeshef/knowledge-bot/internal/storage"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "kb-test-*.db")
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

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// Logger returns a logger that swallows everything.
func Logger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// TestConfigDir writes a minimal agent configuration (types, vocabulary,
// prompts, templates) and returns its path alongside a vocab store for it.
func TestConfigDir(t *testing.T) (string, *vocab.Store) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"types.yaml": `default_template: default.tmpl
types:
  knowledge:
    dir: Knowledge
  idea:
    dir: Ideas
`,
		"vocabulary.yaml": `namespaces:
  controlled:
    - status
common:
  status:
    - inbox
    - done
`,
		"prompts/routing.txt":     "route",
		"prompts/naming.txt":      "name",
		"prompts/fields.txt":      "fill",
		"prompts/tags.txt":        "tag",
		"prompts/asr_summary.txt": "summarize",
		"templates/default.tmpl": `---
type: {{.type}}
title: {{.title}}
created: {{.created}}
status: {{.status}}
tags:
{{range .tags}}  - {{.}}
{{end}}---

{{.raw_text}}
`,
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir, vocab.NewStore(dir)
}
