package notetmpl

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

const knowledgeTemplate = `---
type: {{.type}}
title: {{.title}}
created: {{.created}}
status: {{.status}}
project: {{.project}}
tags:
{{range .tags}}  - {{.}}
{{end}}---

{{if .summary}}{{.summary}}{{end}}
`

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	cfgDir := t.TempDir()
	tmplDir := t.TempDir()

	typesYAML := `default_template: knowledge.tmpl
types:
  knowledge:
    dir: Knowledge
    template: knowledge.tmpl
  idea:
    dir: Ideas
`
	if err := os.WriteFile(filepath.Join(cfgDir, "types.yaml"), []byte(typesYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmplDir, "knowledge.tmpl"), []byte(knowledgeTemplate), 0o644); err != nil {
		t.Fatal(err)
	}
	return New(tmplDir, vocab.NewStore(cfgDir))
}

func TestFieldsExcludesStructural(t *testing.T) {
	r := newTestRenderer(t)
	got, err := r.Fields("knowledge")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"project", "status", "summary"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Fields = %v, want %v", got, want)
	}
}

func TestFieldsDefaultTemplateFallback(t *testing.T) {
	r := newTestRenderer(t)
	// idea has no template of its own and falls back to the default.
	got, err := r.Fields("idea")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("Fields = %v, want 3 entries", got)
	}
}

func TestRenderBody(t *testing.T) {
	r := newTestRenderer(t)
	p := &models.Payload{
		Type:    "knowledge",
		Title:   "Distillation",
		Created: "2026-08-31",
		Tags:    []string{"topic/ml"},
		Fields:  map[string]any{"status": "inbox"},
	}
	out, err := r.Render(p)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"title: Distillation",
		"created: 2026-08-31",
		"status: inbox",
		"- topic/ml",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	// project was never filled; it renders empty, not as a placeholder.
	if strings.Contains(out, "no value") {
		t.Fatalf("unrendered placeholder leaked:\n%s", out)
	}
	if !strings.Contains(out, "project: \n") {
		t.Fatalf("empty field not blank:\n%s", out)
	}
}

func TestRenderSections(t *testing.T) {
	r := newTestRenderer(t)
	p := &models.Payload{
		Type:    "knowledge",
		Title:   "Talk notes",
		RawText: "original message",
		Attachments: models.Attachments{
			Links: []string{"https://example.com/b", "https://example.com/a"},
			Files: []string{"scan.jpg", "paper.pdf"},
		},
		Fields: map[string]any{
			"asr_summary": "short recap",
			"asr_text":    "full transcript",
			"links_anchors": []any{
				map[string]any{"url": "https://example.com/a", "text": "Article A"},
			},
		},
	}
	out, err := r.Render(p)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"## Images\n\n![[scan.jpg]]",
		"## Files\n\n- [[paper.pdf|paper.pdf]]",
		"## Links\n\n- [Article A](https://example.com/a)\n- https://example.com/b",
		"## Source Text\n\noriginal message",
		"## Summary (ASR)\n\nshort recap",
		"## Transcript\n\nfull transcript",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	// The anchored URL must not repeat as a plain link.
	if strings.Count(out, "https://example.com/a") != 1 {
		t.Fatalf("duplicate link rendered:\n%s", out)
	}
}

func TestRenderDefaultsCreated(t *testing.T) {
	r := newTestRenderer(t)
	out, err := r.Render(&models.Payload{Type: "knowledge", Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "created: \n") {
		t.Fatalf("created not defaulted:\n%s", out)
	}
}
