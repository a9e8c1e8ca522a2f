package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aeshef/knowledge-bot/internal/apperr"
	"github.com/aeshef/knowledge-bot/internal/llm"
	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

const testTypesYAML = `default_template: default.tmpl
types:
  knowledge:
    dir: Knowledge
    template: knowledge.tmpl
  idea:
    dir: Ideas
  contact:
    dir: Contacts
`

const testVocabYAML = `namespaces:
  controlled:
    - status
common:
  status:
    - inbox
    - in-progress
    - done
synonyms:
  status:
    "в работе": in-progress
`

func writeConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"types.yaml":              testTypesYAML,
		"vocabulary.yaml":         testVocabYAML,
		"prompts/routing.txt":     "ROUTING PROMPT",
		"prompts/naming.txt":      "NAMING PROMPT",
		"prompts/fields.txt":      "FIELDS PROMPT",
		"prompts/tags.txt":        "TAGS PROMPT",
		"prompts/asr_summary.txt": "ASR PROMPT",
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
	return dir
}

// scriptedOracle answers each stage by recognizing its system prompt.
func scriptedOracle(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		content, ok := responses[req.Messages[0].Content]
		if !ok {
			http.Error(w, "unexpected prompt", http.StatusInternalServerError)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

type fakeTemplates struct {
	fields map[string][]string
	err    error
}

func (f *fakeTemplates) Fields(typeName string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fields[typeName], nil
}

func newTestPipeline(t *testing.T, baseURL string, tmpl TemplateIntrospector) *Pipeline {
	t.Helper()
	store := vocab.NewStore(writeConfigDir(t))
	gw := llm.New(llm.Config{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Model:       "test-model",
		DefaultType: "knowledge",
	})
	return New(store, gw, tmpl, nil)
}

func textSummary(text string) *models.Summary {
	return &models.Summary{RawText: text}
}

func TestRunFullPipeline(t *testing.T) {
	srv := scriptedOracle(t, map[string]string{
		"ROUTING PROMPT": `{"type":"idea","title":"draft","tags":["status/done","status/bogus"],"form":"text"}`,
		"NAMING PROMPT":  `{"title":"Model Distillation Notes"}`,
		"FIELDS PROMPT":  `{"status":"shipped","extra":"ignored"}`,
		"TAGS PROMPT":    `["status/В работе","topic/Distillation","topic/distillation"]`,
	})
	defer srv.Close()

	tmpl := &fakeTemplates{fields: map[string][]string{"idea": {"status"}}}
	pl := newTestPipeline(t, srv.URL, tmpl)

	res, err := pl.Run(context.Background(), textSummary("notes about distillation"), RunOptions{Source: "chat"})
	if err != nil {
		t.Fatal(err)
	}
	p := res.Payload
	if p.Type != "idea" {
		t.Fatalf("type = %q, want idea", p.Type)
	}
	if p.Title != "Model Distillation Notes" {
		t.Fatalf("title = %q", p.Title)
	}
	// "shipped" is outside the status enum and must be clamped to the
	// first allowed value.
	if got := p.StringField("status"); got != "inbox" {
		t.Fatalf("status field = %q, want inbox", got)
	}
	if _, ok := p.Field("extra"); ok {
		t.Fatal("undeclared field adopted")
	}
	wantTags := []string{"status/in-progress", "topic/distillation"}
	if !reflect.DeepEqual(p.Tags, wantTags) {
		t.Fatalf("tags = %v, want %v", p.Tags, wantTags)
	}
	if p.Source != "chat" {
		t.Fatalf("source = %q, want chat", p.Source)
	}
	if p.Created == "" {
		t.Fatal("created not defaulted")
	}
	for _, st := range res.Stages {
		if !st.Applied {
			t.Fatalf("stage %s not applied: %s", st.Stage, st.Reason)
		}
	}
}

func TestRunEmptySummary(t *testing.T) {
	pl := newTestPipeline(t, "http://127.0.0.1:0", nil)
	if _, err := pl.Run(context.Background(), &models.Summary{}, RunOptions{}); !errors.Is(err, apperr.ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
	if _, err := pl.Run(context.Background(), nil, RunOptions{}); !errors.Is(err, apperr.ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}

func TestRunOracleDownDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	tmpl := &fakeTemplates{fields: map[string][]string{"knowledge": {"status"}}}
	pl := newTestPipeline(t, srv.URL, tmpl)

	res, err := pl.Run(context.Background(), textSummary("https://example.com/article some text"), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	p := res.Payload
	if p.Type != "knowledge" {
		t.Fatalf("type = %q, want default knowledge", p.Type)
	}
	if p.Form != "link" {
		t.Fatalf("form = %q, want link", p.Form)
	}
	if len(p.Tags) != 0 {
		t.Fatalf("tags = %v, want none", p.Tags)
	}
	for _, st := range res.Stages {
		switch st.Stage {
		case "route":
			if !st.Applied {
				t.Fatal("route stage must always apply")
			}
		case "name", "fields", "tags":
			if st.Applied {
				t.Fatalf("stage %s applied with oracle down", st.Stage)
			}
		}
	}
}

func TestRunBatchCapsTitle(t *testing.T) {
	srv := scriptedOracle(t, map[string]string{
		"ROUTING PROMPT": `{"type":"knowledge","title":"draft"}`,
		"NAMING PROMPT":  `{"title":"A Very Long Batch Title Indeed"}`,
		"TAGS PROMPT":    `[]`,
	})
	defer srv.Close()

	pl := newTestPipeline(t, srv.URL, nil)
	res, err := pl.Run(context.Background(), textSummary("batch item"), RunOptions{Batch: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Payload.Title; got != "A Very Long" {
		t.Fatalf("title = %q, want 3-word cap", got)
	}
}

func TestRunTranscriptAttached(t *testing.T) {
	srv := scriptedOracle(t, map[string]string{
		"ROUTING PROMPT": `{"type":"knowledge","title":"Talk"}`,
		"NAMING PROMPT":  `{"title":"Talk"}`,
		"TAGS PROMPT":    `[]`,
		"ASR PROMPT":     `{"summary":"A short recap."}`,
	})
	defer srv.Close()

	pl := newTestPipeline(t, srv.URL, nil)
	sum := textSummary("voice message").WithDerived("asr_text", "full transcript here")
	res, err := pl.Run(context.Background(), sum, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	p := res.Payload
	if got := p.StringField("asr_text"); got != "full transcript here" {
		t.Fatalf("asr_text = %q", got)
	}
	if got := p.StringField("asr_summary"); got != "A short recap." {
		t.Fatalf("asr_summary = %q", got)
	}
}

func TestRetype(t *testing.T) {
	srv := scriptedOracle(t, map[string]string{
		"FIELDS PROMPT": `{"status":"done"}`,
		"TAGS PROMPT":   `["person/Jane Doe","status/В работе"]`,
	})
	defer srv.Close()

	tmpl := &fakeTemplates{fields: map[string][]string{"contact": {"status"}}}
	pl := newTestPipeline(t, srv.URL, tmpl)

	p := &models.Payload{Type: "knowledge", Title: "Jane", Tags: []string{"status/inbox"}}
	res, err := pl.Retype(context.Background(), p, textSummary("met jane"), "contact")
	if err != nil {
		t.Fatal(err)
	}
	if res.Payload.Type != "contact" {
		t.Fatalf("type = %q, want contact", res.Payload.Type)
	}
	if got := res.Payload.StringField("status"); got != "done" {
		t.Fatalf("status = %q, want done", got)
	}
	// A type change asks the oracle for tags fitting the new type instead
	// of just renormalizing the old list.
	wantTags := []string{"person/jane-doe", "status/in-progress"}
	if !reflect.DeepEqual(res.Payload.Tags, wantTags) {
		t.Fatalf("tags = %v, want %v", res.Payload.Tags, wantTags)
	}

	// Unknown type falls back to the configured default.
	p2 := &models.Payload{Type: "idea", Title: "x"}
	res2, err := pl.Retype(context.Background(), p2, textSummary("x"), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if res2.Payload.Type != "knowledge" {
		t.Fatalf("type = %q, want knowledge", res2.Payload.Type)
	}
}

func TestRerouteRefinesMergedPayload(t *testing.T) {
	var namingReq string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) < 2 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var content string
		switch req.Messages[0].Content {
		case "ROUTING PROMPT":
			content = `{"type":"idea","title":"draft","form":"text"}`
		case "NAMING PROMPT":
			namingReq = req.Messages[1].Content
			content = `{"title":"Talk Notes"}`
		case "TAGS PROMPT":
			content = `[]`
		default:
			http.Error(w, "unexpected prompt", http.StatusInternalServerError)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	pl := newTestPipeline(t, srv.URL, nil)
	prev := &models.Payload{
		Type:      "knowledge",
		Title:     "Old",
		Filenames: []string{"talk.mp4"},
		Attachments: models.Attachments{
			Files: []string{"talk.mp4"},
			Links: []string{"https://a.example"},
		},
		Form: "video",
	}

	res, err := pl.Reroute(context.Background(), prev, textSummary("transcribed talk"), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// The naming stage must run after the merge and see the carried
	// filenames, not the fresh routing's empty list.
	if !strings.Contains(namingReq, "talk.mp4") {
		t.Fatalf("naming request missing carried filenames: %s", namingReq)
	}
	p := res.Payload
	if p.Title != "Talk Notes" {
		t.Fatalf("title = %q", p.Title)
	}
	if !reflect.DeepEqual(p.Filenames, []string{"talk.mp4"}) {
		t.Fatalf("filenames = %v", p.Filenames)
	}
	if !reflect.DeepEqual(p.Attachments.Links, []string{"https://a.example"}) {
		t.Fatalf("links = %v", p.Attachments.Links)
	}
	if p.Form != "video" {
		t.Fatalf("form = %q, want video", p.Form)
	}
}

func TestMergeReroute(t *testing.T) {
	fresh := &models.Payload{
		Type:  "idea",
		Title: "From transcript",
		Attachments: models.Attachments{
			Links: []string{"https://b.example", "https://a.example"},
			Files: []string{"new.ogg"},
		},
		Filenames: []string{"new.ogg"},
	}
	prev := &models.Payload{
		Type:  "knowledge",
		Title: "Old",
		Attachments: models.Attachments{
			Links: []string{"https://a.example", "https://c.example"},
			Files: []string{"old.jpg", "new.ogg"},
		},
		Filenames: []string{"old.jpg"},
		RawDir:    "raw/2026/08/abc123_old",
		Form:      "voice",
	}

	MergeReroute(fresh, prev)

	wantLinks := []string{"https://a.example", "https://b.example", "https://c.example"}
	if !reflect.DeepEqual(fresh.Attachments.Links, wantLinks) {
		t.Fatalf("links = %v, want %v", fresh.Attachments.Links, wantLinks)
	}
	wantFiles := []string{"new.ogg", "old.jpg"}
	if !reflect.DeepEqual(fresh.Attachments.Files, wantFiles) {
		t.Fatalf("files = %v, want %v", fresh.Attachments.Files, wantFiles)
	}
	if !reflect.DeepEqual(fresh.Filenames, []string{"new.ogg", "old.jpg"}) {
		t.Fatalf("filenames = %v", fresh.Filenames)
	}
	if fresh.RawDir != "raw/2026/08/abc123_old" {
		t.Fatalf("raw dir not carried: %q", fresh.RawDir)
	}
	if fresh.Form != "voice" {
		t.Fatalf("form = %q, want voice", fresh.Form)
	}

	// A fresh classification keeps its own identity.
	if fresh.Type != "idea" || fresh.Title != "From transcript" {
		t.Fatal("fresh classification overwritten")
	}
	// Nil previous payload is a no-op.
	MergeReroute(fresh, nil)
	if !strings.HasPrefix(fresh.RawDir, "raw/") {
		t.Fatal("merge with nil previous mutated payload")
	}
}
