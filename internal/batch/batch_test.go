package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aeshef/knowledge-bot/internal/extract"
	"github.com/aeshef/knowledge-bot/internal/ingest"
	"github.com/aeshef/knowledge-bot/internal/llm"
	"github.com/aeshef/knowledge-bot/internal/notetmpl"
	"github.com/aeshef/knowledge-bot/internal/pipeline"
	"github.com/aeshef/knowledge-bot/internal/session"
	"github.com/aeshef/knowledge-bot/internal/storage"
	"github.com/aeshef/knowledge-bot/internal/testutil"
)

func scriptedOracle(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		content, ok := responses[req.Messages[0].Content]
		if !ok {
			http.Error(w, "unknown prompt", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(t *testing.T, oracleURL string) (*Runner, *storage.FS) {
	t.Helper()
	cfgDir, store := testutil.TestConfigDir(t)
	_, fs := testutil.TestVault(t)
	db := testutil.TestDB(t)
	logger := testutil.Logger()

	gw := llm.New(llm.Config{BaseURL: oracleURL, APIKey: "k", Model: "m", DefaultType: "knowledge"})
	renderer := notetmpl.New(filepath.Join(cfgDir, "templates"), store)
	pipe := pipeline.New(store, gw, renderer, logger)
	vault := storage.NewVault(fs, storage.WithNotesDir("notes"))
	svc := ingest.New(store, pipe, renderer, vault, db, session.NewStore(), logger)

	return NewRunner(pipe, svc, extract.NewService(nil, logger), logger), fs.(*storage.FS)
}

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "batch.txt")
	if err := os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunCommitsEveryLine(t *testing.T) {
	oracle := scriptedOracle(t, map[string]string{
		"route": `{"type":"idea","title":"draft","form":"text"}`,
		"name":  `{"title":"A Very Long Batch Title Indeed"}`,
		"fill":  `{"status":"inbox"}`,
		"tag":   `["status/inbox"]`,
	})
	runner, fs := newTestRunner(t, oracle.URL)

	input := writeLines(t,
		"first thought",
		"",
		"second thought",
	)
	entries, err := runner.Run(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	for _, e := range entries {
		if e.Err != nil {
			t.Fatalf("entry %q: %v", e.Input, e.Err)
		}
		if !strings.HasPrefix(e.Path, "notes/Ideas/") {
			t.Errorf("path = %q", e.Path)
		}
		if ok, _ := fs.Exists(e.Path); !ok {
			t.Errorf("note missing: %q", e.Path)
		}
	}

	// Batch titles are capped at three words.
	data, err := fs.Read(entries[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "title: A Very Long\n") {
		t.Errorf("note:\n%s", data)
	}
}

func TestRunAcceptsOverlongLines(t *testing.T) {
	oracle := scriptedOracle(t, map[string]string{
		"route": `{"type":"idea","title":"draft","form":"text"}`,
		"name":  `{"title":"Long One"}`,
		"fill":  `{"status":"inbox"}`,
		"tag":   `["status/inbox"]`,
	})
	runner, fs := newTestRunner(t, oracle.URL)

	// Well past bufio.Scanner's default 64KB token limit.
	long := "pasted dump " + strings.Repeat("lorem ipsum ", 8000)
	entries, err := runner.Run(context.Background(), writeLines(t, long, "short one"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Err != nil {
			t.Fatalf("entry failed: %v", e.Err)
		}
		if ok, _ := fs.Exists(e.Path); !ok {
			t.Errorf("note missing: %q", e.Path)
		}
	}
}

func TestRunMissingInputFile(t *testing.T) {
	runner, _ := newTestRunner(t, "http://127.0.0.1:0")
	if _, err := runner.Run(context.Background(), filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunDegradesWhenOracleDown(t *testing.T) {
	// Routing falls back to the default type when the oracle is
	// unreachable; batch lines still commit.
	runner, fs := newTestRunner(t, "http://127.0.0.1:0")

	entries, err := runner.Run(context.Background(), writeLines(t, "a stray thought"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Err != nil {
		t.Fatalf("entries = %+v", entries)
	}
	if !strings.HasPrefix(entries[0].Path, "notes/Knowledge/") {
		t.Errorf("path = %q", entries[0].Path)
	}
	if ok, _ := fs.Exists(entries[0].Path); !ok {
		t.Errorf("note missing: %q", entries[0].Path)
	}
}

func TestFillExamples(t *testing.T) {
	oracle := scriptedOracle(t, map[string]string{
		"route": `{"type":"knowledge","title":"draft","form":"text"}`,
		"name":  `{"title":"Filled Title"}`,
		"fill":  `{"status":"inbox"}`,
		"tag":   `["status/inbox"]`,
	})
	runner, _ := newTestRunner(t, oracle.URL)

	dir := t.TempDir()
	inPath := filepath.Join(dir, "examples.csv")
	outPath := filepath.Join(dir, "examples_filled.csv")
	csvIn := "id,input,expected_type\n" +
		"1,some interesting fact,\n" +
		"2,already done,knowledge\n" +
		"3,,\n"
	if err := os.WriteFile(inPath, []byte(csvIn), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := runner.FillExamples(context.Background(), inPath, outPath, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("processed = %d", n)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	header := rows[0]
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	if rows[1][col["expected_type"]] != "knowledge" {
		t.Errorf("row 1 type = %q", rows[1][col["expected_type"]])
	}
	if rows[1][col["expected_title"]] != "Filled Title" {
		t.Errorf("row 1 title = %q", rows[1][col["expected_title"]])
	}
	if rows[1][col["expected_tags"]] != "status/inbox" {
		t.Errorf("row 1 tags = %q", rows[1][col["expected_tags"]])
	}
	// Row 2 already had an expected type and was skipped.
	if rows[2][col["expected_title"]] != "" {
		t.Errorf("row 2 title = %q", rows[2][col["expected_title"]])
	}
}
