package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFromTextFindsURLs(t *testing.T) {
	sum := FromText("see https://example.com/a and (https://example.com/b) for details")
	want := []string{"https://example.com/a", "https://example.com/b"}
	if !reflect.DeepEqual(sum.URLs, want) {
		t.Fatalf("URLs = %v, want %v", sum.URLs, want)
	}
	if sum.RawText == "" || sum.Empty() {
		t.Fatal("raw text lost")
	}
}

func TestFromTextNoURLs(t *testing.T) {
	sum := FromText("plain note")
	if len(sum.URLs) != 0 {
		t.Fatalf("URLs = %v, want none", sum.URLs)
	}
}

func TestDetect(t *testing.T) {
	file := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		in   string
		want Kind
	}{
		{"https://example.com", KindURL},
		{"http://example.com", KindURL},
		{file, KindFile},
		{filepath.Join(t.TempDir(), "missing.txt"), KindText},
		{"just some text", KindText},
	}
	for _, tc := range cases {
		if got := Detect(tc.in); got != tc.want {
			t.Fatalf("Detect(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPageTitleOGFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head>
<meta property="og:title" content="OG Title" />
<title>Plain Title</title>
</head></html>`))
	}))
	defer srv.Close()

	s := NewService(srv.Client(), nil)
	title, err := s.PageTitle(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if title != "OG Title" {
		t.Fatalf("title = %q, want OG Title", title)
	}
}

func TestPageTitleFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><head><title>\n  Spread\n  Out  </title></head></html>"))
	}))
	defer srv.Close()

	s := NewService(srv.Client(), nil)
	title, err := s.PageTitle(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if title != "Spread Out" {
		t.Fatalf("title = %q, want collapsed whitespace", title)
	}
}

func TestEnrichSetsDerived(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<title>Article</title>"))
	}))
	defer srv.Close()

	s := NewService(srv.Client(), nil)
	in := FromText("read " + srv.URL)
	out := s.Enrich(context.Background(), in)
	if out.Derived.URLText != "Article" {
		t.Fatalf("url_text = %q", out.Derived.URLText)
	}
	if in.Derived.URLText != "" {
		t.Fatal("input summary mutated")
	}
}

func TestEnrichFetchFailureKeepsSummary(t *testing.T) {
	s := NewService(&http.Client{}, nil)
	in := FromText("read http://127.0.0.1:1/nothing")
	out := s.Enrich(context.Background(), in)
	if out.Derived.URLText != "" {
		t.Fatalf("url_text = %q, want empty", out.Derived.URLText)
	}
}
