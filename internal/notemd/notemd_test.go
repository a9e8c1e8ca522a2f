package notemd

import (
	"reflect"
	"testing"
)

func TestParseFullNote(t *testing.T) {
	data := []byte(`---
type: knowledge
title: Distillation Notes
created: 2026-08-31
tags:
  - topic/ml
  - status/inbox
---

Body text here.
`)
	n := Parse(data)
	if n.Type != "knowledge" {
		t.Fatalf("type = %q", n.Type)
	}
	if n.Title != "Distillation Notes" {
		t.Fatalf("title = %q", n.Title)
	}
	if n.Created != "2026-08-31" {
		t.Fatalf("created = %q", n.Created)
	}
	if !reflect.DeepEqual(n.Tags, []string{"topic/ml", "status/inbox"}) {
		t.Fatalf("tags = %v", n.Tags)
	}
	if n.Body != "Body text here.\n" {
		t.Fatalf("body = %q", n.Body)
	}
}

func TestParseNoFrontmatter(t *testing.T) {
	n := Parse([]byte("# Hand Written\n\ncontent"))
	if n.Type != "" || n.Tags != nil {
		t.Fatalf("unexpected metadata: %+v", n)
	}
	if n.Title != "Hand Written" {
		t.Fatalf("title = %q", n.Title)
	}
	if n.Body == "" {
		t.Fatal("body lost")
	}
}

func TestParseInvalidYAMLFallsBack(t *testing.T) {
	data := []byte("---\n: bad: [yaml\n---\nbody")
	n := Parse(data)
	if n.Frontmatter != nil {
		t.Fatal("invalid frontmatter not discarded")
	}
	if n.Body != string(data) {
		t.Fatal("body should be the whole file")
	}
}

func TestParseUnclosedFrontmatter(t *testing.T) {
	data := []byte("---\ntype: idea\nno closing delimiter")
	n := Parse(data)
	if n.Type != "" {
		t.Fatal("unclosed frontmatter parsed")
	}
}

func TestParseInlineTags(t *testing.T) {
	n := Parse([]byte("---\ntags: topic/ai, topic/ml\n---\nx"))
	if !reflect.DeepEqual(n.Tags, []string{"topic/ai", "topic/ml"}) {
		t.Fatalf("tags = %v", n.Tags)
	}
}
