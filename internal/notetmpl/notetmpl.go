// Package notetmpl renders note payloads through per-type Markdown
// templates and reports which fields a template declares.
package notetmpl

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"
	"time"

	"github.com/aeshef/knowledge-bot/internal/models"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

var imageExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".webp": {}, ".gif": {},
}

// Renderer loads note templates from a directory and renders payloads into
// Markdown. It also implements template introspection for the field-filling
// stage.
type Renderer struct {
	dir   string
	store *vocab.Store
}

// New creates a Renderer reading templates from dir.
func New(dir string, store *vocab.Store) *Renderer {
	return &Renderer{dir: dir, store: store}
}

// Fields returns the sorted field names the type's template references,
// excluding the structural payload keys. A type without a template yields no
// fields.
func (r *Renderer) Fields(typeName string) ([]string, error) {
	tmpl, err := r.load(typeName)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, nil
	}

	set := map[string]struct{}{}
	collectFields(tmpl.Root, set)
	out := make([]string, 0, len(set))
	for name := range set {
		if _, structural := models.StructuralFields[name]; structural {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Render produces the full Markdown document for a payload: the template
// body followed by attachment, link, source-text and transcript sections.
func (r *Renderer) Render(p *models.Payload) (string, error) {
	tmpl, err := r.load(p.Type)
	if err != nil {
		return "", err
	}
	if tmpl == nil {
		return "", fmt.Errorf("notetmpl: no template for type %q", p.Type)
	}

	data := p.Map()
	if s, _ := data[models.KeyCreated].(string); s == "" {
		data[models.KeyCreated] = time.Now().Format("2006-01-02")
	}
	// Referenced fields the payload never got render empty, not "<no value>".
	referenced := map[string]struct{}{}
	collectFields(tmpl.Root, referenced)
	for name := range referenced {
		if _, ok := data[name]; !ok {
			data[name] = ""
		}
	}

	var body strings.Builder
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("notetmpl: render %s: %w", p.Type, err)
	}

	var out strings.Builder
	out.WriteString(body.String())
	writeFileSections(&out, p.Attachments.Files)
	writeLinkSection(&out, p)
	writeTextSection(&out, "Source Text", p.RawText)
	writeTextSection(&out, "Summary (ASR)", p.StringField("asr_summary"))
	writeTextSection(&out, "Transcript", p.StringField("asr_text"))
	return out.String(), nil
}

// load parses the template for a type, or nil when the type declares none.
func (r *Renderer) load(typeName string) (*template.Template, error) {
	cfg, err := r.store.Get()
	if err != nil {
		return nil, err
	}
	name := cfg.Types.TemplateFor(typeName)
	if name == "" {
		return nil, nil
	}
	tmpl, err := template.ParseFiles(filepath.Join(r.dir, name))
	if err != nil {
		return nil, fmt.Errorf("notetmpl: parse %s: %w", name, err)
	}
	return tmpl, nil
}

// collectFields walks a parse tree gathering the top-level field names every
// action references ({{.status}}, {{range .tags}}, nested selectors count
// their first segment).
func collectFields(node parse.Node, set map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectFields(child, set)
		}
	case *parse.ActionNode:
		collectPipe(n.Pipe, set)
	case *parse.IfNode:
		collectPipe(n.Pipe, set)
		collectFields(n.List, set)
		collectFields(n.ElseList, set)
	case *parse.RangeNode:
		collectPipe(n.Pipe, set)
		collectFields(n.List, set)
		collectFields(n.ElseList, set)
	case *parse.WithNode:
		collectPipe(n.Pipe, set)
		collectFields(n.List, set)
		collectFields(n.ElseList, set)
	case *parse.TemplateNode:
		collectPipe(n.Pipe, set)
	}
}

func collectPipe(pipe *parse.PipeNode, set map[string]struct{}) {
	if pipe == nil {
		return
	}
	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if len(a.Ident) > 0 {
					set[a.Ident[0]] = struct{}{}
				}
			case *parse.PipeNode:
				collectPipe(a, set)
			}
		}
	}
}

// writeFileSections appends an embedded-images section and a file-links
// section for the physically attached files.
func writeFileSections(out *strings.Builder, files []string) {
	var images, docs []string
	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			continue
		}
		if _, ok := imageExts[strings.ToLower(filepath.Ext(f))]; ok {
			images = append(images, f)
		} else {
			docs = append(docs, f)
		}
	}
	if len(images) > 0 {
		out.WriteString("\n\n## Images\n\n")
		for _, f := range images {
			fmt.Fprintf(out, "![[%s]]\n", f)
		}
	}
	if len(docs) > 0 {
		out.WriteString("\n\n## Files\n\n")
		for _, f := range docs {
			fmt.Fprintf(out, "- [[%s|%s]]\n", f, filepath.Base(f))
		}
	}
}

// writeLinkSection appends a links section combining anchored links from the
// extraction step with plain attachment links, de-duplicated by URL.
func writeLinkSection(out *strings.Builder, p *models.Payload) {
	type anchor struct{ url, text string }
	var anchors []anchor
	if raw, ok := p.Field("links_anchors"); ok {
		if items, ok := raw.([]any); ok {
			for _, item := range items {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				url, _ := m["url"].(string)
				text, _ := m["text"].(string)
				if url == "" {
					continue
				}
				if text == "" {
					text = url
				}
				anchors = append(anchors, anchor{url: url, text: text})
			}
		}
	}

	if len(anchors) == 0 && len(p.Attachments.Links) == 0 {
		return
	}
	seen := map[string]struct{}{}
	var lines []string
	for _, a := range anchors {
		if _, dup := seen[a.url]; dup {
			continue
		}
		seen[a.url] = struct{}{}
		lines = append(lines, fmt.Sprintf("- [%s](%s)", a.text, a.url))
	}
	for _, url := range p.Attachments.Links {
		if strings.TrimSpace(url) == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		lines = append(lines, "- "+url)
	}
	if len(lines) == 0 {
		return
	}
	out.WriteString("\n\n## Links\n\n")
	for _, line := range lines {
		out.WriteString(line)
		out.WriteByte('\n')
	}
}

func writeTextSection(out *strings.Builder, heading, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	fmt.Fprintf(out, "\n\n## %s\n\n%s\n", heading, text)
}
