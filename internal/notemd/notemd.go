// Package notemd reads committed note files back: it splits YAML
// frontmatter from the Markdown body and lifts out the fields the index
// cares about.
package notemd

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// Note is the parsed form of one committed note file.
type Note struct {
	Type        string
	Title       string
	Created     string
	Tags        []string
	Body        string
	Frontmatter map[string]any
}

// Parse splits raw Markdown bytes into frontmatter and body. Files without
// frontmatter, or with invalid YAML, parse as body-only notes; a vault may
// contain hand-written files the pipeline never touched.
func Parse(data []byte) *Note {
	fm, body := splitFrontmatter(data)
	n := &Note{Body: body, Frontmatter: fm}
	if fm == nil {
		n.Title = firstHeading(body)
		return n
	}
	n.Type = stringValue(fm, "type")
	n.Created = stringValue(fm, "created")
	n.Tags = stringList(fm, "tags")
	n.Title = stringValue(fm, "title")
	if n.Title == "" {
		n.Title = firstHeading(body)
	}
	return n
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter, treat everything as body.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

func stringValue(fm map[string]any, key string) string {
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func stringList(fm map[string]any, key string) []string {
	raw, ok := fm[key]
	if !ok {
		return nil
	}
	var out []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
		}
	case string:
		// Inline form: "a, b, c".
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// firstHeading returns the text of the first Markdown heading in body.
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}
