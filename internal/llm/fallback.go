package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

const fallbackTitle = "Untitled"

var spaceRunRe = regexp.MustCompile(`\s+`)

// fallbackPayload is the minimal routed object emitted when the oracle is
// unavailable or returned garbage.
type fallbackPayload struct {
	Type        string              `json:"type"`
	Title       string              `json:"title"`
	Tags        []string            `json:"tags"`
	Attachments fallbackAttachments `json:"attachments"`
	Form        string              `json:"form"`
}

type fallbackAttachments struct {
	Links []string `json:"links"`
	Files []string `json:"files"`
}

// Fallback computes the deterministic degraded result from the raw user
// payload: form is "link" iff the payload contains an http(s):// token
// (which also becomes the sole attachment link), the title is the first
// line collapsed to at most 80 characters, and the type is the configured
// default.
func (c *Client) Fallback(userPayload string) json.RawMessage {
	url := firstURL(userPayload)
	form := "text"
	links := []string{}
	if url != "" {
		form = "link"
		links = []string{url}
	}

	title := fallbackTitle
	trimmed := strings.TrimSpace(userPayload)
	if trimmed != "" {
		line := strings.SplitN(trimmed, "\n", 2)[0]
		line = spaceRunRe.ReplaceAllString(line, " ")
		// Cap at 80 characters, not bytes: a byte slice would cut a
		// multi-byte rune in half.
		if runes := []rune(line); len(runes) > 80 {
			line = string(runes[:80])
		}
		if line != "" {
			title = line
		}
	}

	out, _ := json.Marshal(fallbackPayload{
		Type:        c.cfg.DefaultType,
		Title:       title,
		Tags:        []string{},
		Attachments: fallbackAttachments{Links: links, Files: []string{}},
		Form:        form,
	})
	return out
}

// firstURL returns the first whitespace-delimited http(s) token in text.
func firstURL(text string) string {
	for _, token := range strings.Fields(text) {
		if strings.HasPrefix(token, "http://") || strings.HasPrefix(token, "https://") {
			return token
		}
	}
	return ""
}
