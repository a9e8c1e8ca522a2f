package llm

import (
	"regexp"
	"strings"
)

// Oracles frequently wrap JSON in markdown fences or leave trailing commas
// even when asked for a bare json_object. These patterns repair the common
// artifacts before strict parsing.
var (
	fencedObjectRe  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	bareObjectRe    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	fencedArrayRe   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	bareArrayRe     = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls a JSON object (or, failing that, an array) out of an
// oracle response string, unwrapping markdown code fences and removing
// trailing commas. Returns "" when no JSON value is present.
func ExtractJSON(content string) string {
	raw := ""
	switch {
	case firstMatch(fencedObjectRe, content) != "":
		raw = firstMatch(fencedObjectRe, content)
	case bareObjectRe.MatchString(content):
		raw = bareObjectRe.FindString(content)
	case firstMatch(fencedArrayRe, content) != "":
		raw = firstMatch(fencedArrayRe, content)
	case bareArrayRe.MatchString(content):
		raw = bareArrayRe.FindString(content)
	default:
		return ""
	}
	return strings.TrimSpace(trailingCommaRe.ReplaceAllString(raw, "$1"))
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}
