package pipeline

import (
	"sort"
	"strings"

	"github.com/aeshef/knowledge-bot/internal/slug"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// NormalizeTags converts raw tag candidates into the canonical tag set for
// the given note type. It is pure and side-effect free; both the initial
// route and every reroute/retype go through this single function so the two
// flows cannot drift apart.
//
// Per candidate: require a namespace/value shape, lower-case the namespace,
// resolve synonyms on the raw value, slug the value, then resolve controlled
// namespaces against the allowed list by slug equality (emitting the
// vocabulary's own spelling, first match wins) and drop on no match. Free
// namespaces emit the slug directly. The result is re-validated against the
// controlled tables, de-duplicated, and sorted.
func NormalizeTags(candidates []string, typeName string, voc *vocab.Vocabulary) []string {
	var emitted []string
	for _, candidate := range candidates {
		if tag, ok := normalizeOne(candidate, typeName, voc); ok {
			emitted = append(emitted, tag)
		}
	}

	// Second pass: re-validate controlled namespaces. Candidates that slipped
	// through the first pass as free-form (e.g. a controlled namespace with no
	// allowed list for this type, or tags merged in from a prior payload) are
	// dropped here unless the exact value is allowed.
	var valid []string
	for _, tag := range emitted {
		ns, value, _ := strings.Cut(tag, "/")
		if voc.IsControlled(ns) {
			allowed := voc.AllowedValues(typeName, ns)
			if !containsString(allowed, value) {
				continue
			}
		}
		valid = append(valid, tag)
	}

	seen := make(map[string]struct{}, len(valid))
	out := make([]string, 0, len(valid))
	for _, tag := range valid {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func normalizeOne(candidate, typeName string, voc *vocab.Vocabulary) (string, bool) {
	trimmed := strings.TrimSpace(candidate)
	ns, rawValue, found := strings.Cut(trimmed, "/")
	if !found {
		return "", false
	}
	ns = strings.ToLower(strings.TrimSpace(ns))
	rawValue = strings.TrimSpace(rawValue)

	if canon, ok := voc.Canonical(ns, rawValue); ok {
		rawValue = canon
	}

	candSlug := slug.ASCII(rawValue)

	if voc.IsControlled(ns) {
		allowed := voc.AllowedValues(typeName, ns)
		if len(allowed) > 0 {
			// First allowed value whose own slug matches wins; preserve the
			// vocabulary's canonical spelling, not the slug.
			for _, allowedVal := range allowed {
				if slug.ASCII(allowedVal) == candSlug {
					return ns + "/" + allowedVal, true
				}
			}
			// Never invent an out-of-vocabulary controlled value.
			return "", false
		}
	}

	if ns == "" || candSlug == "" {
		return "", false
	}
	return ns + "/" + candSlug, true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
