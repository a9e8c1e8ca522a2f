package pipeline

import (
	"sort"

	"github.com/aeshef/knowledge-bot/internal/models"
)

// MergeReroute folds a previous payload into a freshly routed one after
// derived content (a transcript, OCR text) forced reclassification. The
// fresh payload wins on classification; accumulated state from the previous
// run is carried over so nothing the user already attached is lost.
func MergeReroute(fresh, prev *models.Payload) {
	if prev == nil {
		return
	}

	fresh.Attachments.Links = unionSorted(fresh.Attachments.Links, prev.Attachments.Links)
	fresh.Attachments.Files = freshFirst(fresh.Attachments.Files, prev.Attachments.Files)
	fresh.Filenames = freshFirst(fresh.Filenames, prev.Filenames)

	if prev.RawDir != "" {
		fresh.RawDir = prev.RawDir
	}
	if prev.Form != "" {
		fresh.Form = prev.Form
	}
}

// unionSorted merges two link lists into a sorted set.
func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// freshFirst keeps the fresh list's order and appends previous entries not
// already present.
func freshFirst(fresh, prev []string) []string {
	seen := make(map[string]struct{}, len(fresh))
	out := make([]string, 0, len(fresh)+len(prev))
	for _, v := range fresh {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range prev {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
