// Package slug provides the canonical ASCII slug used for tag matching and
// the file-name slug used when writing notes to the vault.
package slug

import (
	"regexp"
	"strings"
)

// translit maps Cyrillic runes to their ASCII phonetic equivalents.
// Upper-case letters map to lower-case output since slugs are lower-case.
var translit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "i", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	'А': "a", 'Б': "b", 'В': "v", 'Г': "g", 'Д': "d", 'Е': "e", 'Ё': "e",
	'Ж': "zh", 'З': "z", 'И': "i", 'Й': "i", 'К': "k", 'Л': "l", 'М': "m",
	'Н': "n", 'О': "o", 'П': "p", 'Р': "r", 'С': "s", 'Т': "t", 'У': "u",
	'Ф': "f", 'Х': "h", 'Ц': "c", 'Ч': "ch", 'Ш': "sh", 'Щ': "shch",
	'Ъ': "", 'Ы': "y", 'Ь': "", 'Э': "e", 'Ю': "yu", 'Я': "ya",
}

var (
	disallowedRe = regexp.MustCompile(`[^a-z0-9\-/]`)
	hyphenRunRe  = regexp.MustCompile(`-+`)

	fileNameDropRe = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// Transliterate converts Cyrillic characters in s to ASCII equivalents.
// Non-Cyrillic runes pass through unchanged.
func Transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if repl, ok := translit[r]; ok {
			b.WriteString(repl)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ASCII returns the canonical slug: transliterated, lower-cased, whitespace
// and underscores replaced with hyphens, everything outside [a-z0-9-/]
// stripped, hyphen runs collapsed, leading/trailing hyphens trimmed.
// Two surface forms are considered equal when their ASCII slugs match.
func ASCII(s string) string {
	s = Transliterate(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = disallowedRe.ReplaceAllString(s, "")
	s = hyphenRunRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// FileName derives a vault file-name slug from a note title: punctuation
// removed, whitespace collapsed to underscores. Unicode letters are kept so
// titles in any language remain readable in the file tree.
func FileName(title string) string {
	s := strings.TrimSpace(title)
	s = fileNameDropRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, "_")
	if s == "" {
		return "note"
	}
	return s
}
