package mcpserver

// NoteFormatContract describes the Markdown note format the capture
// pipeline produces, for LLM consumers reading the vault.
const NoteFormatContract = `# Note Format Contract

Every Markdown note committed by the capture pipeline follows this structure.

## Structure

` + "```" + `markdown
---
type: knowledge                     # note type; selects the vault subdirectory
title: Human-readable title         # primary display name
created: 2025-01-15                 # ISO-8601 date
tags:                               # hierarchical namespace/value tags
  - status/inbox
  - topic/example
---

Body rendered from the type's template, followed by appended sections.
` + "```" + `

## Rules

1. **YAML frontmatter comes first.** The ` + "```" + `---` + "```" + ` fences open the file with
   no leading blank lines.
2. **Tags are namespaced.** A tag is ` + "`" + `namespace/value` + "`" + ` with a lowercase,
   slugified value (e.g. ` + "`" + `status/in-progress` + "`" + `, ` + "`" + `person/jane-doe` + "`" + `).
   Controlled namespaces only carry values from the configured vocabulary.
3. **Type-specific fields** appear as extra frontmatter keys; their allowed
   values come from the vocabulary configuration.
4. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes. Notes live under
   the directory configured for their type.
5. **Encoding** is UTF-8.

## Appended sections

Depending on what was captured, the body is followed by:

- ` + "`" + `## Images` + "`" + ` — embedded attachments as ` + "`" + `![[path]]` + "`" + `
- ` + "`" + `## Files` + "`" + ` — non-image attachments as ` + "`" + `- [[path|name]]` + "`" + `
- ` + "`" + `## Links` + "`" + ` — URLs found in the source, deduplicated
- ` + "`" + `## Source Text` + "`" + ` — the raw captured text
- ` + "`" + `## Summary (ASR)` + "`" + ` and ` + "`" + `## Transcript` + "`" + ` — for voice captures

Raw uploads are preserved under the vault's ` + "`" + `_raw/YYYY/MM/` + "`" + ` shard and
referenced from the note; the note itself never embeds binary content.
`
