package mcpserver

// SectionFormatContract describes the section JSON accepted by apply_sections
// and the Markdown shape accepted by import_markdown and returned by read_note.
const SectionFormatContract = `# demotape Section Format

A note is a song idea made of ordered sections. Each section has a free-form
type label and text content. Recorded takes hang off sections and are managed
with the attach_take tool.

## apply_sections

Pass a JSON array, in song order:

` + "```" + `json
[
  {"type": "Verse", "content": "first lines of the verse"},
  {"type": "Chorus", "content": "the hook"},
  {"type": "Notes", "content": "remarks that are not lyrics"}
]
` + "```" + `

Rules:

1. Both ` + "`" + `type` + "`" + ` and ` + "`" + `content` + "`" + ` are required on every object.
2. Suggested types: Intro, Verse, Pre-Chorus, Chorus, Bridge, Hook, Outro, Notes.
   Any label is accepted; a blank type becomes Verse.
3. If the note is empty the sections replace it, otherwise they are appended.
4. Output that is not a valid array is stored as a single Verse holding the raw text.
5. Every apply is one undo step; use the undo tool to revert it.

## Markdown

` + "```" + `markdown
---
title: Night drive
format: structured
---
# Night drive

## Verse

headlights on the water

## Chorus

keep on driving
` + "```" + `

- ` + "`" + `## Type` + "`" + ` headings start sections. Text before the first heading becomes a Verse.
- ` + "`" + `format: open` + "`" + ` stores the body as free text without sections.
- The title comes from frontmatter, then the first ` + "`" + `# ` + "`" + ` heading.

## Takes

attach_take accepts a base64 data URI (` + "`" + `data:audio/webm;base64,...` + "`" + `).
Supported containers: webm, ogg, mp3, wav, m4a. Content is checked against the
declared type.
`
