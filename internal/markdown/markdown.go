// Package markdown renders notes as Markdown with YAML frontmatter and parses
// such documents back for import.
package markdown

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/demotape/internal/models"
)

// Frontmatter is the metadata block written by Render.
type Frontmatter struct {
	Title   string              `yaml:"title"`
	Format  models.EditorFormat `yaml:"format"`
	Project string              `yaml:"project,omitempty"`
	Updated time.Time           `yaml:"updated"`
	Takes   int                 `yaml:"takes,omitempty"`
}

// Result holds the output of parsing a Markdown document.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	Format      models.EditorFormat
	// Sections is set for structured documents: one per "## Type" heading.
	Sections []models.Section
}

// Render writes n as frontmatter plus body. Structured notes become one
// "## Type" heading per section; open notes emit their text verbatim.
// project may be nil.
func Render(n models.Note, project *models.Project) ([]byte, error) {
	fm := Frontmatter{
		Title:   n.Title,
		Format:  n.EditorFormat,
		Updated: n.Timestamp.UTC(),
		Takes:   len(n.TakeIDs()),
	}
	if project != nil {
		fm.Project = project.Name
	}
	head, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("markdown: encode frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(head)
	buf.WriteString("---\n")
	fmt.Fprintf(&buf, "# %s\n\n", n.Title)

	if n.EditorFormat == models.FormatOpen {
		buf.WriteString(n.PolishedNote)
		if !strings.HasSuffix(n.PolishedNote, "\n") {
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	}
	for i, s := range n.Sections {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "## %s\n\n", s.Type)
		if s.Content != "" {
			buf.WriteString(s.Content)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// Parse extracts frontmatter, body, title and sections from raw Markdown.
// Documents without a format field are treated as structured.
func Parse(data []byte) (*Result, error) {
	fm, body := splitFrontmatter(data)

	res := &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		Format:      models.FormatStructured,
	}
	if f, ok := fm["format"].(string); ok && models.EditorFormat(f) == models.FormatOpen {
		res.Format = models.FormatOpen
		res.Body = stripTitle(body)
		return res, nil
	}
	res.Sections = splitSections(stripTitle(body))
	return res, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: the whole document is body.
		return nil, string(data)
	}
	return fm, body
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if t, ok := fm["title"].(string); ok && t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// stripTitle drops a leading H1 line.
func stripTitle(body string) string {
	first, rest, _ := strings.Cut(body, "\n")
	if strings.HasPrefix(strings.TrimSpace(first), "# ") {
		return strings.TrimLeft(rest, "\n")
	}
	return body
}

// splitSections turns "## Type" headings into sections. Text before the
// first heading becomes a default section when it is not blank.
func splitSections(body string) []models.Section {
	var (
		out     []models.Section
		cur     *models.Section
		content []string
	)
	flush := func() {
		text := strings.Trim(strings.Join(content, "\n"), "\n")
		switch {
		case cur != nil:
			cur.Content = text
			out = append(out, *cur)
		case strings.TrimSpace(text) != "":
			out = append(out, models.Section{Type: models.DefaultSectionType, Content: text, Takes: []models.AudioTake{}})
		}
		content = content[:0]
	}
	for _, line := range strings.Split(body, "\n") {
		if typ, ok := strings.CutPrefix(line, "## "); ok {
			flush()
			cur = &models.Section{Type: strings.TrimSpace(typ), Takes: []models.AudioTake{}}
			continue
		}
		content = append(content, line)
	}
	flush()
	return out
}
