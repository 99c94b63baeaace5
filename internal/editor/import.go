package editor

import (
	"strings"

	"github.com/starford/demotape/internal/markdown"
	"github.com/starford/demotape/internal/models"
)

// ImportMarkdown creates a note from a Markdown document as produced by
// markdown.Render. The imported content is the note's first history state.
func (c *Coordinator) ImportMarkdown(data []byte) (models.Note, error) {
	doc, err := markdown.Parse(data)
	if err != nil {
		return models.Note{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	created := c.store.Create()
	n, err := c.store.Update(created.ID, func(n *models.Note) error {
		if t := strings.TrimSpace(doc.Title); t != "" {
			n.Title = t
		}
		if doc.Format == models.FormatOpen {
			n.EditorFormat = models.FormatOpen
			n.PolishedNote = strings.TrimRight(doc.Body, "\n")
			n.Sections = []models.Section{}
			return nil
		}
		if len(doc.Sections) > 0 {
			n.Sections = models.CloneSections(doc.Sections)
		}
		n.RefreshPolished()
		return nil
	})
	if err != nil {
		return models.Note{}, err
	}
	c.hist.Delete(n.ID)
	c.hist.Init(n.ID, models.Snapshot(&n))
	return n, nil
}
