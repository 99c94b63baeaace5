// Package restructure turns recorded audio into structured song sections via
// an external speech-to-text and language-model service.
package restructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/demotape/internal/models"
)

// Prompt instructs the structuring model to answer with the section JSON shape.
const Prompt = `You are a songwriting assistant. Organize the following transcribed voice memo into song sections.
Respond ONLY with a JSON array of objects, each with a "type" field (for example "Verse", "Chorus", "Bridge", "Intro", "Outro", "Notes") and a "content" field holding the lyrics or notes for that section, in song order.
Keep the writer's words. Fix obvious transcription errors only. Put spoken remarks that are not lyrics into a "Notes" section.`

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Structurer asks a language model to organize text into sections. It returns
// the raw model output; callers parse it with ParseSections.
type Structurer interface {
	Restructure(ctx context.Context, text string) (string, error)
}

// ErrMalformed is returned by ParseSections when the output does not have
// the expected shape.
var ErrMalformed = errors.New("restructure: malformed section list")

type sectionJSON struct {
	Type    *string `json:"type"`
	Content *string `json:"content"`
}

// ParseSections decodes raw model output as an ordered list of {type, content}
// objects. Markdown code fences around the array are tolerated. An empty array
// is well formed and yields no sections.
func ParseSections(raw string) ([]models.Section, error) {
	body := stripFences(raw)
	var items []sectionJSON
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: null", ErrMalformed)
	}
	out := make([]models.Section, 0, len(items))
	for i, it := range items {
		if it.Type == nil || it.Content == nil {
			return nil, fmt.Errorf("%w: item %d missing type or content", ErrMalformed, i)
		}
		typ := strings.TrimSpace(*it.Type)
		if typ == "" {
			typ = models.DefaultSectionType
		}
		out = append(out, models.Section{Type: typ, Content: *it.Content, Takes: []models.AudioTake{}})
	}
	return out, nil
}

// SectionsOrFallback parses raw, falling back to a single default section
// holding the raw text verbatim. The boolean reports whether parsing succeeded.
// A well-formed empty list is returned as is; callers substitute the
// transcript.
func SectionsOrFallback(raw string) ([]models.Section, bool) {
	sections, err := ParseSections(raw)
	if err != nil {
		return Fallback(raw), false
	}
	return sections, true
}

// Fallback wraps text as one default section.
func Fallback(text string) []models.Section {
	return []models.Section{{Type: models.DefaultSectionType, Content: text, Takes: []models.AudioTake{}}}
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
