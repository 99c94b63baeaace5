package restructure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/models"
)

// Result is the outcome of processing one recording.
type Result struct {
	Transcript string
	Sections   []models.Section
	// Degraded is set when structuring failed or returned an unusable shape
	// and Sections holds the fallback.
	Degraded bool
}

// Pipeline chains transcription and structuring.
type Pipeline struct {
	transcriber Transcriber
	structurer  Structurer
	timeout     time.Duration
	logger      *slog.Logger
}

// NewPipeline creates a pipeline. A zero timeout disables the per-call deadline.
func NewPipeline(t Transcriber, s Structurer, timeout time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{transcriber: t, structurer: s, timeout: timeout, logger: logger}
}

// Process transcribes audio and structures the transcript. A transcription
// failure is returned wrapped in apperr.ErrTranscription and nothing else is
// produced. A structuring failure degrades to the transcript as one section.
func (p *Pipeline) Process(ctx context.Context, audio []byte, mimeType string) (Result, error) {
	tctx, cancel := p.withTimeout(ctx)
	transcript, err := p.transcriber.Transcribe(tctx, audio, mimeType)
	cancel()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", apperr.ErrTranscription, err)
	}
	transcript = strings.TrimSpace(transcript)
	return p.Structure(ctx, transcript), nil
}

// Structure runs the structuring step alone on an existing transcript.
func (p *Pipeline) Structure(ctx context.Context, transcript string) Result {
	res := Result{Transcript: transcript}

	sctx, cancel := p.withTimeout(ctx)
	raw, err := p.structurer.Restructure(sctx, transcript)
	cancel()
	if err != nil {
		p.logger.Warn("restructure: structuring failed, using transcript", slog.String("error", err.Error()))
		res.Sections = Fallback(transcript)
		res.Degraded = true
		return res
	}

	sections, ok := SectionsOrFallback(raw)
	switch {
	case !ok:
		p.logger.Warn("restructure: malformed model output, using raw response")
		res.Degraded = true
	case len(sections) == 0:
		p.logger.Info("restructure: model returned no sections, using transcript")
		sections = Fallback(transcript)
	}
	res.Sections = sections
	return res
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}
