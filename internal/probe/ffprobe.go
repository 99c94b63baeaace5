// Package probe measures audio durations with ffprobe.
package probe

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFProbe runs the ffprobe binary on a temporary copy of the payload.
type FFProbe struct {
	Path string // binary; "ffprobe" when empty
}

// New returns an FFProbe using the binary at path.
func New(path string) *FFProbe {
	return &FFProbe{Path: path}
}

// Duration writes data to a temp file and asks ffprobe for its length.
func (p *FFProbe) Duration(ctx context.Context, data []byte, mimeType string) (time.Duration, error) {
	f, err := os.CreateTemp("", "demotape-probe-*"+extension(mimeType))
	if err != nil {
		return 0, fmt.Errorf("probe: temp file: %w", err)
	}
	defer func() { _ = os.Remove(f.Name()) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("probe: write temp: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("probe: close temp: %w", err)
	}

	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		f.Name())
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probe: ffprobe: %w", err)
	}
	return ParseDuration(string(out))
}

// ParseDuration converts ffprobe's seconds output ("12.345000") to a duration.
// Containers without a duration header report "N/A".
func ParseDuration(out string) (time.Duration, error) {
	s := strings.TrimSpace(out)
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, fmt.Errorf("probe: unparsable duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(base) {
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a", "audio/aac":
		return ".m4a"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	}
	return ".webm"
}
