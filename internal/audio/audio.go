// Package audio validates uploaded recordings and decodes data URIs.
package audio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// MaxSize is the largest accepted recording.
const MaxSize = 25 << 20 // 25 MB

// Supported lists the accepted container types.
var Supported = map[string]bool{
	"audio/webm": true,
	"audio/ogg":  true,
	"audio/mpeg": true,
	"audio/wav":  true,
	"audio/mp4":  true,
}

var aliases = map[string]string{
	"audio/x-wav":     "audio/wav",
	"audio/wave":      "audio/wav",
	"audio/x-m4a":     "audio/mp4",
	"audio/aac":       "audio/mp4",
	"audio/mp3":       "audio/mpeg",
	"video/webm":      "audio/webm",
	"video/mp4":       "audio/mp4",
	"application/ogg": "audio/ogg",
}

// Normalize strips codec parameters and maps aliases to a Supported type.
func Normalize(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if a, ok := aliases[base]; ok {
		return a
	}
	return base
}

// Detect sniffs the container type from magic bytes. It returns "" when the
// payload is not a recognised audio container.
func Detect(data []byte) string {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "audio/webm"
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "audio/mp4"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "audio/mpeg" // frame sync without ID3 header
	}
	if d := Normalize(http.DetectContentType(data)); Supported[d] {
		return d
	}
	return ""
}

// Validate checks size and that the content matches the declared type. An
// empty declared type accepts any supported container. The effective type is
// returned.
func Validate(data []byte, declared string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("audio: empty payload")
	}
	if len(data) > MaxSize {
		return "", fmt.Errorf("audio: too large: %d bytes (max %d)", len(data), MaxSize)
	}
	detected := Detect(data)
	if detected == "" {
		return "", fmt.Errorf("audio: unrecognised content (detected: %s)", http.DetectContentType(data))
	}
	if declared == "" {
		return detected, nil
	}
	want := Normalize(declared)
	if !Supported[want] {
		return "", fmt.Errorf("audio: unsupported type %s", declared)
	}
	if want != detected {
		return "", fmt.Errorf("audio: content does not match %s (detected: %s)", declared, detected)
	}
	// Keep codec parameters the caller declared.
	return declared, nil
}

// DecodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func DecodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("audio: not a data URI")
	}
	meta, encoded, found := strings.Cut(rest, ",")
	if !found {
		return nil, "", fmt.Errorf("audio: invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("audio: only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("audio: invalid base64 data: %w", err)
		}
	}
	mime := strings.Replace(meta, ";base64", "", 1)
	return data, mime, nil
}
