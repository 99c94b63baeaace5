package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/starford/demotape/internal/apperr"
)

// Microphone grants access to an input device and opens captures on it.
type Microphone interface {
	RequestPermission(ctx context.Context) error
	Open(ctx context.Context) (Capture, error)
}

// Capture is one in-progress recording.
type Capture interface {
	MimeType() string
	Pause() error
	// Stop ends the capture, releases the stream and returns the payload.
	Stop(ctx context.Context) ([]byte, error)
	// Discard releases the stream and drops the payload.
	Discard()
}

// DurationProber measures the length of an encoded payload.
type DurationProber interface {
	Duration(ctx context.Context, data []byte, mimeType string) (time.Duration, error)
}

// DefaultMimeType is used when a client does not name its encoding.
const DefaultMimeType = "audio/webm"

var (
	errNotRecording = fmt.Errorf("recorder: no open capture: %w", apperr.ErrInvalidTransition)
	errPaused       = fmt.Errorf("recorder: capture is paused: %w", apperr.ErrInvalidTransition)
	errDenied       = errors.New("microphone access disabled")
)

// PushMicrophone is a Microphone fed by a remote client: audio chunks are
// pushed with Write while a capture is open.
type PushMicrophone struct {
	allow bool

	mu      sync.Mutex
	mime    string
	current *pushCapture
}

// NewPushMicrophone creates a push-fed microphone. With allow false every
// permission request is denied.
func NewPushMicrophone(allow bool) *PushMicrophone {
	return &PushMicrophone{allow: allow, mime: DefaultMimeType}
}

// SetMimeType sets the encoding of the captures opened next.
func (m *PushMicrophone) SetMimeType(mime string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mime == "" {
		mime = DefaultMimeType
	}
	m.mime = mime
}

func (m *PushMicrophone) RequestPermission(context.Context) error {
	if !m.allow {
		return errDenied
	}
	return nil
}

func (m *PushMicrophone) Open(context.Context) (Capture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &pushCapture{mic: m, mime: m.mime}
	m.current = c
	return c, nil
}

// Write appends a chunk to the open capture.
func (m *PushMicrophone) Write(chunk []byte) (int, error) {
	m.mu.Lock()
	c := m.current
	m.mu.Unlock()
	if c == nil {
		return 0, errNotRecording
	}
	return c.write(chunk)
}

func (m *PushMicrophone) release(c *pushCapture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == c {
		m.current = nil
	}
}

type pushCapture struct {
	mic  *PushMicrophone
	mime string

	mu     sync.Mutex
	buf    bytes.Buffer
	paused bool
	closed bool
}

func (c *pushCapture) MimeType() string { return c.mime }

func (c *pushCapture) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errNotRecording
	}
	c.paused = true
	return nil
}

func (c *pushCapture) Stop(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errNotRecording
	}
	c.closed = true
	c.mic.release(c)
	return bytes.Clone(c.buf.Bytes()), nil
}

func (c *pushCapture) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.buf.Reset()
	c.mic.release(c)
}

func (c *pushCapture) write(chunk []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return 0, errNotRecording
	case c.paused:
		return 0, errPaused
	}
	return c.buf.Write(chunk)
}
