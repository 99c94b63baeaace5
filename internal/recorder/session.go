// Package recorder runs the lifecycle of a single audio capture session and
// hands its result to the editor as a take or as a transcription.
package recorder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/demotape/internal/apperr"
	"github.com/starford/demotape/internal/models"
	"github.com/starford/demotape/internal/restructure"
)

// State is a recording session state.
type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateRecording            State = "recording"
	StatePaused               State = "paused"
	StateFinishing            State = "finishing"
	StateCommitted            State = "committed"
	StateDiscarded            State = "discarded"
)

// DefaultMinCaptureBytes is the size below which a capture is considered
// degenerate.
const DefaultMinCaptureBytes = 1000

// WholeNote as a target section index sends the recording through
// transcription instead of attaching it as a take.
const WholeNote = -1

// ErrCanceled is returned by a blocking call whose session was canceled
// while it waited.
var ErrCanceled = errors.New("recorder: session canceled")

// Target is where a finished recording goes.
type Target struct {
	NoteID       string `json:"noteId"`
	SectionIndex int    `json:"sectionIndex"`
}

// Transition is reported to observers on every state change. Error carries
// Err's message for JSON consumers.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Target Target    `json:"target"`
	Err    error     `json:"-"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// Status is a point-in-time view of the session.
type Status struct {
	State  State     `json:"state"`
	Target *Target   `json:"target,omitempty"`
	Since  time.Time `json:"since"`
}

// Processor runs whole-note recordings through transcription and structuring.
type Processor interface {
	Process(ctx context.Context, audio []byte, mimeType string) (restructure.Result, error)
}

// Editor receives finished recordings.
type Editor interface {
	AttachTake(noteID string, index int, take models.AudioTake) (models.Note, error)
	ApplyAIResult(noteID, transcript string, sections []models.Section) (models.Note, error)
}

// Result describes a committed recording.
type Result struct {
	Note     models.Note
	Take     *models.AudioTake
	Degraded bool
}

// Session is the single, application-wide recording session. Observers are
// called with the session lock held and must not call back into it.
type Session struct {
	mic       Microphone
	prober    DurationProber
	processor Processor
	editor    Editor
	logger    *slog.Logger
	minBytes  int
	timeout   time.Duration
	now       func() time.Time

	mu        sync.Mutex
	state     State
	since     time.Time
	target    Target
	capture   Capture
	gen       uint64
	observers []func(Transition)
}

// Option configures a Session.
type Option func(*Session)

// WithProber sets the duration prober. Without one takes have zero duration.
func WithProber(p DurationProber) Option {
	return func(s *Session) { s.prober = p }
}

// WithProcessor sets the whole-note transcription pipeline.
func WithProcessor(p Processor) Option {
	return func(s *Session) { s.processor = p }
}

// WithMinCaptureBytes overrides DefaultMinCaptureBytes.
func WithMinCaptureBytes(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.minBytes = n
		}
	}
}

// WithProbeTimeout bounds the duration probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithObserver registers a transition observer.
func WithObserver(fn func(Transition)) Option {
	return func(s *Session) { s.observers = append(s.observers, fn) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates an idle session.
func NewSession(mic Microphone, editor Editor, opts ...Option) *Session {
	s := &Session{
		mic:      mic,
		editor:   editor,
		logger:   slog.Default(),
		minBytes: DefaultMinCaptureBytes,
		timeout:  10 * time.Second,
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.since = s.now()
	return s
}

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, Since: s.since}
	if s.state != StateIdle {
		t := s.target
		st.Target = &t
	}
	return st
}

// Start opens a session for target. It fails with apperr.ErrSessionBusy while
// another session is open.
func (s *Session) Start(ctx context.Context, target Target) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return apperr.ErrSessionBusy
	}
	s.gen++
	gen := s.gen
	s.target = target
	s.setState(StateRequestingPermission, nil)
	s.mu.Unlock()

	if err := s.mic.RequestPermission(ctx); err != nil {
		err = fmt.Errorf("%w: %v", apperr.ErrPermissionDenied, err)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return ErrCanceled
		}
		s.setState(StateIdle, err)
		s.logger.Warn("recorder: permission denied", slog.String("error", err.Error()))
		return err
	}

	capture, err := s.mic.Open(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		if capture != nil {
			capture.Discard()
		}
		return ErrCanceled
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", apperr.ErrCapture, err)
		s.setState(StateIdle, err)
		s.logger.Error("recorder: open capture failed", slog.String("error", err.Error()))
		return err
	}
	s.capture = capture
	s.setState(StateRecording, nil)
	return nil
}

// Pause freezes the capture. The stream stays open.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording || s.capture == nil {
		return apperr.ErrInvalidTransition
	}
	if err := s.capture.Pause(); err != nil {
		return fmt.Errorf("recorder: pause: %w", err)
	}
	s.setState(StatePaused, nil)
	return nil
}

// Redo throws away the paused capture and starts a fresh one. It does not
// resume. While the new capture opens the session stays paused with no
// capture, and Finish and Redo are rejected.
func (s *Session) Redo(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StatePaused || s.capture == nil {
		s.mu.Unlock()
		return apperr.ErrInvalidTransition
	}
	s.capture.Discard()
	s.capture = nil
	gen := s.gen
	s.mu.Unlock()

	capture, err := s.mic.Open(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StatePaused {
		if capture != nil {
			capture.Discard()
		}
		return ErrCanceled
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", apperr.ErrCapture, err)
		s.setState(StateDiscarded, err)
		s.setState(StateIdle, nil)
		return err
	}
	s.capture = capture
	s.setState(StateRecording, nil)
	return nil
}

// Cancel discards the session from any non-idle state without committing.
// A commit still in flight is dropped.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return
	}
	s.gen++
	if s.capture != nil {
		s.capture.Discard()
		s.capture = nil
	}
	s.setState(StateDiscarded, nil)
	s.setState(StateIdle, nil)
}

// Finish stops the capture and commits the recording to its target.
func (s *Session) Finish(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if (s.state != StateRecording && s.state != StatePaused) || s.capture == nil {
		s.mu.Unlock()
		return Result{}, apperr.ErrInvalidTransition
	}
	capture := s.capture
	s.capture = nil
	target := s.target
	gen := s.gen
	s.setState(StateFinishing, nil)
	s.mu.Unlock()

	data, err := capture.Stop(ctx)
	if err != nil {
		return Result{}, s.discard(gen, fmt.Errorf("%w: %v", apperr.ErrCapture, err))
	}
	if len(data) < s.minBytes {
		s.logger.Info("recorder: capture too short", slog.Int("bytes", len(data)))
		return Result{}, s.discard(gen, apperr.ErrTooShort)
	}
	mime := capture.MimeType()

	if target.SectionIndex >= 0 {
		return s.commitTake(ctx, gen, target, data, mime)
	}
	return s.commitTranscription(ctx, gen, target, data, mime)
}

func (s *Session) commitTake(ctx context.Context, gen uint64, target Target, data []byte, mime string) (Result, error) {
	take := models.AudioTake{
		ID:         uuid.NewString(),
		AudioData:  base64.StdEncoding.EncodeToString(data),
		MimeType:   mime,
		DurationMs: s.probe(ctx, data, mime).Milliseconds(),
		Timestamp:  s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return Result{}, ErrCanceled
	}
	n, err := s.editor.AttachTake(target.NoteID, target.SectionIndex, take)
	if err != nil {
		s.setState(StateDiscarded, err)
		s.setState(StateIdle, nil)
		return Result{}, fmt.Errorf("recorder: attach take: %w", err)
	}
	s.setState(StateCommitted, nil)
	s.setState(StateIdle, nil)
	return Result{Note: n, Take: &take}, nil
}

func (s *Session) commitTranscription(ctx context.Context, gen uint64, target Target, data []byte, mime string) (Result, error) {
	if s.processor == nil {
		return Result{}, s.discard(gen, fmt.Errorf("%w: no transcription service configured", apperr.ErrTranscription))
	}
	res, err := s.processor.Process(ctx, data, mime)
	if err != nil {
		s.logger.Error("recorder: transcription failed", slog.String("error", err.Error()))
		return Result{}, s.discard(gen, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return Result{}, ErrCanceled
	}
	n, err := s.editor.ApplyAIResult(target.NoteID, res.Transcript, res.Sections)
	if err != nil {
		s.setState(StateDiscarded, err)
		s.setState(StateIdle, nil)
		return Result{}, fmt.Errorf("recorder: apply transcription: %w", err)
	}
	s.setState(StateCommitted, nil)
	s.setState(StateIdle, nil)
	return Result{Note: n, Degraded: res.Degraded}, nil
}

// probe measures duration. Failures are logged and yield zero.
func (s *Session) probe(ctx context.Context, data []byte, mime string) time.Duration {
	if s.prober == nil {
		return 0
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	d, err := s.prober.Duration(ctx, data, mime)
	if err != nil {
		s.logger.Warn("recorder: duration probe failed", slog.String("error", err.Error()))
		return 0
	}
	return d
}

// discard moves a finishing session to idle and returns err, unless the
// session was canceled meanwhile.
func (s *Session) discard(gen uint64, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrCanceled
	}
	s.setState(StateDiscarded, err)
	s.setState(StateIdle, nil)
	return err
}

// setState records a transition. Caller holds the lock.
func (s *Session) setState(to State, err error) {
	t := Transition{From: s.state, To: to, Target: s.target, Err: err, At: s.now()}
	if err != nil {
		t.Error = err.Error()
	}
	s.state = to
	s.since = t.At
	for _, fn := range s.observers {
		fn(t)
	}
}
