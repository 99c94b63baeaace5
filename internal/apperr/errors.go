package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	ErrInvalidTitle       = errors.New("title must not be blank")
	ErrSectionOutOfRange  = errors.New("section index out of range")
	ErrInvalidPermutation = errors.New("invalid section permutation")

	ErrSessionBusy       = errors.New("recording session already open")
	ErrInvalidTransition = errors.New("invalid recording state transition")
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrCapture           = errors.New("capture failed")
	ErrTooShort          = errors.New("recording too short")
	ErrTranscription     = errors.New("transcription failed")
)
