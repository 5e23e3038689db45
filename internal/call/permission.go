package call

import (
	"errors"

	"github.com/hackgods/telecare/internal/localmedia"
)

const (
	MsgAudioOnly        = "Camera access denied. Audio-only mode enabled."
	MsgMicDenied        = "Microphone access denied. Please allow microphone permission in your settings and try again."
	MsgMicNotFound      = "No microphone found. Please connect a microphone and try again."
	MsgMediaUnavailable = "Unable to access camera or microphone. Please check your device settings."
)

// PermissionError is a media failure the user has to fix outside the app.
type PermissionError struct {
	Message string
	Err     error
}

func (e *PermissionError) Error() string { return e.Message }
func (e *PermissionError) Unwrap() error { return e.Err }

func audioFailure(err error) *PermissionError {
	switch {
	case errors.Is(err, localmedia.ErrPermissionDenied):
		return &PermissionError{Message: MsgMicDenied, Err: err}
	case errors.Is(err, localmedia.ErrDeviceNotFound):
		return &PermissionError{Message: MsgMicNotFound, Err: err}
	default:
		return &PermissionError{Message: MsgMediaUnavailable, Err: err}
	}
}

// PermissionRemediation lists the steps shown under a permission error.
func PermissionRemediation() []string {
	return []string{
		"Click the lock icon or camera icon in your browser's address bar",
		`Change Camera and Microphone permissions to "Allow"`,
		"Refresh this page",
	}
}
