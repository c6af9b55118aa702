package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/metavoice/voicestudio/internal/models"
)

// ---------------------------------------------------------------------------
// CaptureDevice: microphone capture capability
// The session drives whichever device is configured through this interface;
// tests substitute a scripted fake.
// ---------------------------------------------------------------------------

// CaptureCallbacks receive the asynchronous outcome of a capture.
// Exactly one of them is called per successful Start.
type CaptureCallbacks struct {
	// OnStopped delivers the finalized clip after Stop.
	OnStopped func(data []byte)
	// OnError reports a capture that ended without Stop, or could not be finalized.
	OnError func(err error)
}

// CaptureDevice is the interface any microphone backend must implement.
type CaptureDevice interface {
	// Start begins capturing. An error means nothing was started and no callback will fire.
	Start(ctx context.Context, cb CaptureCallbacks) error
	// Pause suspends capture where the backend supports it.
	Pause() error
	// Stop ends capture; the clip arrives later through OnStopped.
	Stop() error
}

// CaptureContentType is the media type of every finalized clip.
const CaptureContentType = "audio/webm"

// CaptureError is a device-level failure: permission denied, device missing,
// or the capture process dying mid-recording.
type CaptureError struct {
	Err    error
	Detail string // Last lines of the backend's diagnostic output, if any
}

func (e *CaptureError) Error() string {
	msg := "microphone capture failed"
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Is makes every CaptureError match models.ErrCapture.
func (e *CaptureError) Is(target error) bool {
	return target == models.ErrCapture
}

// IsCaptureError reports whether err came from the capture device.
func IsCaptureError(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce)
}
