package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/metavoice/voicestudio/internal/models"
)

// State is the whole recorder page: recording session, speaker selection,
// conversion request state and the current result batch.
type State struct {
	// Recording session
	Recording    bool            `json:"recording"`
	Finalizing   bool            `json:"finalizing"` // stop requested, waiting for the clip
	Elapsed      int             `json:"elapsed"`    // seconds since the current recording started
	Generation   uint64          `json:"generation"` // bumped on every recording start
	Blob         *models.BlobRef `json:"blob,omitempty"`
	CaptureError string          `json:"capture_error,omitempty"`

	// MaxRecordingSeconds stops the recording automatically (0 = unlimited).
	MaxRecordingSeconds int `json:"max_recording_seconds,omitempty"`

	Speakers []models.Speaker `json:"speakers"`

	Conversion   models.ConversionState    `json:"conversion"`
	Results      []models.ConversionResult `json:"results"`
	ConvertError string                    `json:"convert_error,omitempty"`
}

// NewState returns the state of a freshly loaded page.
func NewState(maxRecordingSeconds int) State {
	return State{
		MaxRecordingSeconds: maxRecordingSeconds,
		Speakers:            []models.Speaker{},
		Conversion:          models.ConversionIdle,
		Results:             []models.ConversionResult{},
	}
}

// CheckConvert returns the validation error that would reject a Convert action, if any.
func (s State) CheckConvert() error {
	if s.Blob == nil {
		return models.ErrNoRecording
	}
	if len(s.Speakers) == 0 {
		return models.ErrNoSpeakers
	}
	if s.Conversion == models.ConversionInFlight {
		return models.ErrConversionInFlight
	}
	return nil
}

// ConvertEnabled reports whether the convert control should be clickable.
func (s State) ConvertEnabled() bool {
	return s.CheckConvert() == nil
}

// ElapsedText is the timer display, MM:SS.
func (s State) ElapsedText() string {
	return FormatElapsed(s.Elapsed)
}

// Clone returns a copy that shares no slices or pointers with s.
func (s State) Clone() State {
	c := s
	if s.Blob != nil {
		blob := *s.Blob
		c.Blob = &blob
	}
	c.Speakers = append([]models.Speaker{}, s.Speakers...)
	c.Results = append([]models.ConversionResult{}, s.Results...)
	return c
}

// FormatElapsed renders a seconds counter as zero-padded MM:SS. Minutes wrap at 60.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", (seconds/60)%60, seconds%60)
}

// ---------------------------------------------------------------------------
// Actions: every user action and async completion is one of these
// ---------------------------------------------------------------------------

type Action interface {
	actionName() string
}

type (
	StartRecording  struct{}
	StopRecording   struct{}
	ToggleRecording struct{}
	ResetRecording  struct{}

	Tick struct {
		Generation uint64
	}

	CaptureStopped struct {
		Generation uint64
		Blob       models.BlobRef
	}

	CaptureFailed struct {
		Generation uint64
		Err        error
	}

	SelectSpeakers struct {
		Speakers []models.Speaker
	}

	Convert struct{}

	ConversionSucceeded struct {
		BlobID  uuid.UUID
		Results []models.ConversionResult
	}

	ConversionFailed struct {
		BlobID uuid.UUID
		Err    error
	}
)

func (StartRecording) actionName() string      { return "start_recording" }
func (StopRecording) actionName() string       { return "stop_recording" }
func (ToggleRecording) actionName() string     { return "toggle_recording" }
func (ResetRecording) actionName() string      { return "reset_recording" }
func (Tick) actionName() string                { return "tick" }
func (CaptureStopped) actionName() string      { return "capture_stopped" }
func (CaptureFailed) actionName() string       { return "capture_failed" }
func (SelectSpeakers) actionName() string      { return "select_speakers" }
func (Convert) actionName() string             { return "convert" }
func (ConversionSucceeded) actionName() string { return "conversion_succeeded" }
func (ConversionFailed) actionName() string    { return "conversion_failed" }

// ---------------------------------------------------------------------------
// Effects requested by a transition and executed by the loop
// ---------------------------------------------------------------------------

type Effect interface {
	effectName() string
}

type (
	startCapture struct{ generation uint64 }
	stopCapture  struct{ generation uint64 }
	startTicker  struct{ generation uint64 }
	stopTicker   struct{}
	discardBlob  struct{ id uuid.UUID }
	convertBlob  struct {
		blob     models.BlobRef
		speakers []models.Speaker
	}
)

func (startCapture) effectName() string { return "start_capture" }
func (stopCapture) effectName() string  { return "stop_capture" }
func (startTicker) effectName() string  { return "start_ticker" }
func (stopTicker) effectName() string   { return "stop_ticker" }
func (discardBlob) effectName() string  { return "discard_blob" }
func (convertBlob) effectName() string  { return "convert_blob" }

// ---------------------------------------------------------------------------
// Reduce
// ---------------------------------------------------------------------------

// Reduce applies one action. It never mutates s. A non-nil error means the
// action was rejected and the returned state equals s.
func Reduce(s State, a Action) (State, []Effect, error) {
	next := s.Clone()

	switch a := a.(type) {
	case ToggleRecording:
		if s.Recording {
			return Reduce(s, StopRecording{})
		}
		return Reduce(s, StartRecording{})

	case StartRecording:
		if s.Recording {
			return s, nil, models.ErrAlreadyRecording
		}
		if s.Finalizing {
			return s, nil, models.ErrRecordingActive
		}

		var effects []Effect
		if s.Blob != nil {
			effects = append(effects, discardBlob{id: s.Blob.ID})
		}

		next.Generation++
		next.Recording = true
		next.Elapsed = 0
		next.Blob = nil
		next.CaptureError = ""
		next.Results = []models.ConversionResult{}
		next.ConvertError = ""

		// Ticker first, so a synchronous capture failure releases it
		effects = append(effects,
			startTicker{generation: next.Generation},
			startCapture{generation: next.Generation},
		)
		return next, effects, nil

	case StopRecording:
		if !s.Recording {
			return s, nil, models.ErrNotRecording
		}
		next.Recording = false
		next.Finalizing = true
		return next, []Effect{stopTicker{}, stopCapture{generation: s.Generation}}, nil

	case ResetRecording:
		if s.Recording || s.Finalizing {
			return s, nil, models.ErrRecordingActive
		}
		if s.Blob == nil {
			return next, nil, nil
		}
		next.Blob = nil
		return next, []Effect{discardBlob{id: s.Blob.ID}}, nil

	case Tick:
		if !s.Recording || a.Generation != s.Generation {
			return s, nil, nil
		}
		next.Elapsed++
		if s.MaxRecordingSeconds > 0 && next.Elapsed >= s.MaxRecordingSeconds {
			return Reduce(next, StopRecording{})
		}
		return next, nil, nil

	case CaptureStopped:
		if a.Generation != s.Generation || !(s.Recording || s.Finalizing) {
			// Clip from an abandoned attempt
			return s, []Effect{discardBlob{id: a.Blob.ID}}, nil
		}
		var effects []Effect
		if s.Recording {
			effects = append(effects, stopTicker{})
		}
		blob := a.Blob
		next.Blob = &blob
		next.Recording = false
		next.Finalizing = false
		return next, effects, nil

	case CaptureFailed:
		if a.Generation != s.Generation || !(s.Recording || s.Finalizing) {
			return s, nil, nil
		}
		next.Recording = false
		next.Finalizing = false
		next.Blob = nil
		next.CaptureError = errorText(a.Err, "microphone capture failed")
		return next, []Effect{stopTicker{}}, nil

	case SelectSpeakers:
		selected := make([]models.Speaker, 0, len(a.Speakers))
		seen := make(map[models.Speaker]bool, len(a.Speakers))
		for _, raw := range a.Speakers {
			sp, err := models.ParseSpeaker(string(raw))
			if err != nil {
				return s, nil, err
			}
			if seen[sp] {
				continue
			}
			seen[sp] = true
			selected = append(selected, sp)
		}
		next.Speakers = selected
		return next, nil, nil

	case Convert:
		if err := s.CheckConvert(); err != nil {
			return s, nil, err
		}
		next.Conversion = models.ConversionInFlight
		next.ConvertError = ""
		return next, []Effect{convertBlob{blob: *s.Blob, speakers: next.Speakers}}, nil

	case ConversionSucceeded:
		next.Conversion = models.ConversionIdle
		if s.Blob == nil || s.Blob.ID != a.BlobID {
			// Recording was replaced or discarded while the request was in flight
			return next, nil, nil
		}
		next.Results = append([]models.ConversionResult{}, a.Results...)
		next.ConvertError = ""
		return next, nil, nil

	case ConversionFailed:
		next.Conversion = models.ConversionIdle
		if s.Blob == nil || s.Blob.ID != a.BlobID {
			return next, nil, nil
		}
		next.ConvertError = errorText(a.Err, "conversion failed")
		return next, nil, nil
	}

	return s, nil, fmt.Errorf("unknown action %T", a)
}

func errorText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
