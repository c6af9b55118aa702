package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Enums
type Speaker string

const (
	SpeakerDex      Speaker = "Dex"
	SpeakerEva      Speaker = "Eva"
	SpeakerScarlett Speaker = "Scarlett"
	SpeakerZeus     Speaker = "Zeus"
)

// Speakers is the fixed catalogue offered by the conversion endpoint, in display order.
var Speakers = []Speaker{
	SpeakerDex,
	SpeakerEva,
	SpeakerScarlett,
	SpeakerZeus,
}

type ConversionState string

const (
	ConversionIdle     ConversionState = "idle"
	ConversionInFlight ConversionState = "in_flight"
)

// Validation errors. The page disables the controls that would trigger
// these, so the API only sees them from stale or scripted clients.
var (
	ErrNoRecording        = errors.New("no recording available")
	ErrNoSpeakers         = errors.New("no speaker selected")
	ErrUnknownSpeaker     = errors.New("unknown speaker")
	ErrConversionInFlight = errors.New("conversion already in flight")
	ErrAlreadyRecording   = errors.New("recording already in progress")
	ErrNotRecording       = errors.New("not recording")
	ErrRecordingActive    = errors.New("recording in progress")
)

// ErrCapture marks microphone failures (permission denied, device unavailable).
var ErrCapture = errors.New("capture failed")

// IsValidationError reports whether err is a rejected user action rather than a failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNoRecording) ||
		errors.Is(err, ErrNoSpeakers) ||
		errors.Is(err, ErrUnknownSpeaker) ||
		errors.Is(err, ErrConversionInFlight) ||
		errors.Is(err, ErrAlreadyRecording) ||
		errors.Is(err, ErrNotRecording) ||
		errors.Is(err, ErrRecordingActive)
}

// ParseSpeaker matches a speaker name against the catalogue (case-insensitive).
func ParseSpeaker(name string) (Speaker, error) {
	name = strings.TrimSpace(name)
	for _, s := range Speakers {
		if strings.EqualFold(string(s), name) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSpeaker, name)
}

// ParseSpeakers validates a selection, dropping duplicates and keeping the
// order in which names were given.
func ParseSpeakers(names []string) ([]Speaker, error) {
	selected := make([]Speaker, 0, len(names))
	seen := make(map[Speaker]bool, len(names))
	for _, name := range names {
		s, err := ParseSpeaker(name)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		selected = append(selected, s)
	}
	return selected, nil
}

// Models

// BlobRef is an opaque handle to captured audio held by the blob store.
type BlobRef struct {
	ID          uuid.UUID `json:"id"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"` // BLAKE3, hex
}

// ConversionResult is one element of the conversion endpoint's response.
type ConversionResult struct {
	Speaker string `json:"speaker"`
	URL     string `json:"url"`
}

// Validate checks the fields every result must carry.
func (r ConversionResult) Validate() error {
	if r.Speaker == "" {
		return fmt.Errorf("result is missing speaker")
	}
	if r.URL == "" {
		return fmt.Errorf("result for %s is missing url", r.Speaker)
	}
	return nil
}

// DTOs for API requests

type SelectSpeakersRequest struct {
	Speakers []string `json:"speakers"`
}
