package services

import (
	"context"

	"github.com/metavoice/voicestudio/internal/models"
)

// ---------------------------------------------------------------------------
// VoiceConverter: interface for voice-conversion backends
// The session only knows this interface, so the HTTP client can be swapped
// for a fake in tests.
// ---------------------------------------------------------------------------

// VoiceConverter converts one recorded clip into each selected speaker's voice.
type VoiceConverter interface {
	// Convert uploads audio (a WebM clip) and returns one result per converted
	// speaker. An empty slice is a valid answer.
	Convert(ctx context.Context, audio []byte, speakers []models.Speaker) ([]models.ConversionResult, error)
}
