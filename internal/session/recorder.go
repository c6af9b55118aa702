package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/metavoice/voicestudio/internal/models"
	"github.com/metavoice/voicestudio/internal/services"
	"github.com/metavoice/voicestudio/internal/storage"
)

// Recorder wraps a capture device and owns the blob of the last finished
// recording.
type Recorder struct {
	device services.CaptureDevice
	store  *storage.Storage

	mu   sync.Mutex
	held *models.BlobRef
}

func NewRecorder(device services.CaptureDevice, store *storage.Storage) *Recorder {
	return &Recorder{
		device: device,
		store:  store,
	}
}

// StartCapture discards any held blob and starts the device. onStopped
// receives the stored clip once the device finalizes it; onError receives
// device failures, including failures to store the clip.
func (r *Recorder) StartCapture(ctx context.Context, onStopped func(models.BlobRef), onError func(error)) error {
	r.Reset()

	return r.device.Start(ctx, services.CaptureCallbacks{
		OnStopped: func(data []byte) {
			ref, err := r.store.Upload(ctx, data, services.CaptureContentType)
			if err != nil {
				onError(&services.CaptureError{Err: fmt.Errorf("failed to store recording: %w", err)})
				return
			}

			r.mu.Lock()
			prev := r.held
			r.held = ref
			r.mu.Unlock()

			if prev != nil {
				r.store.Delete(prev.ID)
			}
			onStopped(*ref)
		},
		OnError: onError,
	})
}

// StopCapture pauses then stops the device; the clip arrives through onStopped.
func (r *Recorder) StopCapture() error {
	if err := r.device.Pause(); err != nil {
		log.Printf("[Recorder] Pause failed, stopping anyway: %v", err)
	}
	return r.device.Stop()
}

// Reset discards the held blob, if any.
func (r *Recorder) Reset() {
	r.mu.Lock()
	held := r.held
	r.held = nil
	r.mu.Unlock()

	if held != nil {
		r.store.Delete(held.ID)
	}
}

// Discard drops one blob, whether or not it is the held one.
func (r *Recorder) Discard(id uuid.UUID) {
	r.mu.Lock()
	if r.held != nil && r.held.ID == id {
		r.held = nil
	}
	r.mu.Unlock()

	r.store.Delete(id)
}

// Held returns the current blob reference, or nil.
func (r *Recorder) Held() *models.BlobRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.held == nil {
		return nil
	}
	ref := *r.held
	return &ref
}

// Resolve returns the raw bytes behind a blob reference.
func (r *Recorder) Resolve(ctx context.Context, ref models.BlobRef) ([]byte, error) {
	data, _, err := r.store.Download(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recording: %w", err)
	}
	return data, nil
}
