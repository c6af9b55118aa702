package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/metavoice/voicestudio/internal/models"
)

const (
	// Recordings are short clips; anything above this is a runaway capture.
	maxBlobSize = 64 << 20

	hashSize = 32
)

var ErrNotFound = errors.New("blob not found")

type blob struct {
	ref  models.BlobRef
	data []byte
}

// Storage holds captured audio in memory for the lifetime of the process.
// Nothing is written through to disk.
type Storage struct {
	baseURL string

	mu    sync.RWMutex
	blobs map[uuid.UUID]blob
}

// New creates a blob store. baseURL prefixes the URLs returned by GetPublicURL.
func New(baseURL string) *Storage {
	return &Storage{
		baseURL: baseURL,
		blobs:   make(map[uuid.UUID]blob),
	}
}

// Upload stores data and returns a new reference to it.
func (s *Storage) Upload(ctx context.Context, data []byte, contentType string) (*models.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("upload cancelled: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("refusing to store empty blob")
	}
	if len(data) > maxBlobSize {
		return nil, fmt.Errorf("blob of %d bytes exceeds limit of %d", len(data), maxBlobSize)
	}

	hash, err := HashReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	ref := models.BlobRef{
		ID:          uuid.New(),
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hash,
	}

	s.mu.Lock()
	s.blobs[ref.ID] = blob{ref: ref, data: data}
	s.mu.Unlock()

	log.Printf("[Storage] Stored blob %s (%d bytes, %s)", ref.ID, ref.Size, contentType)
	return &ref, nil
}

// Download resolves a reference to its raw bytes.
func (s *Storage) Download(ctx context.Context, id uuid.UUID) ([]byte, *models.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("download cancelled: %w", err)
	}

	s.mu.RLock()
	b, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ref := b.ref
	return b.data, &ref, nil
}

// Delete discards a blob. Deleting an unknown id is not an error.
func (s *Storage) Delete(id uuid.UUID) {
	s.mu.Lock()
	_, ok := s.blobs[id]
	delete(s.blobs, id)
	s.mu.Unlock()

	if ok {
		log.Printf("[Storage] Discarded blob %s", id)
	}
}

// Len returns the number of blobs currently held.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// GetPublicURL returns the URL the page uses to play a blob back.
func (s *Storage) GetPublicURL(ref models.BlobRef) string {
	return fmt.Sprintf("%s/v1/recordings/%s", s.baseURL, ref.ID)
}

// HashReader returns the hex BLAKE3 digest of r.
func HashReader(r io.Reader) (string, error) {
	h := blake3.New(hashSize, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("calculating blake3 hash: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
