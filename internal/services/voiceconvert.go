package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/metavoice/voicestudio/internal/models"
)

// ---------------------------------------------------------------------------
// Voice conversion HTTP client
// POSTs a multipart form (file + speaker list) to the conversion endpoint and
// decodes the JSON array of {speaker, url} results. No retries.
// ---------------------------------------------------------------------------

const (
	convertFileField    = "file"
	convertSpeakerField = "speaker"
	convertFileName     = "audiofile.webm"

	// Upper bound on the response body we are willing to decode
	maxConvertResponseBytes = 1 << 20
)

// ConversionClient talks to the remote voice-conversion service.
type ConversionClient struct {
	endpoint string
	client   *http.Client
	inFlight *semaphore.Weighted
}

// Ensure ConversionClient implements VoiceConverter at compile time.
var _ VoiceConverter = (*ConversionClient)(nil)

// NewConversionClient creates a client for endpoint. timeout bounds the whole round trip.
func NewConversionClient(endpoint string, timeout time.Duration) *ConversionClient {
	return &ConversionClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		inFlight: semaphore.NewWeighted(1),
	}
}

// NetworkError is a failed conversion round trip: transport failure or a non-2xx status.
type NetworkError struct {
	StatusCode int    // 0 when the request never got a response
	Body       string // Truncated response body for non-2xx answers
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("conversion request failed: %v", e.Err)
	}
	return fmt.Sprintf("conversion service returned status %d: %s", e.StatusCode, e.Body)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Convert implements VoiceConverter. Only one request runs at a time; a
// concurrent call fails with models.ErrConversionInFlight instead of queueing.
func (c *ConversionClient) Convert(ctx context.Context, audio []byte, speakers []models.Speaker) ([]models.ConversionResult, error) {
	if !c.inFlight.TryAcquire(1) {
		return nil, models.ErrConversionInFlight
	}
	defer c.inFlight.Release(1)

	body, contentType, err := buildConvertBody(audio, speakers)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversion request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	log.Printf("[Convert] Uploading clip (%d bytes, speakers=%v)", len(audio), speakers)
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxConvertResponseBytes))
	if err != nil {
		return nil, &NetworkError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 200)}
	}

	results, err := parseConvertResponse(respBody)
	if err != nil {
		return nil, err
	}

	log.Printf("[Convert] Received %d result(s) in %v", len(results), time.Since(start).Round(time.Millisecond))
	return results, nil
}

// buildConvertBody assembles the multipart form: the clip as "file" and the
// JSON-encoded speaker names as "speaker".
func buildConvertBody(audio []byte, speakers []models.Speaker) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	// CreateFormFile always sets application/octet-stream; the service keys on audio/webm
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, convertFileField, convertFileName))
	partHeader.Set("Content-Type", CaptureContentType)

	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}

	names := make([]string, len(speakers))
	for i, s := range speakers {
		names[i] = string(s)
	}
	speakerJSON, err := json.Marshal(names)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal speakers: %w", err)
	}
	if err := writer.WriteField(convertSpeakerField, string(speakerJSON)); err != nil {
		return nil, "", fmt.Errorf("failed to write speaker field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// parseConvertResponse decodes and validates the result array.
func parseConvertResponse(body []byte) ([]models.ConversionResult, error) {
	var results []models.ConversionResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to parse conversion response: %w", err)
	}

	for i, r := range results {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("invalid conversion result %d: %w", i, err)
		}
	}

	if results == nil {
		results = []models.ConversionResult{}
	}
	return results, nil
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
