package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/metavoice/voicestudio/internal/models"
	"github.com/metavoice/voicestudio/internal/session"
	"github.com/metavoice/voicestudio/internal/storage"
	"github.com/metavoice/voicestudio/internal/view"
)

type Handler struct {
	session  *session.Session
	storage  *storage.Storage
	upgrader *websocket.Upgrader
}

// NewHandler builds the page handlers. Until NewRouter applies the
// configured origins, websocket upgrades are same-origin only.
func NewHandler(sess *session.Session, stor *storage.Storage) *Handler {
	return &Handler{
		session:  sess,
		storage:  stor,
		upgrader: newUpgrader(nil),
	}
}

func (h *Handler) page() view.Page {
	return view.Build(h.session.Snapshot(), h.storage.GetPublicURL)
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := view.Render(&buf, h.page()); err != nil {
		log.Printf("[API] %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GetState handles GET /v1/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.page())
}

// ToggleRecording handles POST /v1/recording/toggle
func (h *Handler) ToggleRecording(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.ToggleRecording{}, http.StatusOK)
}

// StartRecording handles POST /v1/recording/start
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.StartRecording{}, http.StatusOK)
}

// StopRecording handles POST /v1/recording/stop
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.StopRecording{}, http.StatusOK)
}

// ResetRecording handles DELETE /v1/recording
func (h *Handler) ResetRecording(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.ResetRecording{}, http.StatusOK)
}

// GetRecording handles GET /v1/recordings/{id}
// Serves the held clip so the page's playback control can load it.
func (h *Handler) GetRecording(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid recording ID")
		return
	}

	data, ref, err := h.storage.Download(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Recording not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to load recording")
		return
	}

	etag := strconv.Quote(ref.Hash)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", ref.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(ref.Size, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ListSpeakers handles GET /v1/speakers
func (h *Handler) ListSpeakers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"speakers": models.Speakers,
	})
}

// SelectSpeakers handles PUT /v1/speakers
func (h *Handler) SelectSpeakers(w http.ResponseWriter, r *http.Request) {
	var req models.SelectSpeakersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	speakers, err := models.ParseSpeakers(req.Speakers)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.dispatch(w, r, session.SelectSpeakers{Speakers: speakers}, http.StatusOK)
}

// Convert handles POST /v1/convert
// The request is accepted once the conversion is in flight; results arrive
// through /v1/state and /v1/events.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.Convert{}, http.StatusAccepted)
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// dispatch applies a page action and answers with the resulting view.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, a session.Action, okStatus int) {
	if err := h.session.Dispatch(r.Context(), a); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, okStatus, h.page())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnknownSpeaker):
		return http.StatusBadRequest
	case models.IsValidationError(err):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
