package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/metavoice/voicestudio/internal/metrics"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string

	// Metrics instruments every request when set.
	Metrics *metrics.Metrics

	// MetricsHandler is served on /metrics when set.
	MetricsHandler http.Handler
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /health)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if cfg.Metrics != nil {
		r.Use(Instrument(cfg.Metrics))
	}

	origins := allowedOrigins(cfg.CorsAllowedOrigins)
	h.upgrader = newUpgrader(origins)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "If-None-Match"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", h.Index)
	r.Get("/health", h.Health)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Get("/events", h.Events)

		// Recording session
		r.Post("/recording/toggle", h.ToggleRecording)
		r.Post("/recording/start", h.StartRecording)
		r.Post("/recording/stop", h.StopRecording)
		r.Delete("/recording", h.ResetRecording)
		r.Get("/recordings/{id}", h.GetRecording)

		// Speaker selection
		r.Get("/speakers", h.ListSpeakers)
		r.Put("/speakers", h.SelectSpeakers)

		r.Post("/convert", h.Convert)
	})

	return r
}

// allowedOrigins restricts CORS origins when configured, otherwise allows all (dev mode)
func allowedOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	origins := strings.Split(raw, ",")
	trimmed := make([]string, 0, len(origins))
	for _, o := range origins {
		if s := strings.TrimSpace(o); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return []string{"*"}
	}
	return trimmed
}
