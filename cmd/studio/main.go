package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/metavoice/voicestudio/internal/api"
	"github.com/metavoice/voicestudio/internal/config"
	"github.com/metavoice/voicestudio/internal/metrics"
	"github.com/metavoice/voicestudio/internal/services"
	"github.com/metavoice/voicestudio/internal/session"
	"github.com/metavoice/voicestudio/internal/storage"
)

func main() {
	log.Println("Starting Voice Studio...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Recordings are served back to the page from this process, so URLs stay relative
	stor := storage.New("")

	capture := services.NewFFmpegCapture(cfg.FFmpegPath, cfg.CaptureFormat, cfg.CaptureDevice, cfg.CaptureTempDir)
	log.Printf("Microphone: %s (%s) via %s", cfg.CaptureDevice, cfg.CaptureFormat, cfg.FFmpegPath)

	converter := services.NewConversionClient(cfg.ConvertEndpoint, cfg.ConvertTimeout)
	log.Printf("Voice conversion endpoint: %s", cfg.ConvertEndpoint)

	var m *metrics.Metrics
	routerCfg := api.RouterConfig{CorsAllowedOrigins: cfg.CorsAllowedOrigins}
	if cfg.MetricsEnabled {
		m = metrics.NewMetrics(prometheus.DefaultRegisterer)
		routerCfg.Metrics = m
		routerCfg.MetricsHandler = promhttp.Handler()
		log.Println("Prometheus metrics enabled on /metrics")
	}

	sess := session.New(capture, converter, stor, session.Options{
		MaxRecordingSeconds: cfg.MaxRecordingSeconds,
		Metrics:             m,
	})
	if cfg.MaxRecordingSeconds > 0 {
		log.Printf("Recordings stop automatically after %ds", cfg.MaxRecordingSeconds)
	}

	handler := api.NewHandler(sess, stor)
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: api.NewRouter(handler, routerCfg),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := sess.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		log.Printf("Studio listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server exited")
}
