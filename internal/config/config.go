package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const DefaultConvertEndpoint = "https://small-shadow-digit.glitch.me/convertVoice"

type Config struct {
	// Server
	APIPort            string
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	MetricsEnabled     bool

	// Conversion service
	ConvertEndpoint string
	ConvertTimeout  time.Duration

	// Capture (ffmpeg)
	FFmpegPath     string
	CaptureFormat  string // ffmpeg input format: pulse, alsa, avfoundation, dshow
	CaptureDevice  string // ffmpeg input device name
	CaptureTempDir string

	// MaxRecordingSeconds stops a recording automatically once reached (0 = unlimited).
	MaxRecordingSeconds int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:             getEnv("API_PORT", "8080"),
		CorsAllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", ""),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		ConvertEndpoint:     getEnv("CONVERT_ENDPOINT", DefaultConvertEndpoint),
		ConvertTimeout:      time.Duration(getEnvInt("CONVERT_TIMEOUT_SECONDS", 120)) * time.Second,
		FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),
		CaptureFormat:       getEnv("CAPTURE_FORMAT", "pulse"),
		CaptureDevice:       getEnv("CAPTURE_DEVICE", "default"),
		CaptureTempDir:      getEnv("CAPTURE_TEMP_DIR", "/tmp/voicestudio"),
		MaxRecordingSeconds: getEnvInt("MAX_RECORDING_SECONDS", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.APIPort == "" {
		return fmt.Errorf("API_PORT is required")
	}
	if _, err := strconv.Atoi(c.APIPort); err != nil {
		return fmt.Errorf("API_PORT must be numeric, got %q", c.APIPort)
	}

	u, err := url.Parse(c.ConvertEndpoint)
	if err != nil {
		return fmt.Errorf("CONVERT_ENDPOINT is invalid: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("CONVERT_ENDPOINT must be an absolute http(s) URL, got %q", c.ConvertEndpoint)
	}

	if c.ConvertTimeout <= 0 {
		return fmt.Errorf("CONVERT_TIMEOUT_SECONDS must be positive")
	}

	if c.CaptureFormat == "" || c.CaptureDevice == "" {
		return fmt.Errorf("CAPTURE_FORMAT and CAPTURE_DEVICE are required")
	}

	if c.MaxRecordingSeconds < 0 {
		return fmt.Errorf("MAX_RECORDING_SECONDS must not be negative")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
