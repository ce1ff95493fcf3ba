package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Sessions    SessionsConfig  `toml:"sessions"`
	OCR         OCRConfig       `toml:"ocr"`
	Render      RenderConfig    `toml:"render"`
	Speech      SpeechConfig    `toml:"speech"`
	Video       VideoConfig     `toml:"video"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger    BadgerConfig    `toml:"badger"`
	Artifacts ArtifactsConfig `toml:"artifacts"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// ArtifactsConfig controls where artifact bytes are written
type ArtifactsConfig struct {
	Dir            string `toml:"dir"`              // Root directory; one subdirectory per session
	MaxUploadBytes int64  `toml:"max_upload_bytes"` // Upload size limit (0 = unlimited)
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// SessionsConfig controls session expiry
type SessionsConfig struct {
	IdleTimeout   string `toml:"idle_timeout"`   // Sessions idle longer than this are ended, e.g. "2h"
	SweepSchedule string `toml:"sweep_schedule"` // Cron expression (with seconds) for the expiry sweep
}

// OCRConfig configures the tesseract engine
type OCRConfig struct {
	Languages []string `toml:"languages"` // Default tesseract languages, e.g. ["eng"]
	Workers   int      `toml:"workers"`   // Pages recognised concurrently by ocr_pdf
}

// RenderConfig configures PDF rasterisation
type RenderConfig struct {
	DPI float64 `toml:"dpi"` // Default render resolution for pdf_to_images and ocr_pdf
}

// SpeechConfig configures the text-to-speech backend
type SpeechConfig struct {
	BaseURL         string `toml:"base_url"`         // translate_tts compatible endpoint
	DefaultLanguage string `toml:"default_language"` // Language used when the request omits one
	Timeout         string `toml:"timeout"`          // Per-request timeout, e.g. "30s"
	RateLimit       string `toml:"rate_limit"`       // Minimum interval between backend requests, e.g. "200ms"
}

// VideoConfig configures the ffmpeg transcoder
type VideoConfig struct {
	DefaultHeight int    `toml:"default_height"` // Target height when resize_video omits one
	TempDir       string `toml:"temp_dir"`       // Scratch directory for ffmpeg input/output
}

// WebSocketConfig contains configuration for the operation event stream
type WebSocketConfig struct {
	// Whitelist of event types to broadcast. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	// Minimum interval between broadcasts of the same event type, e.g. "250ms". Empty disables throttling.
	ThrottleInterval string `toml:"throttle_interval"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/db",
			},
			Artifacts: ArtifactsConfig{
				Dir:            "./data/artifacts",
				MaxUploadBytes: 200 * 1024 * 1024, // 200MB
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Sessions: SessionsConfig{
			IdleTimeout:   "2h",
			SweepSchedule: "0 */5 * * * *", // Every 5 minutes
		},
		OCR: OCRConfig{
			Languages: []string{"eng"},
			Workers:   4,
		},
		Render: RenderConfig{
			DPI: 150,
		},
		Speech: SpeechConfig{
			BaseURL:         "https://translate.google.com/translate_tts",
			DefaultLanguage: "en",
			Timeout:         "30s",
			RateLimit:       "200ms",
		},
		Video: VideoConfig{
			DefaultHeight: 360,
			TempDir:       "",
		},
		WebSocket: WebSocketConfig{
			AllowedEvents:    []string{},
			ThrottleInterval: "",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DOCPIPE_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("DOCPIPE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DOCPIPE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("DOCPIPE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if artifactsDir := os.Getenv("DOCPIPE_ARTIFACTS_DIR"); artifactsDir != "" {
		config.Storage.Artifacts.Dir = artifactsDir
	}
	if maxUpload := os.Getenv("DOCPIPE_MAX_UPLOAD_BYTES"); maxUpload != "" {
		if mu, err := strconv.ParseInt(maxUpload, 10, 64); err == nil {
			config.Storage.Artifacts.MaxUploadBytes = mu
		}
	}

	// Logging configuration
	if level := os.Getenv("DOCPIPE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("DOCPIPE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("DOCPIPE_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Sessions configuration
	if idle := os.Getenv("DOCPIPE_SESSION_IDLE_TIMEOUT"); idle != "" {
		config.Sessions.IdleTimeout = idle
	}
	if schedule := os.Getenv("DOCPIPE_SESSION_SWEEP_SCHEDULE"); schedule != "" {
		config.Sessions.SweepSchedule = schedule
	}

	// Engine configuration
	if langs := os.Getenv("DOCPIPE_OCR_LANGUAGES"); langs != "" {
		if l := splitList(langs); len(l) > 0 {
			config.OCR.Languages = l
		}
	}
	if dpi := os.Getenv("DOCPIPE_RENDER_DPI"); dpi != "" {
		if d, err := strconv.ParseFloat(dpi, 64); err == nil {
			config.Render.DPI = d
		}
	}
	if baseURL := os.Getenv("DOCPIPE_SPEECH_BASE_URL"); baseURL != "" {
		config.Speech.BaseURL = baseURL
	}
	if lang := os.Getenv("DOCPIPE_SPEECH_DEFAULT_LANGUAGE"); lang != "" {
		config.Speech.DefaultLanguage = lang
	}
	if rateLimit := os.Getenv("DOCPIPE_SPEECH_RATE_LIMIT"); rateLimit != "" {
		config.Speech.RateLimit = rateLimit
	}
	if height := os.Getenv("DOCPIPE_VIDEO_DEFAULT_HEIGHT"); height != "" {
		if h, err := strconv.Atoi(height); err == nil {
			config.Video.DefaultHeight = h
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Storage.Artifacts.Dir == "" {
		return fmt.Errorf("storage.artifacts.dir is required")
	}
	if _, err := c.SessionIdleTimeout(); err != nil {
		return err
	}
	if c.Render.DPI <= 0 {
		return fmt.Errorf("render.dpi must be positive, got %v", c.Render.DPI)
	}
	return nil
}

// SessionIdleTimeout parses sessions.idle_timeout
func (c *Config) SessionIdleTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Sessions.IdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid sessions.idle_timeout %q: %w", c.Sessions.IdleTimeout, err)
	}
	return d, nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDurationOr parses s, returning fallback when s is empty or malformed
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
