// Package config loads the ingestion service configuration from
// environment variables. All variables carry the INGEST_ prefix.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Config holds every tunable of the ingestion service.
type Config struct {
	// HTTPAddr is the listen address for the API server.
	HTTPAddr string
	// DataDir is the root for job records, work dirs and downloads.
	DataDir string

	// StoreBackend selects job persistence: "fs" or "redis".
	StoreBackend string
	RedisAddr    string
	RedisPass    string
	RedisDB      int

	// AttachEndpoint is the attachment host upload URL.
	AttachEndpoint string
	AttachToken    string
	// MaxBatchBytes caps summed file size per upload message.
	MaxBatchBytes int64
	// MaxBatchCount caps files per upload message.
	MaxBatchCount int
	// UploadRetries is the extra attempts after a failed upload.
	UploadRetries int
	UploadBackoff time.Duration

	FFmpegPath     string
	FFprobePath    string
	SegmentSeconds int
	VideoCodec     string
	AudioCodec     string

	// TorrentEnabled switches the acquisition queue on.
	TorrentEnabled bool
	TorrentPort    int
	AcquirePoll    time.Duration

	LogLevel  slog.Level
	LogFormat string
}

// Load reads the configuration from the environment, applying defaults and
// rejecting malformed values.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.HTTPAddr = getEnvDefault("INGEST_HTTP_ADDR", ":8080")
	cfg.DataDir = getEnvDefault("INGEST_DATA_DIR", "data")

	cfg.StoreBackend = getEnvDefault("INGEST_STORE", "fs")
	if cfg.StoreBackend != "fs" && cfg.StoreBackend != "redis" {
		return nil, fmt.Errorf("INGEST_STORE: unknown backend %q, want fs or redis", cfg.StoreBackend)
	}
	cfg.RedisAddr = getEnvDefault("INGEST_REDIS_ADDR", "localhost:6379")
	cfg.RedisPass = os.Getenv("INGEST_REDIS_PASSWORD")
	if cfg.RedisDB, err = getEnvInt("INGEST_REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("INGEST_REDIS_DB: %w", err)
	}

	cfg.AttachEndpoint = getEnvDefault("INGEST_ATTACH_ENDPOINT", "")
	cfg.AttachToken = os.Getenv("INGEST_ATTACH_TOKEN")
	if cfg.MaxBatchBytes, err = getEnvInt64("INGEST_MAX_BATCH_BYTES", 25<<20); err != nil {
		return nil, fmt.Errorf("INGEST_MAX_BATCH_BYTES: %w", err)
	}
	if cfg.MaxBatchBytes <= 0 {
		return nil, fmt.Errorf("INGEST_MAX_BATCH_BYTES: must be > 0")
	}
	if cfg.MaxBatchCount, err = getEnvInt("INGEST_MAX_BATCH_COUNT", 10); err != nil {
		return nil, fmt.Errorf("INGEST_MAX_BATCH_COUNT: %w", err)
	}
	if cfg.MaxBatchCount <= 0 {
		return nil, fmt.Errorf("INGEST_MAX_BATCH_COUNT: must be > 0")
	}
	if cfg.UploadRetries, err = getEnvInt("INGEST_UPLOAD_RETRIES", 1); err != nil {
		return nil, fmt.Errorf("INGEST_UPLOAD_RETRIES: %w", err)
	}
	if cfg.UploadBackoff, err = getEnvDuration("INGEST_UPLOAD_BACKOFF", 5*time.Second); err != nil {
		return nil, fmt.Errorf("INGEST_UPLOAD_BACKOFF: %w", err)
	}

	cfg.FFmpegPath = getEnvDefault("INGEST_FFMPEG", "ffmpeg")
	cfg.FFprobePath = getEnvDefault("INGEST_FFPROBE", "ffprobe")
	if cfg.SegmentSeconds, err = getEnvInt("INGEST_SEGMENT_SECONDS", 10); err != nil {
		return nil, fmt.Errorf("INGEST_SEGMENT_SECONDS: %w", err)
	}
	if cfg.SegmentSeconds <= 0 {
		return nil, fmt.Errorf("INGEST_SEGMENT_SECONDS: must be > 0")
	}
	cfg.VideoCodec = getEnvDefault("INGEST_VIDEO_CODEC", "libx264")
	cfg.AudioCodec = getEnvDefault("INGEST_AUDIO_CODEC", "aac")

	if cfg.TorrentEnabled, err = getEnvBool("INGEST_TORRENT_ENABLED", true); err != nil {
		return nil, fmt.Errorf("INGEST_TORRENT_ENABLED: %w", err)
	}
	if cfg.TorrentPort, err = getEnvInt("INGEST_TORRENT_PORT", 0); err != nil {
		return nil, fmt.Errorf("INGEST_TORRENT_PORT: %w", err)
	}
	if cfg.AcquirePoll, err = getEnvDuration("INGEST_ACQUIRE_POLL", time.Second); err != nil {
		return nil, fmt.Errorf("INGEST_ACQUIRE_POLL: %w", err)
	}

	if cfg.LogLevel, err = parseLogLevel(getEnvDefault("INGEST_LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("INGEST_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("INGEST_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("INGEST_LOG_FORMAT: unknown format %q, want json or text", cfg.LogFormat)
	}

	return cfg, nil
}

// SetupLogger builds the process logger from the config and installs it as
// the slog default.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func getEnvDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (use Go syntax: 30s, 5m)", val)
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", val)
	}
	return b, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown level %q, want debug, info, warn or error", level)
}
