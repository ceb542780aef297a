// Package config provides configuration loading from defaults, an optional
// TOML file and the environment for the IDS server and CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// GetEnv returns the value of key from the environment, or defaultValue if unset or empty.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

// GetEnvDuration returns the duration for key, or defaultValue if unset/invalid.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

// GetEnvInt returns the integer for key, or defaultValue if unset/invalid.
func GetEnvInt(key string, defaultValue int) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetEnvBool returns the boolean for key, or defaultValue if unset/invalid.
func GetEnvBool(key string, defaultValue bool) bool {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultValue
	}
	return b
}

// ServerConfig holds configuration for the classification server and CLI.
type ServerConfig struct {
	HTTPAddr        string        `toml:"http_addr"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`

	CheckpointPath   string `toml:"checkpoint_path"`
	ONNXLibraryPath  string `toml:"onnx_library_path"`
	InferenceThreads int    `toml:"inference_threads"`
	BatchSize        int    `toml:"batch_size"`
	Workers          int    `toml:"workers"`
	TopN             int    `toml:"top_n"`
	MaxUploadBytes   int64  `toml:"max_upload_bytes"`
	WatchCheckpoint  bool   `toml:"watch_checkpoint"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	AlertEnabled  bool          `toml:"-"`
	AlertEndpoint string        `toml:"alert_endpoint"`
	AlertAPIKey   string        `toml:"alert_api_key"`
	AlertTimeout  time.Duration `toml:"alert_timeout"`
}

// DefaultServerConfig returns the built-in defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8000",
		ShutdownTimeout: 30 * time.Second,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    120 * time.Second,
		CheckpointPath:  "model/checkpoint.json",
		BatchSize:       256,
		Workers:         1,
		TopN:            14,
		MaxUploadBytes:  32 << 20,
		WatchCheckpoint: true,
		LogLevel:        "info",
		LogFormat:       "json",
		AlertTimeout:    30 * time.Second,
	}
}

// LoadServerConfig layers defaults, the TOML file at path (skipped when path
// is empty) and environment overrides, then validates the result.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("config %s: unknown keys %v", path, undecoded)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *ServerConfig) applyEnv() {
	c.HTTPAddr = GetEnv("HTTP_ADDR", c.HTTPAddr)
	c.ShutdownTimeout = GetEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.ReadTimeout = GetEnvDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = GetEnvDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.CheckpointPath = GetEnv("IDS_CHECKPOINT", c.CheckpointPath)
	c.ONNXLibraryPath = GetEnv("ONNXRUNTIME_LIB", c.ONNXLibraryPath)
	c.InferenceThreads = GetEnvInt("IDS_INFERENCE_THREADS", c.InferenceThreads)
	c.BatchSize = GetEnvInt("IDS_BATCH_SIZE", c.BatchSize)
	c.Workers = GetEnvInt("IDS_WORKERS", c.Workers)
	c.TopN = GetEnvInt("IDS_TOP_N", c.TopN)
	c.MaxUploadBytes = int64(GetEnvInt("IDS_MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.WatchCheckpoint = GetEnvBool("IDS_WATCH_CHECKPOINT", c.WatchCheckpoint)
	c.LogLevel = GetEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = GetEnv("LOG_FORMAT", c.LogFormat)
	c.AlertEndpoint = GetEnv("ALERT_ENDPOINT", c.AlertEndpoint)
	c.AlertAPIKey = GetEnv("ALERT_API_KEY", c.AlertAPIKey)
	c.AlertTimeout = GetEnvDuration("ALERT_TIMEOUT", c.AlertTimeout)
	c.AlertEnabled = c.AlertEndpoint != "" && c.AlertAPIKey != ""
}

// Validate rejects settings the pipeline cannot run with.
func (c ServerConfig) Validate() error {
	var errs []error
	if c.CheckpointPath == "" {
		errs = append(errs, errors.New("checkpoint_path is required"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.TopN <= 0 {
		errs = append(errs, fmt.Errorf("top_n must be positive, got %d", c.TopN))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.InferenceThreads < 0 {
		errs = append(errs, fmt.Errorf("inference_threads must not be negative, got %d", c.InferenceThreads))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
