// Package config provides the configuration structure for the
// audio-processor service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// NATSConfig holds the configuration for NATS subjects and buckets.
type NATSConfig struct {
	URL                   string `toml:"url"`
	JobSubmittedSubject   string `toml:"job_submitted_subject"`
	JobFinishedSubject    string `toml:"job_finished_subject"`
	AudioBucket           string `toml:"audio_object_store_bucket"`
	ImageBucket           string `toml:"image_object_store_bucket"`
	RasterBucket          string `toml:"raster_object_store_bucket"`
	JobRecordBucket       string `toml:"job_record_bucket"`
	JobTimeoutSeconds     int    `toml:"job_timeout_seconds"`
	ReconnectWaitSeconds  int    `toml:"reconnect_wait_seconds"`
	MaxReconnectAttempts  int    `toml:"max_reconnect_attempts"`
}

// TranscriptionConfig holds the speech-to-text provider settings. The API key
// is read from the environment, not from the project file.
type TranscriptionConfig struct {
	BaseURL             string `toml:"base_url"`
	SpeechModel         string `toml:"speech_model"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// IllustrationConfig holds the image-generation provider settings.
type IllustrationConfig struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// HTTPConfig holds the settings for the public HTTP surface.
type HTTPConfig struct {
	ListenAddress  string `toml:"listen_address"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

// DeviceLogConfig controls the debug listeners for the recorder hardware.
type DeviceLogConfig struct {
	UDPEnabled    bool   `toml:"udp_enabled"`
	UDPListenAddr string `toml:"udp_listen_address"`
	LogFileName   string `toml:"log_file_name"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS          NATSConfig          `toml:"nats"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Illustration  IllustrationConfig  `toml:"illustration"`
	HTTP          HTTPConfig          `toml:"http"`
	DeviceLog     DeviceLogConfig     `toml:"device_log"`
	Paths         PathsConfig         `toml:"paths"`
}

// Load loads the configuration for the audio-processor service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
