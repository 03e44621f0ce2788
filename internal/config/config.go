// Package config provides the configuration structure for voicegen.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Defaults applied to any field left blank.
const (
	DefaultBaseURL                = "https://api.murf.ai/v1"
	DefaultTimeoutSeconds         = 30
	DefaultDownloadTimeoutSeconds = 60
	DefaultCredentialEnvVar       = "MURF_API_KEY"
	DefaultVoice                  = "Miles"
	DefaultHTTPAddr               = ":8085"
	DefaultJobsSubject            = "voicegen.synthesize"
	DefaultAudioBucket            = "VOICEGEN_AUDIO"
	DefaultOutputDir              = "."
)

// MurfConfig holds the remote voice service settings.
type MurfConfig struct {
	BaseURL                string `toml:"base_url"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// CredentialConfig locates the API key.
type CredentialConfig struct {
	Path   string `toml:"path"`
	EnvVar string `toml:"env_var"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	OutputDir   string `toml:"output_dir"`
}

// DefaultsConfig holds the preselected voice and pitch.
type DefaultsConfig struct {
	Voice string `toml:"voice"`
	Pitch int    `toml:"pitch"`
}

// HTTPConfig configures the web API.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables the worker.
type NATSConfig struct {
	URL                    string `toml:"url"`
	JobsSubject            string `toml:"jobs_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// Config is the root configuration structure.
type Config struct {
	Murf       MurfConfig       `toml:"murf"`
	Credential CredentialConfig `toml:"credential"`
	Paths      PathsConfig      `toml:"paths"`
	Defaults   DefaultsConfig   `toml:"defaults"`
	HTTP       HTTPConfig       `toml:"http"`
	NATS       NATSConfig       `toml:"nats"`
}

// Load loads the configuration through the central configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// LoadFile reads a TOML configuration file from path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config

	cfg.ApplyDefaults()

	return &cfg
}

// ApplyDefaults fills blank fields.
func (c *Config) ApplyDefaults() {
	if c.Murf.BaseURL == "" {
		c.Murf.BaseURL = DefaultBaseURL
	}

	if c.Murf.TimeoutSeconds <= 0 {
		c.Murf.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if c.Murf.DownloadTimeoutSeconds <= 0 {
		c.Murf.DownloadTimeoutSeconds = DefaultDownloadTimeoutSeconds
	}

	if c.Credential.EnvVar == "" {
		c.Credential.EnvVar = DefaultCredentialEnvVar
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = os.TempDir()
	}

	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = DefaultOutputDir
	}

	if c.Defaults.Voice == "" {
		c.Defaults.Voice = DefaultVoice
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}

	if c.NATS.JobsSubject == "" {
		c.NATS.JobsSubject = DefaultJobsSubject
	}

	if c.NATS.AudioObjectStoreBucket == "" {
		c.NATS.AudioObjectStoreBucket = DefaultAudioBucket
	}
}

// Timeout returns the per-request timeout for API calls.
func (m MurfConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// DownloadTimeout returns the timeout for fetching generated audio.
func (m MurfConfig) DownloadTimeout() time.Duration {
	return time.Duration(m.DownloadTimeoutSeconds) * time.Second
}
