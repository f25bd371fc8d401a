// Package config loads, validates, and persists the application
// configuration. Tuned silence thresholds are written back through Save so
// they survive between sessions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Audio      AudioConfig   `yaml:"audio"`
	Whisper    WhisperConfig `yaml:"whisper"`
	Output     OutputConfig  `yaml:"output"`
	StopHotkey []string      `yaml:"stop_hotkey"`
	LogLevel   string        `yaml:"log_level"`
}

// AudioConfig holds capture and silence-detection settings.
// Durations are expressed in seconds in the YAML file.
type AudioConfig struct {
	SampleRate       uint32  `yaml:"sample_rate"`
	Channels         uint32  `yaml:"channels"`
	ChunkSize        uint32  `yaml:"chunk_size"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	SilenceDuration  float64 `yaml:"silence_duration"`
	MaxRecordingTime float64 `yaml:"max_recording_time"`
}

// SilenceWindow returns the silence duration as a time.Duration.
func (a AudioConfig) SilenceWindow() time.Duration {
	return time.Duration(a.SilenceDuration * float64(time.Second))
}

// MaxDuration returns the maximum recording time as a time.Duration.
func (a AudioConfig) MaxDuration() time.Duration {
	return time.Duration(a.MaxRecordingTime * float64(time.Second))
}

// WhisperConfig holds transcription backend settings.
type WhisperConfig struct {
	Backend        string `yaml:"backend"` // "api" or "local"
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	ModelPath      string `yaml:"model_path"`
	DownloadModels bool   `yaml:"download_models"`
	Timeout        int    `yaml:"timeout"` // seconds
}

// OutputConfig holds text delivery settings.
type OutputConfig struct {
	Method string `yaml:"method"` // "stdout", "type", or "paste"
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "simple-stt")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory for logs and downloaded models.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "simple-stt")
}

// DefaultModelsDir returns the directory where whisper models are stored.
func DefaultModelsDir() string {
	return filepath.Join(DefaultDataDir(), "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:       16000,
			Channels:         1,
			ChunkSize:        2048,
			SilenceThreshold: 15.0,
			SilenceDuration:  2.0,
			MaxRecordingTime: 120.0,
		},
		Whisper: WhisperConfig{
			Backend:        "local",
			Model:          "base.en",
			DownloadModels: true,
			Timeout:        60,
		},
		Output: OutputConfig{
			Method: "type",
		},
		StopHotkey: []string{"ctrl", "shift", "s"},
		LogLevel:   "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults, tilde in model_path is expanded, and environment overrides are
// applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Whisper.ModelPath = expandTilde(cfg.Whisper.ModelPath)
	cfg.ApplyEnv()

	return cfg, nil
}

// Save writes the config as YAML to the given path, creating the parent
// directory if needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// UpdateSilenceThreshold sets a new silence threshold and persists the
// config to the given path.
func (c *Config) UpdateSilenceThreshold(path string, threshold float64) error {
	c.Audio.SilenceThreshold = threshold
	return c.Save(path)
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}

	if c.Audio.ChunkSize == 0 {
		return fmt.Errorf("audio.chunk_size must be > 0")
	}

	if c.Audio.SilenceThreshold < 0 {
		return fmt.Errorf("audio.silence_threshold must be >= 0, got %g", c.Audio.SilenceThreshold)
	}

	if c.Audio.SilenceDuration <= 0 {
		return fmt.Errorf("audio.silence_duration must be > 0, got %g", c.Audio.SilenceDuration)
	}

	if c.Audio.MaxRecordingTime <= c.Audio.SilenceDuration {
		return fmt.Errorf("audio.max_recording_time (%g) must be greater than audio.silence_duration (%g)",
			c.Audio.MaxRecordingTime, c.Audio.SilenceDuration)
	}

	switch c.Whisper.Backend {
	case "api", "local":
	default:
		return fmt.Errorf("whisper.backend must be \"api\" or \"local\", got %q", c.Whisper.Backend)
	}

	if c.Whisper.Timeout <= 0 {
		return fmt.Errorf("whisper.timeout must be > 0, got %d", c.Whisper.Timeout)
	}

	switch c.Output.Method {
	case "stdout", "type", "paste":
	default:
		return fmt.Errorf("output.method must be \"stdout\", \"type\", or \"paste\", got %q", c.Output.Method)
	}

	if len(c.StopHotkey) == 0 {
		return fmt.Errorf("stop_hotkey must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ApplyEnv fills the API key from the environment when present.
func (c *Config) ApplyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Whisper.APIKey = key
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
