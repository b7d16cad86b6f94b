package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	VAD      VADConfig      `yaml:"vad"`
	Engine   EngineConfig   `yaml:"engine"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains the worker HTTP API configuration
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// AudioConfig contains audio capture parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// VADConfig contains Voice Activity Detection configuration
type VADConfig struct {
	ModelPath        string  `yaml:"model_path"`
	SpeechThreshold  float32 `yaml:"speech_threshold"`
	SilenceThreshold float32 `yaml:"silence_threshold"`
	PaddingMs        int     `yaml:"padding_ms"`
	MinSpeechMs      int     `yaml:"min_speech_ms"`
}

// EngineConfig selects and configures the transcription backends
type EngineConfig struct {
	// Selected is the engine the pipeline dispatches to: "local" or "cloud".
	Selected string            `yaml:"selected"`
	Local    LocalEngineConfig `yaml:"local"`
	Cloud    CloudEngineConfig `yaml:"cloud"`
}

// LocalEngineConfig configures the local model server client
type LocalEngineConfig struct {
	ServerURL    string `yaml:"server_url"`
	Model        string `yaml:"model"`
	Language     string `yaml:"language"`
	MaxAttempts  int    `yaml:"max_attempts"`
	RetryDelayMs int    `yaml:"retry_delay_ms"`
	TimeoutSec   int    `yaml:"timeout_sec"`
}

// CloudEngineConfig configures the remote transcription function client
type CloudEngineConfig struct {
	BaseURL      string `yaml:"base_url"`
	FunctionName string `yaml:"function_name"`
	Model        string `yaml:"model"`
	Language     string `yaml:"language"`
	// Format asks the function for a neural formatting pass.
	Format       bool   `yaml:"format"`
	MaxAttempts  int    `yaml:"max_attempts"`
	RetryDelayMs int    `yaml:"retry_delay_ms"`
	TimeoutSec   int    `yaml:"timeout_sec"`
}

// PipelineConfig contains pipeline behavior toggles
type PipelineConfig struct {
	TrimSilence      bool `yaml:"trim_silence"`
	EnableCleanup    bool `yaml:"enable_cleanup"`
	CleanupTimeoutMs int  `yaml:"cleanup_timeout_ms"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.ModelPath == "" {
		return fmt.Errorf("model_path cannot be empty")
	}

	if v.SpeechThreshold < 0 || v.SpeechThreshold > 1 {
		return fmt.Errorf("speech_threshold must be between 0 and 1, got %f", v.SpeechThreshold)
	}

	if v.SilenceThreshold < 0 || v.SilenceThreshold > 1 {
		return fmt.Errorf("silence_threshold must be between 0 and 1, got %f", v.SilenceThreshold)
	}

	if v.SilenceThreshold > v.SpeechThreshold {
		return fmt.Errorf("silence_threshold (%f) must not exceed speech_threshold (%f)",
			v.SilenceThreshold, v.SpeechThreshold)
	}

	if v.PaddingMs < 0 {
		return fmt.Errorf("padding_ms cannot be negative, got %d", v.PaddingMs)
	}

	if v.MinSpeechMs < 0 {
		return fmt.Errorf("min_speech_ms cannot be negative, got %d", v.MinSpeechMs)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	switch e.Selected {
	case "local":
		if err := e.Local.Validate(); err != nil {
			return fmt.Errorf("local engine: %w", err)
		}
	case "cloud":
		if err := e.Cloud.Validate(); err != nil {
			return fmt.Errorf("cloud engine: %w", err)
		}
	default:
		return fmt.Errorf("selected must be 'local' or 'cloud', got '%s'", e.Selected)
	}

	return nil
}

// Validate validates the local engine configuration
func (l *LocalEngineConfig) Validate() error {
	if l.ServerURL == "" {
		return fmt.Errorf("server_url cannot be empty")
	}

	if l.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", l.MaxAttempts)
	}

	if l.RetryDelayMs < 0 {
		return fmt.Errorf("retry_delay_ms cannot be negative, got %d", l.RetryDelayMs)
	}

	if l.TimeoutSec < 1 {
		return fmt.Errorf("timeout_sec must be at least 1 second, got %d", l.TimeoutSec)
	}

	return nil
}

// Validate validates the cloud engine configuration
func (c *CloudEngineConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if c.FunctionName == "" {
		return fmt.Errorf("function_name cannot be empty")
	}

	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}

	if c.RetryDelayMs < 0 {
		return fmt.Errorf("retry_delay_ms cannot be negative, got %d", c.RetryDelayMs)
	}

	if c.TimeoutSec < 1 {
		return fmt.Errorf("timeout_sec must be at least 1 second, got %d", c.TimeoutSec)
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.CleanupTimeoutMs < 0 {
		return fmt.Errorf("cleanup_timeout_ms cannot be negative, got %d", p.CleanupTimeoutMs)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetPadding returns the VAD segment padding as a time.Duration
func (v *VADConfig) GetPadding() time.Duration {
	return time.Duration(v.PaddingMs) * time.Millisecond
}

// GetMinSpeech returns the minimum speech segment length as a time.Duration
func (v *VADConfig) GetMinSpeech() time.Duration {
	return time.Duration(v.MinSpeechMs) * time.Millisecond
}

// GetRetryDelay returns the local engine retry base delay as a time.Duration
func (l *LocalEngineConfig) GetRetryDelay() time.Duration {
	return time.Duration(l.RetryDelayMs) * time.Millisecond
}

// GetTimeout returns the local engine request timeout as a time.Duration
func (l *LocalEngineConfig) GetTimeout() time.Duration {
	return time.Duration(l.TimeoutSec) * time.Second
}

// GetRetryDelay returns the cloud engine retry base delay as a time.Duration
func (c *CloudEngineConfig) GetRetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// GetTimeout returns the cloud engine request timeout as a time.Duration
func (c *CloudEngineConfig) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// GetCleanupTimeout returns the text cleanup deadline as a time.Duration
func (p *PipelineConfig) GetCleanupTimeout() time.Duration {
	return time.Duration(p.CleanupTimeoutMs) * time.Millisecond
}
