package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{Port: 50070, Address: "127.0.0.1"},
		Audio:  AudioConfig{SampleRate: 16000, Channels: 1, BitDepth: 16},
		VAD: VADConfig{
			ModelPath:        "models/silero_vad.onnx",
			SpeechThreshold:  0.5,
			SilenceThreshold: 0.3,
			PaddingMs:        500,
			MinSpeechMs:      50,
		},
		Engine: EngineConfig{
			Selected: "local",
			Local: LocalEngineConfig{
				ServerURL:    "http://localhost:50060",
				Model:        "base",
				MaxAttempts:  2,
				RetryDelayMs: 1000,
				TimeoutSec:   30,
			},
		},
		Pipeline: PipelineConfig{
			TrimSilence:      true,
			EnableCleanup:    true,
			CleanupTimeoutMs: 2000,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config to pass validation, got: %v", err)
	}
}

func TestServerConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"empty address", func(c *Config) { c.Server.Address = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestAudioConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"wrong sample rate", func(c *Config) { c.Audio.SampleRate = 44100 }, true},
		{"stereo", func(c *Config) { c.Audio.Channels = 2 }, true},
		{"wrong bit depth", func(c *Config) { c.Audio.BitDepth = 24 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestVADConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty model path", func(c *Config) { c.VAD.ModelPath = "" }, true},
		{"speech threshold above 1", func(c *Config) { c.VAD.SpeechThreshold = 1.5 }, true},
		{"negative silence threshold", func(c *Config) { c.VAD.SilenceThreshold = -0.1 }, true},
		{"silence above speech", func(c *Config) {
			c.VAD.SilenceThreshold = 0.7
			c.VAD.SpeechThreshold = 0.5
		}, true},
		{"negative padding", func(c *Config) { c.VAD.PaddingMs = -1 }, true},
		{"negative min speech", func(c *Config) { c.VAD.MinSpeechMs = -1 }, true},
		{"equal thresholds", func(c *Config) {
			c.VAD.SilenceThreshold = 0.5
			c.VAD.SpeechThreshold = 0.5
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestEngineConfigValidation(t *testing.T) {
	validCloud := CloudEngineConfig{
		BaseURL:      "https://example.supabase.co",
		FunctionName: "transcribe",
		Model:        "whisper-large-v3",
		MaxAttempts:  3,
		RetryDelayMs: 1000,
		TimeoutSec:   60,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid local", func(c *Config) {}, false},
		{"valid cloud", func(c *Config) {
			c.Engine.Selected = "cloud"
			c.Engine.Cloud = validCloud
		}, false},
		{"unknown engine", func(c *Config) { c.Engine.Selected = "remote" }, true},
		{"empty engine", func(c *Config) { c.Engine.Selected = "" }, true},
		{"local without URL", func(c *Config) { c.Engine.Local.ServerURL = "" }, true},
		{"local zero attempts", func(c *Config) { c.Engine.Local.MaxAttempts = 0 }, true},
		{"local zero timeout", func(c *Config) { c.Engine.Local.TimeoutSec = 0 }, true},
		{"cloud without function", func(c *Config) {
			c.Engine.Selected = "cloud"
			c.Engine.Cloud = validCloud
			c.Engine.Cloud.FunctionName = ""
		}, true},
		{"cloud without model", func(c *Config) {
			c.Engine.Selected = "cloud"
			c.Engine.Cloud = validCloud
			c.Engine.Cloud.Model = ""
		}, true},
		{"cloud config ignored when local selected", func(c *Config) {
			c.Engine.Cloud.BaseURL = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := validConfig()

	if got := cfg.VAD.GetPadding(); got != 500*time.Millisecond {
		t.Errorf("Expected 500ms padding, got %v", got)
	}
	if got := cfg.VAD.GetMinSpeech(); got != 50*time.Millisecond {
		t.Errorf("Expected 50ms min speech, got %v", got)
	}
	if got := cfg.Engine.Local.GetRetryDelay(); got != time.Second {
		t.Errorf("Expected 1s retry delay, got %v", got)
	}
	if got := cfg.Engine.Local.GetTimeout(); got != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", got)
	}
	if got := cfg.Pipeline.GetCleanupTimeout(); got != 2*time.Second {
		t.Errorf("Expected 2s cleanup timeout, got %v", got)
	}
}

func TestLoad(t *testing.T) {
	content := `
server:
  port: 50070
  address: "127.0.0.1"
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
vad:
  model_path: "models/silero_vad.onnx"
  speech_threshold: 0.5
  silence_threshold: 0.3
  padding_ms: 500
  min_speech_ms: 50
engine:
  selected: "local"
  local:
    server_url: "http://localhost:50060"
    model: "base"
    max_attempts: 2
    retry_delay_ms: 1000
    timeout_sec: 30
pipeline:
  trim_silence: true
  enable_cleanup: true
  cleanup_timeout_ms: 2000
logging:
  level: "debug"
  format: "text"
  output: "stdout"
`

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 50070 {
		t.Errorf("Expected port 50070, got %d", cfg.Server.Port)
	}
	if cfg.Engine.Selected != "local" {
		t.Errorf("Expected local engine, got %s", cfg.Engine.Selected)
	}
	if !cfg.Pipeline.TrimSilence {
		t.Error("Expected trim_silence enabled")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 0\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected validation error for invalid config")
	}
}
