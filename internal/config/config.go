// Package config loads and validates the interview client configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete client configuration.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Audio     AudioConfig     `yaml:"audio"`
	Interview InterviewConfig `yaml:"interview"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SessionConfig describes the live service connection.
type SessionConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Model           string `yaml:"model"`
	APIKeyEnv       string `yaml:"api_key_env"`
	ConnectTimeoutS int    `yaml:"connect_timeout_s"`
}

// AudioConfig describes capture and playback parameters.
type AudioConfig struct {
	InputSampleRate  int     `yaml:"input_sample_rate"`
	OutputSampleRate int     `yaml:"output_sample_rate"`
	BlockSize        int     `yaml:"block_size"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	VoiceGate        *bool   `yaml:"voice_gate"`
	GestureGated     bool    `yaml:"gesture_gated"`
}

// InterviewConfig is the interview profile baked into the session setup.
type InterviewConfig struct {
	JobTitle       string        `yaml:"job_title"`
	JobDescription string        `yaml:"job_description"`
	Persona        PersonaConfig `yaml:"persona"`
}

// PersonaConfig describes the interviewer the model should play.
type PersonaConfig struct {
	Name       string `yaml:"name"`
	Role       string `yaml:"role"`
	Style      string `yaml:"style"`
	Background string `yaml:"background"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

const (
	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultModel    = "models/gemini-2.0-flash-live-001"
	defaultKeyEnv   = "GEMINI_API_KEY"
)

// Load reads, defaults, and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Session.Endpoint) == "" {
		c.Session.Endpoint = defaultEndpoint
	}
	if strings.TrimSpace(c.Session.Model) == "" {
		c.Session.Model = defaultModel
	}
	if strings.TrimSpace(c.Session.APIKeyEnv) == "" {
		c.Session.APIKeyEnv = defaultKeyEnv
	}
	if c.Session.ConnectTimeoutS <= 0 {
		c.Session.ConnectTimeoutS = 15
	}
	if c.Audio.InputSampleRate == 0 {
		c.Audio.InputSampleRate = 16000
	}
	if c.Audio.OutputSampleRate == 0 {
		c.Audio.OutputSampleRate = 24000
	}
	if c.Audio.BlockSize == 0 {
		c.Audio.BlockSize = 4096
	}
	if c.Audio.SilenceThreshold == 0 {
		c.Audio.SilenceThreshold = 0.005
	}
	if c.Audio.VoiceGate == nil {
		gated := true
		c.Audio.VoiceGate = &gated
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Address) == "" {
		c.Metrics.Address = "127.0.0.1:9096"
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (s *SessionConfig) Validate() error {
	if !strings.HasPrefix(s.Endpoint, "ws://") && !strings.HasPrefix(s.Endpoint, "wss://") {
		return fmt.Errorf("endpoint must be a ws:// or wss:// URL, got %q", s.Endpoint)
	}
	if strings.TrimSpace(s.Model) == "" {
		return fmt.Errorf("model must not be empty")
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.InputSampleRate != 16000 {
		return fmt.Errorf("input sample rate must be 16000, got %d", a.InputSampleRate)
	}
	if a.OutputSampleRate != 24000 {
		return fmt.Errorf("output sample rate must be 24000, got %d", a.OutputSampleRate)
	}
	if a.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", a.BlockSize)
	}
	if a.SilenceThreshold < 0 || a.SilenceThreshold >= 1 {
		return fmt.Errorf("silence threshold must be in [0, 1), got %v", a.SilenceThreshold)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", l.Format)
	}
	return nil
}

// ConnectTimeout returns the session connect timeout as a duration.
func (s *SessionConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutS) * time.Second
}

// VoiceGateEnabled reports whether the silence threshold gates outbound
// audio. The gated policy is the default; disabling it selects the
// always-send variant.
func (a *AudioConfig) VoiceGateEnabled() bool {
	return a.VoiceGate == nil || *a.VoiceGate
}

// APIKey resolves the live service credential from the environment.
func (s *SessionConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(s.APIKeyEnv))
}
