package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
interview:
  job_title: "Backend Engineer"
  persona:
    name: "Dana"
    style: "technical"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.Model == "" || cfg.Session.Endpoint == "" {
		t.Fatalf("session defaults not applied: %+v", cfg.Session)
	}
	if cfg.Audio.BlockSize != 4096 {
		t.Fatalf("block size = %d, want 4096", cfg.Audio.BlockSize)
	}
	if cfg.Audio.SilenceThreshold != 0.005 {
		t.Fatalf("silence threshold = %v, want 0.005", cfg.Audio.SilenceThreshold)
	}
	if !cfg.Audio.VoiceGateEnabled() {
		t.Fatalf("voice gate should default to enabled")
	}
	if cfg.Interview.Persona.Name != "Dana" {
		t.Fatalf("persona = %+v", cfg.Interview.Persona)
	}
}

func TestLoad_VoiceGateCanBeDisabled(t *testing.T) {
	path := writeConfig(t, `
audio:
  voice_gate: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Audio.VoiceGateEnabled() {
		t.Fatalf("voice gate should be disabled")
	}
}

func TestLoad_RejectsInvalidRates(t *testing.T) {
	path := writeConfig(t, `
audio:
  input_sample_rate: 44100
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unsupported input rate")
	}
}

func TestLoad_RejectsBadEndpointAndLogLevel(t *testing.T) {
	path := writeConfig(t, `
session:
  endpoint: "https://not-a-websocket.example"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for non-websocket endpoint")
	}

	path = writeConfig(t, `
logging:
  level: "loud"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSessionAPIKey_ReadsConfiguredEnvVar(t *testing.T) {
	t.Setenv("TEST_INTERVIEW_KEY", "  abc123  ")
	s := SessionConfig{APIKeyEnv: "TEST_INTERVIEW_KEY"}
	if got := s.APIKey(); got != "abc123" {
		t.Fatalf("APIKey() = %q, want abc123", got)
	}
}
