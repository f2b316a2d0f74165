package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Call.CenterType != "main" {
		t.Fatalf("unexpected center type: %q", cfg.Call.CenterType)
	}
	if cfg.Call.ConnectingDelay != 2*time.Second {
		t.Fatalf("unexpected connecting delay: %v", cfg.Call.ConnectingDelay)
	}
	if cfg.Deepgram.Model != "nova-2" || !cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram defaults: %+v", cfg.Deepgram)
	}
	if cfg.Speech.Voice != "alloy" {
		t.Fatalf("unexpected voice: %q", cfg.Speech.Voice)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
}

func TestLoadFromTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifeline.toml")
	contents := `
[call]
center_type = "hospital"
hospital_id = "hosp-3"
turn_timeout_ms = 6000

[dispatch]
base_url = "https://dispatch.example"

[audio]
sample_rate = 48000
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Call.CenterType != "hospital" || cfg.Call.HospitalID != "hosp-3" {
		t.Fatalf("call section not applied: %+v", cfg.Call)
	}
	if cfg.Call.TurnTimeout != 6*time.Second {
		t.Fatalf("turn timeout not applied: %v", cfg.Call.TurnTimeout)
	}
	if cfg.Dispatch.BaseURL != "https://dispatch.example" {
		t.Fatalf("dispatch url not applied: %q", cfg.Dispatch.BaseURL)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Fatalf("sample rate not applied: %d", cfg.Audio.SampleRate)
	}
	if cfg.Deepgram.Model != "nova-2" {
		t.Fatalf("unset sections must keep defaults")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifeline.toml")
	if err := os.WriteFile(path, []byte("[dispatch]\nbase_url = \"https://from-file\"\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("LIFELINE_DISPATCH_URL", "https://from-env")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("LIFELINE_CENTER_TYPE", "hospital")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Dispatch.BaseURL != "https://from-env" {
		t.Fatalf("env must override file, got %q", cfg.Dispatch.BaseURL)
	}
	if cfg.Deepgram.APIKey != "dg-key" {
		t.Fatalf("api key not applied")
	}
	if cfg.Call.CenterType != "hospital" {
		t.Fatalf("center type not applied: %q", cfg.Call.CenterType)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifeline.toml")
	if err := os.WriteFile(path, []byte("[call\nbroken"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected a parse error")
	}
}

func TestNormalizeClampsInvalidValues(t *testing.T) {
	t.Setenv("LIFELINE_SAMPLE_RATE", "-5")
	t.Setenv("LIFELINE_AUDIO_CHUNK_SIZE", "8")
	t.Setenv("LIFELINE_CENTER_TYPE", "unknown")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("sample rate not clamped: %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.ChunkSize != 4096 {
		t.Fatalf("chunk size not clamped: %d", cfg.Audio.ChunkSize)
	}
	if cfg.Call.CenterType != "main" {
		t.Fatalf("center type not clamped: %q", cfg.Call.CenterType)
	}
}
