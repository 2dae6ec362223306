package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestClampBounds(t *testing.T) {
	tests := []struct {
		name        string
		silenceMs   int
		threshold   int
		wantSilence int
		wantThresh  int
	}{
		{"below minimums", 100, 1, 500, 5},
		{"above maximums", 9000, 200, 5000, 50},
		{"in range", 1500, 20, 1500, 20},
		{"rounds to step", 1550, 20, 1600, 20},
		{"rounds down", 1549, 20, 1500, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{SilenceTimeoutMs: tt.silenceMs, AudioThreshold: tt.threshold}
			c.Clamp()
			if c.SilenceTimeoutMs != tt.wantSilence {
				t.Errorf("SilenceTimeoutMs = %d, want %d", c.SilenceTimeoutMs, tt.wantSilence)
			}
			if c.AudioThreshold != tt.wantThresh {
				t.Errorf("AudioThreshold = %d, want %d", c.AudioThreshold, tt.wantThresh)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	data := []byte("silence_timeout_ms: 1200\naudio_threshold: 30\nsource_lang: de\ntarget_lang: fr\nproviders:\n  - type: openai\n    model: gpt-4o-mini\n    api_key_env: OPENAI_API_KEY\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SilenceTimeoutMs != 1200 || cfg.AudioThreshold != 30 {
		t.Errorf("thresholds = %d/%d, want 1200/30", cfg.SilenceTimeoutMs, cfg.AudioThreshold)
	}
	if cfg.SourceLang != "de" || cfg.TargetLang != "fr" {
		t.Errorf("langs = %s/%s, want de/fr", cfg.SourceLang, cfg.TargetLang)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Type != "openai" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
}

func TestLoadClampsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("silence_timeout_ms: 99999\naudio_threshold: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SilenceTimeoutMs != MaxSilenceTimeoutMs || cfg.AudioThreshold != MinAudioThreshold {
		t.Errorf("got %d/%d, want clamped", cfg.SilenceTimeoutMs, cfg.AudioThreshold)
	}
}

func TestStoreSnapshot(t *testing.T) {
	s := NewStore(Config{SilenceTimeoutMs: 1500, AudioThreshold: 12})
	thr := s.Thresholds()
	if thr.SilenceTimeout != 1500*time.Millisecond {
		t.Errorf("SilenceTimeout = %v", thr.SilenceTimeout)
	}
	if thr.AudioThreshold != 12 {
		t.Errorf("AudioThreshold = %v", thr.AudioThreshold)
	}
}

func TestStoreAdjustClamps(t *testing.T) {
	s := NewStore(Config{SilenceTimeoutMs: 600, AudioThreshold: 6})
	if got := s.AdjustSilenceTimeout(-5); got != MinSilenceTimeoutMs {
		t.Errorf("AdjustSilenceTimeout = %d, want %d", got, MinSilenceTimeoutMs)
	}
	if got := s.AdjustAudioThreshold(-10); got != MinAudioThreshold {
		t.Errorf("AdjustAudioThreshold = %d, want %d", got, MinAudioThreshold)
	}
	if got := s.AdjustSilenceTimeout(100); got != MaxSilenceTimeoutMs {
		t.Errorf("AdjustSilenceTimeout = %d, want %d", got, MaxSilenceTimeoutMs)
	}
	if got := s.AdjustAudioThreshold(100); got != MaxAudioThreshold {
		t.Errorf("AdjustAudioThreshold = %d, want %d", got, MaxAudioThreshold)
	}
}
