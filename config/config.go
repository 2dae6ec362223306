// Package config holds user-tunable settings: the silence timeout and
// audio threshold driving voice-activity detection, language pair, and
// pipeline provider definitions. Settings load from an optional YAML
// file and may be adjusted at runtime through a Store; threshold changes
// apply on the next classification tick.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	MinSilenceTimeoutMs = 500
	MaxSilenceTimeoutMs = 5000
	SilenceTimeoutStep  = 100

	MinAudioThreshold = 5
	MaxAudioThreshold = 50
)

// Provider describes one enhancement/translation backend, tried in order.
type Provider struct {
	Type      string `yaml:"type"` // "openai", "openai-compatible" or "claude"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Config struct {
	SilenceTimeoutMs int    `yaml:"silence_timeout_ms"`
	AudioThreshold   int    `yaml:"audio_threshold"`
	SourceLang       string `yaml:"source_lang"`
	TargetLang       string `yaml:"target_lang"`
	CopyResult       bool   `yaml:"copy_result"`
	EncryptionKey    string `yaml:"encryption_key"` // hex, 16/24/32 bytes; empty disables sealing

	Providers []Provider `yaml:"providers"`
}

func Default() Config {
	return Config{
		SilenceTimeoutMs: 2000,
		AudioThreshold:   15,
		SourceLang:       "en",
		TargetLang:       "es",
	}
}

// Load reads the YAML file at path on top of the defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %q: %w", path, err)
	}
	cfg.Clamp()
	return cfg, nil
}

// Clamp forces the tunables into their valid ranges and rounds the
// silence timeout to its step size.
func (c *Config) Clamp() {
	c.SilenceTimeoutMs = clampStep(c.SilenceTimeoutMs, MinSilenceTimeoutMs, MaxSilenceTimeoutMs, SilenceTimeoutStep)
	c.AudioThreshold = clamp(c.AudioThreshold, MinAudioThreshold, MaxAudioThreshold)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampStep(v, lo, hi, step int) int {
	v = clamp(v, lo, hi)
	return (v + step/2) / step * step
}

// Thresholds is the per-tick snapshot read by the classifier and watchdog.
type Thresholds struct {
	SilenceTimeout time.Duration
	AudioThreshold float64
}

// Store holds the live tunables. Reads take a snapshot so a tick sees a
// consistent pair; writes from the UI apply on the following tick.
type Store struct {
	mu        sync.Mutex
	silenceMs int
	threshold int
}

func NewStore(cfg Config) *Store {
	cfg.Clamp()
	return &Store{silenceMs: cfg.SilenceTimeoutMs, threshold: cfg.AudioThreshold}
}

func (s *Store) Thresholds() Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Thresholds{
		SilenceTimeout: time.Duration(s.silenceMs) * time.Millisecond,
		AudioThreshold: float64(s.threshold),
	}
}

// AdjustSilenceTimeout moves the timeout by n steps and returns the new value in ms.
func (s *Store) AdjustSilenceTimeout(steps int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silenceMs = clamp(s.silenceMs+steps*SilenceTimeoutStep, MinSilenceTimeoutMs, MaxSilenceTimeoutMs)
	return s.silenceMs
}

// AdjustAudioThreshold moves the threshold by delta and returns the new value.
func (s *Store) AdjustAudioThreshold(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = clamp(s.threshold+delta, MinAudioThreshold, MaxAudioThreshold)
	return s.threshold
}
