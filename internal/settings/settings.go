package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"retrycache/internal/shared"
)

// AutoBotMode selects the extra delay multiplier applied to auto-bot contexts.
type AutoBotMode string

const (
	AutoBotOff  AutoBotMode = "off"
	AutoBotFast AutoBotMode = "fast"
	AutoBotSafe AutoBotMode = "safe"
	AutoBotAI   AutoBotMode = "ai"
)

// Valid reports whether m is one of the known modes.
func (m AutoBotMode) Valid() bool {
	switch m {
	case AutoBotOff, AutoBotFast, AutoBotSafe, AutoBotAI:
		return true
	}
	return false
}

// ProfileOverride is a persisted partial retry policy. Nil fields are
// inherited from the built-in profile.
type ProfileOverride struct {
	MaxAttempts   *int     `json:"max_attempts,omitempty" yaml:"max_attempts"`
	DelayMs       *int     `json:"delay_ms,omitempty" yaml:"delay_ms"`
	BackoffFactor *float64 `json:"backoff_factor,omitempty" yaml:"backoff_factor"`
	JitterMs      *int     `json:"jitter_ms,omitempty" yaml:"jitter_ms"`
}

// Settings is the flat configuration record shared with external editors.
type Settings struct {
	RetryMaxAttempts    int                        `json:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryInitialDelayMs int                        `json:"retry_initial_delay_ms" yaml:"retry_initial_delay_ms"`
	RetryBackoffFactor  float64                    `json:"retry_backoff_factor" yaml:"retry_backoff_factor"`
	RetryJitterMs       int                        `json:"retry_jitter_ms" yaml:"retry_jitter_ms"`
	LearningEnabled     bool                       `json:"retry_queue_ai_enabled" yaml:"retry_queue_ai_enabled"`
	AutoBotMode         AutoBotMode                `json:"auto_bot_adaptive_mode" yaml:"auto_bot_adaptive_mode"`
	RetryProfiles       map[string]ProfileOverride `json:"retry_profiles,omitempty" yaml:"retry_profiles"`
	CacheTTL            int                        `json:"cache_ttl" yaml:"cache_ttl"`
	DashboardCacheTTL   int                        `json:"dashboard_cache_ttl" yaml:"dashboard_cache_ttl"`
}

// Defaults returns the settings used when nothing is persisted.
func Defaults() Settings {
	return Settings{
		RetryMaxAttempts:    3,
		RetryInitialDelayMs: 500,
		RetryBackoffFactor:  1.7,
		RetryJitterMs:       0,
		LearningEnabled:     true,
		AutoBotMode:         AutoBotOff,
		CacheTTL:            60,
		DashboardCacheTTL:   45,
	}
}

// Mode returns the configured auto-bot mode, falling back to off for unknown values.
func (s Settings) Mode() AutoBotMode {
	if s.AutoBotMode.Valid() {
		return s.AutoBotMode
	}
	return AutoBotOff
}

// Load reads the settings record. Fields absent from the stored document keep
// their defaults. On a store or decode error the defaults are returned along
// with the error so callers can log and carry on.
func Load(ctx context.Context, s Store) (Settings, error) {
	cfg, err := Get(ctx, s, KeyConfig, Defaults())
	if err != nil {
		return Defaults(), err
	}
	return cfg, nil
}

// Save persists the settings record.
func Save(ctx context.Context, s Store, cfg Settings) error {
	return Put(ctx, s, KeyConfig, cfg)
}

// ReadSeedFile parses a YAML settings file on top of the defaults.
func ReadSeedFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if !cfg.AutoBotMode.Valid() {
		return Settings{}, shared.MarkKind(fmt.Errorf("invalid auto_bot_adaptive_mode %q", cfg.AutoBotMode), shared.KindValidation)
	}
	return cfg, nil
}

// Seed stores cfg unless a settings record already exists. It reports
// whether the record was written.
func Seed(ctx context.Context, s Store, cfg Settings) (bool, error) {
	written := false
	err := s.Mutate(ctx, KeyConfig, func(current []byte, found bool) ([]byte, error) {
		written = !found
		if found {
			return current, nil
		}
		return json.Marshal(cfg)
	})
	return written, err
}
