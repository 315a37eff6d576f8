package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidEngineNames lists the engine names shipped with Hark. Used by
// [Validate] to warn about unrecognised names.
var ValidEngineNames = []string{"whisper", "whisper-server", "deepgram", "openai"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and normalises
// it in place. Tuning values out of range are clamped with a warning rather
// than rejected, so a config that decodes always yields a runnable system;
// only structurally incoherent configs error.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size %d must not be negative", cfg.Audio.ChunkSize))
	}

	// Wake sensitivity is clamped, never rejected.
	if cfg.Wake.Sensitivity < 0 {
		slog.Warn("wake.sensitivity below 0, clamping", "value", cfg.Wake.Sensitivity)
		cfg.Wake.Sensitivity = 0
	}
	if cfg.Wake.Sensitivity > 1 {
		slog.Warn("wake.sensitivity above 1, clamping", "value", cfg.Wake.Sensitivity)
		cfg.Wake.Sensitivity = 1
	}
	if len(cfg.Wake.Phrases) == 0 {
		slog.Warn("wake.phrases is empty; the pipeline will never leave idle")
	}
	switch cfg.Wake.Engine {
	case "", "fast", "accurate", "cloud":
	default:
		errs = append(errs, fmt.Errorf("wake.engine %q is invalid; valid values: fast, accurate, cloud", cfg.Wake.Engine))
	}

	validateEngineName("fast", cfg.Engines.Fast.Name)
	validateEngineName("accurate", cfg.Engines.Accurate.Name)
	validateEngineName("cloud", cfg.Engines.Cloud.Name)
	if cfg.Engines.Fast.Name == "" && cfg.Engines.Accurate.Name == "" && cfg.Engines.Cloud.Name == "" {
		slog.Warn("no engines configured; command recognition will always fail")
	}

	clampDuration := func(name string, d *time.Duration) {
		if *d < 0 {
			slog.Warn("negative duration, clamping to default", "field", name, "value", *d)
			*d = 0
		}
	}
	clampDuration("pipeline.command_timeout", &cfg.Pipeline.CommandTimeout)
	clampDuration("pipeline.max_utterance", &cfg.Pipeline.MaxUtterance)
	clampDuration("pipeline.min_utterance", &cfg.Pipeline.MinUtterance)
	if cfg.Pipeline.SilenceThreshold < 0 {
		slog.Warn("pipeline.silence_threshold below 0, clamping", "value", cfg.Pipeline.SilenceThreshold)
		cfg.Pipeline.SilenceThreshold = 0
	}
	if cfg.Pipeline.MaxUtterance > 0 && cfg.Pipeline.MinUtterance > cfg.Pipeline.MaxUtterance {
		errs = append(errs, fmt.Errorf("pipeline.min_utterance %v exceeds pipeline.max_utterance %v",
			cfg.Pipeline.MinUtterance, cfg.Pipeline.MaxUtterance))
	}

	return errors.Join(errs...)
}

// validateEngineName logs a warning if name is non-empty and not one of the
// shipped engine names.
func validateEngineName(slot, name string) {
	if name == "" || slices.Contains(ValidEngineNames, name) {
		return
	}
	slog.Warn("unknown engine name, may be a typo",
		"slot", slot,
		"name", name,
		"known", ValidEngineNames,
	)
}
