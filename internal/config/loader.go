package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"transcriber": {"whisper", "whisper-server"},
	"answerer":    {"anthropic", "openai", "ollama", "gemini", "openai-sdk"},
	"embeddings":  {"openai", "ollama"},
}

// Defaults fills in zero-valued fields that have sensible defaults.
// Called by [LoadFromReader] before validation.
func Defaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.FrameMs == 0 {
		cfg.Audio.FrameMs = 30
	}
	if cfg.Audio.RingFrames == 0 {
		cfg.Audio.RingFrames = 64
	}
	if cfg.VAD.SpeechThreshold == 0 {
		cfg.VAD.SpeechThreshold = 0.015
	}
	if cfg.VAD.SilenceThreshold == 0 {
		cfg.VAD.SilenceThreshold = 0.008
	}
	if cfg.VAD.GapMs == 0 {
		cfg.VAD.GapMs = 700
	}
	if cfg.VAD.MinSpeechMs == 0 {
		cfg.VAD.MinSpeechMs = 300
	}
	if cfg.VAD.MaxUtteranceMs == 0 {
		cfg.VAD.MaxUtteranceMs = 30_000
	}
	if cfg.Transcriber.Language == "" {
		cfg.Transcriber.Language = "en"
	}
	if cfg.Transcriber.Workers == 0 {
		cfg.Transcriber.Workers = 2
	}
	if cfg.Transcriber.QueueSize == 0 {
		cfg.Transcriber.QueueSize = 8
	}
	if cfg.Question.MinWords == 0 {
		cfg.Question.MinWords = 3
	}
	if cfg.Question.RequireQuestion == nil {
		v := true
		cfg.Question.RequireQuestion = &v
	}
	if cfg.Question.TimeoutMs == 0 {
		cfg.Question.TimeoutMs = 1500
	}
	if cfg.History.ContextExchanges == 0 {
		cfg.History.ContextExchanges = 10
	}
	if cfg.Session.InterviewType == "" {
		cfg.Session.InterviewType = InterviewDSA
	}
}

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

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	Defaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d must be positive", cfg.Audio.FrameMs))
	}

	if cfg.VAD.SpeechThreshold <= 0 || cfg.VAD.SpeechThreshold >= 1 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %.4f is out of range (0, 1)", cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.SilenceThreshold <= 0 || cfg.VAD.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.4f is out of range (0, 1)", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.SilenceThreshold > cfg.VAD.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.4f must not exceed vad.speech_threshold %.4f",
			cfg.VAD.SilenceThreshold, cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.MaxUtteranceMs > 0 && cfg.VAD.MaxUtteranceMs < cfg.VAD.MinSpeechMs {
		errs = append(errs, fmt.Errorf("vad.max_utterance_ms %d must not be smaller than vad.min_speech_ms %d",
			cfg.VAD.MaxUtteranceMs, cfg.VAD.MinSpeechMs))
	}

	validateProviderName("transcriber", cfg.Transcriber.Provider)
	validateProviderName("answerer", cfg.Answerer.Provider)
	validateProviderName("embeddings", cfg.History.Embeddings.Provider)

	switch cfg.Transcriber.Provider {
	case "whisper":
		if cfg.Transcriber.ModelPath == "" {
			errs = append(errs, errors.New("transcriber.model_path is required when transcriber.provider is whisper"))
		}
	case "whisper-server":
		if cfg.Transcriber.ServerURL == "" {
			errs = append(errs, errors.New("transcriber.server_url is required when transcriber.provider is whisper-server"))
		}
	}
	if cfg.Transcriber.Provider == "whisper" && cfg.Audio.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported by the whisper transcriber; use 16000", cfg.Audio.SampleRate))
	}

	if cfg.Answerer.Provider == "" {
		slog.Warn("answerer.provider is not configured; questions will be detected but never answered")
	}
	if cfg.Answerer.Model == "" && cfg.Answerer.Provider != "" {
		errs = append(errs, errors.New("answerer.model is required when answerer.provider is set"))
	}
	validateProviderName("answerer", cfg.Answerer.FallbackProvider)
	if cfg.Answerer.FallbackProvider != "" && cfg.Answerer.FallbackModel == "" {
		errs = append(errs, errors.New("answerer.fallback_model is required when answerer.fallback_provider is set"))
	}

	if cfg.Session.InterviewType != "" && !cfg.Session.InterviewType.IsValid() {
		errs = append(errs, fmt.Errorf("session.interview_type %q is invalid; valid values: dsa, system_design, behavioral", cfg.Session.InterviewType))
	}

	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; exchanges will not be persisted across restarts")
	}
	if cfg.History.Embeddings.Provider != "" && cfg.History.EmbeddingDimensions <= 0 {
		slog.Warn("history.embeddings is configured but history.embedding_dimensions is not set; defaulting to 1536")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
