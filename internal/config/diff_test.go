package config_test

import (
	"testing"

	"github.com/auricle-ai/auricle/internal/config"
)

func baseConfig() *config.Config {
	req := true
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		VAD: config.VADConfig{
			SpeechThreshold:  0.02,
			SilenceThreshold: 0.01,
			GapMs:            700,
			MinSpeechMs:      300,
			MaxUtteranceMs:   30000,
		},
		Question: config.QuestionConfig{MinWords: 3, RequireQuestion: &req},
		Answerer: config.AnswererConfig{Provider: "anthropic", Model: "claude-sonnet-4-5", Temperature: 0.3},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_VADChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.VAD.GapMs = 500

	d := config.Diff(old, new)
	if !d.VADChanged {
		t.Fatal("VADChanged = false, want true")
	}
	if d.NewVAD.GapMs != 500 {
		t.Errorf("NewVAD.GapMs = %d, want 500", d.NewVAD.GapMs)
	}
}

func TestDiff_QuestionExtraTermsChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Question.ExtraTerms = []string{"grpc"}

	d := config.Diff(old, new)
	if !d.QuestionChanged {
		t.Fatal("QuestionChanged = false, want true")
	}
}

func TestDiff_AnswererTuningChanged(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Answerer.Temperature = 0.7

	d := config.Diff(old, new)
	if !d.AnswererTuningChanged {
		t.Fatal("AnswererTuningChanged = false, want true")
	}
}

func TestDiff_AnswererModelIgnored(t *testing.T) {
	old := baseConfig()
	new := baseConfig()
	new.Answerer.Model = "gpt-4o"

	d := config.Diff(old, new)
	if d.AnswererTuningChanged {
		t.Error("model change must not mark answerer tuning as changed")
	}
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}
