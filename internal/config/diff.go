package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (audio device, transcriber backend, history DSN) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true when any segmenter tuning field changed. The new
	// values apply from the next session start.
	VADChanged bool
	NewVAD     VADConfig

	// QuestionChanged is true when question detection tuning changed.
	QuestionChanged bool
	NewQuestion     QuestionConfig

	// AnswererTuningChanged is true when temperature or max_tokens changed.
	// Provider/model changes are not hot-reloadable and are ignored here.
	AnswererTuningChanged bool
	NewAnswerer           AnswererConfig
}

// Empty reports whether no hot-reloadable field changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VADChanged && !d.QuestionChanged && !d.AnswererTuningChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD != new.VAD {
		d.VADChanged = true
		d.NewVAD = new.VAD
	}

	if questionChanged(old.Question, new.Question) {
		d.QuestionChanged = true
		d.NewQuestion = new.Question
	}

	if old.Answerer.Temperature != new.Answerer.Temperature ||
		old.Answerer.MaxTokens != new.Answerer.MaxTokens {
		d.AnswererTuningChanged = true
		d.NewAnswerer = new.Answerer
	}

	return d
}

func questionChanged(old, new QuestionConfig) bool {
	if old.MinWords != new.MinWords || old.TimeoutMs != new.TimeoutMs {
		return true
	}
	if boolValue(old.RequireQuestion) != boolValue(new.RequireQuestion) {
		return true
	}
	return !slices.Equal(old.ExtraTerms, new.ExtraTerms)
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
