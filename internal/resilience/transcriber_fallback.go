package resilience

import (
	"context"

	"github.com/auricle-ai/auricle/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Transcriber] with automatic failover
// across multiple speech-to-text backends. Each backend has its own circuit
// breaker, so a crashed in-process engine stops being tried long before its
// remote fallback wears out.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs the utterance against the first healthy backend. Failures
// count against that backend's breaker; subsequent fallbacks are tried with
// the same samples.
func (f *TranscriberFallback) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Result, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (stt.Result, error) {
		return t.Transcribe(ctx, samples, sampleRate)
	})
}
