// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A Transcriber wraps a batch transcription engine (whisper.cpp in-process, a
// remote whisper-server, or a cloud API) behind a single synchronous call:
// samples in, text out. Segmentation into utterances happens upstream in the
// voice-activity segmenter, so backends do not need to understand streaming;
// the transcription engine invokes Transcribe once per sealed utterance from
// its worker pool.
//
// Implementations must be safe for concurrent use — the worker pool issues
// parallel Transcribe calls when more than one utterance is pending.
package stt

import "context"

// Result is the outcome of transcribing one utterance.
type Result struct {
	// Text is the transcribed speech content, whitespace-trimmed.
	// Empty when the audio contained no recognisable speech.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// backend does not report confidence.
	Confidence float64

	// Language is the detected or configured BCP-47 language tag (e.g. "en").
	Language string
}

// Transcriber is the capability interface over any speech-to-text backend.
//
// Transcribe converts mono float32 samples in the range [-1, 1] at the given
// sample rate into text. It blocks until transcription completes or ctx is
// cancelled; cancellation must abort promptly and return ctx.Err() wrapped.
//
// A failed call affects only the utterance being transcribed — callers treat
// errors as per-utterance events, never as pipeline-fatal.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error)
}
