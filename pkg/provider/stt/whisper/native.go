// This file contains the Native transcriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/auricle-ai/auricle/pkg/provider/stt"
)

// Compile-time assertion that Native satisfies stt.Transcriber.
var _ stt.Transcriber = (*Native)(nil)

// Native implements stt.Transcriber using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup and
// shared across all concurrent Transcribe calls; each call creates its own
// whisper context, which is the unit of thread confinement in whisper.cpp.
type Native struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a Native transcriber.
type NativeOption func(*Native)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// NewNative creates a Native transcriber that loads the whisper.cpp model
// from the given file path. The caller must call Close when the transcriber
// is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	n := &Native{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model. Must be called when the transcriber is no
// longer needed.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// Transcribe implements stt.Transcriber. It runs whisper.cpp inference on the
// samples using a fresh context and returns the concatenated segment text.
func (n *Native) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: %w", err)
	}
	if sampleRate != defaultSampleRate {
		return stt.Result{}, fmt.Errorf("whisper: unsupported sample rate %d (model expects %d)", sampleRate, defaultSampleRate)
	}
	if len(samples) == 0 {
		return stt.Result{Language: n.language}, nil
	}

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines.
	wctx, err := n.model.NewContext()
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(n.language); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: set language %q: %w", n.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	res := stt.Result{
		Text:     strings.Join(parts, " "),
		Language: n.language,
	}
	if res.Text != "" {
		// The bindings do not expose per-segment probabilities on all
		// versions; report a flat confidence when text was produced.
		res.Confidence = 1.0
	}
	return res, nil
}
