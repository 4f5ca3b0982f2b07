// Package mock provides an in-memory implementation of [stt.Transcriber] for
// unit tests. The mock returns scripted results in call order and records
// every request so tests can assert on them.
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/provider/stt"
)

// Compile-time check that *Transcriber satisfies [stt.Transcriber].
var _ stt.Transcriber = (*Transcriber)(nil)

// Call records a single Transcribe invocation.
type Call struct {
	Samples    []float32
	SampleRate int
}

// Transcriber is a scripted mock implementation of [stt.Transcriber].
// Results are consumed in call order; when the script is exhausted the
// Default result is returned. All methods are safe for concurrent use.
type Transcriber struct {
	mu sync.Mutex

	// Results are returned one per call, in order.
	Results []stt.Result

	// Errors are returned one per call, in order, paired with Results by
	// index. A nil entry means success.
	Errors []error

	// Default is returned once Results is exhausted.
	Default stt.Result

	// Delay, when non-nil, is invoked before each call returns. Use it to
	// simulate slow or out-of-order transcription (e.g. block on a channel
	// keyed by call index).
	Delay func(call int)

	// Calls records every invocation.
	Calls []Call

	calls int
}

// Transcribe implements [stt.Transcriber].
func (m *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Result, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	cp := make([]float32, len(samples))
	copy(cp, samples)
	m.Calls = append(m.Calls, Call{Samples: cp, SampleRate: sampleRate})
	delay := m.Delay
	m.mu.Unlock()

	if delay != nil {
		delay(idx)
	}
	if err := ctx.Err(); err != nil {
		return stt.Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < len(m.Errors) && m.Errors[idx] != nil {
		return stt.Result{}, m.Errors[idx]
	}
	if idx < len(m.Results) {
		return m.Results[idx], nil
	}
	return m.Default, nil
}

// CallCount returns the number of Transcribe invocations so far.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
