// Package answer dispatches interview questions to an LLM backend and
// streams the generated answer back over the event bus.
//
// At most one answer streams per dispatcher call; the orchestrator enforces
// the one-in-flight rule per session. A failed stream is terminal for that
// answer only — there is no automatic retry, the next question dispatches
// normally.
package answer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/pkg/history"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
)

// Status is the lifecycle state of an [Answer].
type Status string

const (
	// StatusStreaming means chunks are still arriving.
	StatusStreaming Status = "streaming"

	// StatusComplete means the stream finished naturally.
	StatusComplete Status = "complete"

	// StatusFailed means the backend reported an error. Text streamed
	// before the failure is retained.
	StatusFailed Status = "failed"

	// StatusCancelled means Cancel ended the stream early. Text streamed
	// before cancellation is retained.
	StatusCancelled Status = "cancelled"
)

// Question is a sealed interview question ready for dispatch.
type Question struct {
	ID            string
	SessionID     string
	Text          string
	RawTranscript string
	InterviewType config.InterviewType
	AskedAt       time.Time
}

// Answer is a streaming answer. The dispatcher is its only writer while
// streaming; once the status is terminal the answer never changes again.
type Answer struct {
	ID         string
	QuestionID string

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	text     []byte
	status   Status
	err      error
	started  time.Time
	duration time.Duration
}

// Text returns the answer text streamed so far.
func (a *Answer) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return string(a.text)
}

// Status returns the current lifecycle state.
func (a *Answer) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Err returns the failure cause when Status is [StatusFailed], nil otherwise.
func (a *Answer) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Duration returns how long the stream ran. Zero until the answer is
// terminal.
func (a *Answer) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duration
}

// Done is closed when the answer reaches a terminal status.
func (a *Answer) Done() <-chan struct{} {
	return a.done
}

// Cancel ends the stream early. The answer becomes [StatusCancelled] with
// the already-streamed text retained. Safe to call at any time, including
// after the answer is terminal (no-op then).
func (a *Answer) Cancel() {
	a.cancel()
}

// StartedEvent is the payload of [bus.KindAnswerStarted].
type StartedEvent struct {
	AnswerID   string
	QuestionID string
	Question   string
}

// DeltaEvent is the payload of [bus.KindAnswerDelta].
type DeltaEvent struct {
	AnswerID string
	Delta    string
}

// DoneEvent is the payload of [bus.KindAnswerDone].
type DoneEvent struct {
	AnswerID   string
	QuestionID string
	Status     Status
	Text       string
	Error      string
	Duration   time.Duration
}

// DispatcherOption is a functional option for configuring a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithTuning sets the sampling temperature and completion token cap applied
// to every request. Both can be changed later via [Dispatcher.SetTuning].
func WithTuning(temperature float64, maxTokens int) DispatcherOption {
	return func(d *Dispatcher) {
		d.temperature = temperature
		d.maxTokens = maxTokens
	}
}

// Dispatcher streams answers from an [llm.Provider] and publishes progress
// on the event bus. Safe for concurrent use.
type Dispatcher struct {
	provider llm.Provider
	bus      *bus.Bus

	mu          sync.Mutex
	temperature float64
	maxTokens   int
}

// NewDispatcher creates a Dispatcher over provider, publishing on b.
func NewDispatcher(provider llm.Provider, b *bus.Bus, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{provider: provider, bus: b}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetTuning updates the sampling parameters for subsequent requests.
// In-flight answers are unaffected.
func (d *Dispatcher) SetTuning(temperature float64, maxTokens int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.temperature = temperature
	d.maxTokens = maxTokens
}

// Ask dispatches q to the backend and returns the streaming Answer. The
// returned error is non-nil only when the stream could not start; mid-stream
// failures surface as a terminal [StatusFailed] answer. hist provides recent
// exchanges for follow-up context, oldest first.
func (d *Dispatcher) Ask(ctx context.Context, q Question, hist []history.Exchange) (*Answer, error) {
	d.mu.Lock()
	req := llm.CompletionRequest{
		Messages:     buildMessages(q, hist),
		SystemPrompt: SystemPrompt(q.InterviewType),
		Temperature:  d.temperature,
		MaxTokens:    d.maxTokens,
	}
	d.mu.Unlock()
	if len(hist) > 0 {
		req.SystemPrompt += followUpContext
	}

	streamCtx, cancel := context.WithCancel(ctx)
	chunks, err := d.provider.StreamCompletion(streamCtx, req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("answer: dispatch %q: %w", q.ID, err)
	}

	a := &Answer{
		ID:         uuid.NewString(),
		QuestionID: q.ID,
		cancel:     cancel,
		done:       make(chan struct{}),
		status:     StatusStreaming,
		started:    time.Now(),
	}

	d.bus.Publish(bus.Event{
		Kind:      bus.KindAnswerStarted,
		SessionID: q.SessionID,
		Payload:   StartedEvent{AnswerID: a.ID, QuestionID: q.ID, Question: q.Text},
	})

	go d.consume(streamCtx, a, q, chunks)
	return a, nil
}

// consume drains the chunk stream into the answer until it ends.
func (d *Dispatcher) consume(ctx context.Context, a *Answer, q Question, chunks <-chan llm.Chunk) {
	for chunk := range chunks {
		if chunk.FinishReason == "error" {
			if ctx.Err() != nil {
				// The backend reports cancellation as a stream error;
				// the caller asked for it, so it is not a failure.
				d.finish(a, q, StatusCancelled, nil)
				return
			}
			d.finish(a, q, StatusFailed, errors.New(chunk.Text))
			return
		}
		if chunk.Text == "" {
			continue
		}

		a.mu.Lock()
		a.text = append(a.text, chunk.Text...)
		a.mu.Unlock()

		d.bus.Publish(bus.Event{
			Kind:      bus.KindAnswerDelta,
			SessionID: q.SessionID,
			Payload:   DeltaEvent{AnswerID: a.ID, Delta: chunk.Text},
		})
	}

	if ctx.Err() != nil {
		d.finish(a, q, StatusCancelled, nil)
		return
	}
	d.finish(a, q, StatusComplete, nil)
}

// finish moves the answer to a terminal status and publishes the done event.
func (d *Dispatcher) finish(a *Answer, q Question, status Status, err error) {
	a.mu.Lock()
	a.status = status
	a.err = err
	a.duration = time.Since(a.started)
	text := string(a.text)
	a.mu.Unlock()

	a.cancel()

	var msg string
	if err != nil {
		msg = err.Error()
	}
	d.bus.Publish(bus.Event{
		Kind:      bus.KindAnswerDone,
		SessionID: q.SessionID,
		Payload: DoneEvent{
			AnswerID:   a.ID,
			QuestionID: q.ID,
			Status:     status,
			Text:       text,
			Error:      msg,
			Duration:   a.duration,
		},
	})
	close(a.done)
}
