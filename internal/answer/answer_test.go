package answer_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/internal/answer"
	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/pkg/history"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	llmmock "github.com/auricle-ai/auricle/pkg/provider/llm/mock"
)

func testQuestion() answer.Question {
	return answer.Question{
		ID:            "q1",
		SessionID:     "s1",
		Text:          "what is the time complexity of quicksort?",
		InterviewType: config.InterviewDSA,
		AskedAt:       time.Now(),
	}
}

func waitTerminal(t *testing.T, a *answer.Answer) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("answer never reached a terminal status")
	}
}

func TestAsk_StreamsToCompletion(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "Average case "},
			{Text: "O(n log n)."},
			{FinishReason: "stop"},
		},
	}
	b := bus.New()
	defer b.Close()
	sub := b.Subscribe(16)
	defer sub.Unsubscribe()

	d := answer.NewDispatcher(p, b, answer.WithTuning(0.7, 1024))
	a, err := d.Ask(context.Background(), testQuestion(), nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	waitTerminal(t, a)

	if a.Status() != answer.StatusComplete {
		t.Errorf("Status = %q, want complete", a.Status())
	}
	if a.Text() != "Average case O(n log n)." {
		t.Errorf("Text = %q", a.Text())
	}
	if a.Err() != nil {
		t.Errorf("Err = %v, want nil", a.Err())
	}
	if a.Duration() <= 0 {
		t.Error("Duration not recorded")
	}

	var kinds []bus.Kind
	for len(kinds) < 4 {
		select {
		case ev := <-sub.C:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", kinds)
		}
	}
	want := []bus.Kind{bus.KindAnswerStarted, bus.KindAnswerDelta, bus.KindAnswerDelta, bus.KindAnswerDone}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event order = %v, want %v", kinds, want)
		}
	}

	req := p.StreamCalls[0].Req
	if req.Temperature != 0.7 || req.MaxTokens != 1024 {
		t.Errorf("tuning not applied: %+v", req)
	}
	if !strings.Contains(req.SystemPrompt, "Data Structures") {
		t.Errorf("system prompt not interview-typed: %q", req.SystemPrompt)
	}
	if n := len(req.Messages); n != 1 {
		t.Errorf("got %d messages, want 1", n)
	}
}

func TestAsk_HistoryBecomesFollowUpContext(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "ok", FinishReason: "stop"}}}
	b := bus.New()
	defer b.Close()

	hist := []history.Exchange{
		{Question: "reverse a linked list", Answer: "iterate with three pointers"},
		{Question: "now do it recursively", Answer: "recurse then relink"},
	}
	d := answer.NewDispatcher(p, b)
	a, err := d.Ask(context.Background(), testQuestion(), hist)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	waitTerminal(t, a)

	req := p.StreamCalls[0].Req
	if n := len(req.Messages); n != 5 {
		t.Fatalf("got %d messages, want 5 (two exchanges + question)", n)
	}
	if req.Messages[0].Role != "user" || req.Messages[1].Role != "assistant" {
		t.Errorf("exchange roles wrong: %+v", req.Messages[:2])
	}
	if req.Messages[4].Content != testQuestion().Text {
		t.Errorf("last message = %q, want the question", req.Messages[4].Content)
	}
	if !strings.Contains(req.SystemPrompt, "follow-up") {
		t.Error("follow-up context missing from system prompt")
	}
}

func TestAsk_StartFailure(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("invalid credentials")
	p := &llmmock.Provider{StreamErr: errBoom}
	b := bus.New()
	defer b.Close()

	d := answer.NewDispatcher(p, b)
	a, err := d.Ask(context.Background(), testQuestion(), nil)
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want wrapped %v", err, errBoom)
	}
	if a != nil {
		t.Error("failed dispatch must not return an answer")
	}
}

func TestAsk_MidStreamError(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "The trick is "},
			{Text: "rate limited", FinishReason: "error"},
		},
	}
	b := bus.New()
	defer b.Close()
	sub := b.Subscribe(16)
	defer sub.Unsubscribe()

	d := answer.NewDispatcher(p, b)
	a, err := d.Ask(context.Background(), testQuestion(), nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	waitTerminal(t, a)

	if a.Status() != answer.StatusFailed {
		t.Errorf("Status = %q, want failed", a.Status())
	}
	if a.Err() == nil || a.Err().Error() != "rate limited" {
		t.Errorf("Err = %v", a.Err())
	}
	if a.Text() != "The trick is " {
		t.Errorf("streamed text not retained: %q", a.Text())
	}

	done := drainUntilDone(t, sub)
	if done.Status != answer.StatusFailed || done.Error != "rate limited" {
		t.Errorf("done event = %+v", done)
	}
}

func TestCancel_RetainsStreamedText(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	p := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{Text: "First chunk. "}, {Text: "Second chunk."}},
		Gate:         gate,
	}
	b := bus.New()
	defer b.Close()
	sub := b.Subscribe(16)
	defer sub.Unsubscribe()

	d := answer.NewDispatcher(p, b)
	a, err := d.Ask(context.Background(), testQuestion(), nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	gate <- struct{}{} // release the first chunk only

	// Wait for the delta so the cancel lands mid-stream.
	waitForDelta(t, sub)
	a.Cancel()
	waitTerminal(t, a)

	if a.Status() != answer.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", a.Status())
	}
	if a.Text() != "First chunk. " {
		t.Errorf("Text = %q, want the streamed prefix", a.Text())
	}
	if a.Err() != nil {
		t.Errorf("cancellation is not a failure: %v", a.Err())
	}

	done := drainUntilDone(t, sub)
	if done.Status != answer.StatusCancelled {
		t.Errorf("done event status = %q", done.Status)
	}
}

func drainUntilDone(t *testing.T, sub *bus.Subscription) answer.DoneEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			if ev.Kind == bus.KindAnswerDone {
				return ev.Payload.(answer.DoneEvent)
			}
		case <-deadline:
			t.Fatal("no answer.done event")
		}
	}
}

func waitForDelta(t *testing.T, sub *bus.Subscription) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			if ev.Kind == bus.KindAnswerDelta {
				return
			}
		case <-deadline:
			t.Fatal("no answer.delta event")
		}
	}
}
