package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
	llmmock "github.com/auricle-ai/auricle/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "hello from primary"},
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "hello from secondary"},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello from primary" {
		t.Fatalf("content = %q, want 'hello from primary'", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.CompleteCalls))
	}
	if len(secondary.CompleteCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.CompleteCalls))
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	primary := &llmmock.Provider{
		CompleteErr: errors.New("primary down"),
	}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "hello from secondary"},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello from secondary" {
		t.Fatalf("content = %q, want 'hello from secondary'", resp.Content)
	}
}

func TestLLMFallback_Stream_Failover(t *testing.T) {
	primary := &llmmock.Provider{
		StreamErr: errors.New("primary down"),
	}
	secondary := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "Use a hash map."},
			{FinishReason: "stop"},
		},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	ch, err := fb.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hash maps?"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var text string
	for chunk := range ch {
		text += chunk.Text
	}
	if text != "Use a hash map." {
		t.Fatalf("streamed text = %q", text)
	}
	if len(primary.StreamCalls) != 1 || len(secondary.StreamCalls) != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", len(primary.StreamCalls), len(secondary.StreamCalls))
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	primary := &llmmock.Provider{CompleteErr: errors.New("down")}
	secondary := &llmmock.Provider{CompleteErr: errors.New("also down")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_Capabilities(t *testing.T) {
	primary := &llmmock.Provider{
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 200_000, SupportsStreaming: true},
	}
	fb := NewLLMFallback(primary, "primary", FallbackConfig{})

	caps := fb.Capabilities()
	if caps.ContextWindow != 200_000 || !caps.SupportsStreaming {
		t.Fatalf("capabilities = %+v", caps)
	}
}
