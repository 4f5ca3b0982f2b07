package app_test

import (
	"context"
	"encoding/binary"
	"log/slog"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/internal/app"
	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/pkg/audio"
	audiomock "github.com/auricle-ai/auricle/pkg/audio/mock"
	embmock "github.com/auricle-ai/auricle/pkg/provider/embeddings/mock"
	"github.com/auricle-ai/auricle/pkg/provider/llm"
	llmmock "github.com/auricle-ai/auricle/pkg/provider/llm/mock"
	"github.com/auricle-ai/auricle/pkg/provider/stt"
	sttmock "github.com/auricle-ai/auricle/pkg/provider/stt/mock"
	historymock "github.com/auricle-ai/auricle/pkg/history/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{SampleRate: 16000, FrameMs: 30, RingFrames: 64},
		VAD: config.VADConfig{
			SpeechThreshold:  0.02,
			SilenceThreshold: 0.01,
			GapMs:            90,
			MinSpeechMs:      60,
		},
		Question:    config.QuestionConfig{MinWords: 1, TimeoutMs: 60_000},
		Transcriber: config.TranscriberConfig{Workers: 1, QueueSize: 8},
		Answerer:    config.AnswererConfig{Temperature: 0.4, MaxTokens: 512},
		History:     config.HistoryConfig{ContextExchanges: 10},
		Session:     config.SessionConfig{InterviewType: config.InterviewDSA},
	}
}

// speechFrames is one spoken burst followed by a sealing silence gap.
func speechFrames() []audio.Frame {
	const n = 16000 * 30 / 1000
	frames := make([]audio.Frame, 0, 10)
	for i := 0; i < 10; i++ {
		amp := 0.001
		if i < 6 {
			amp = 0.05
		}
		data := make([]byte, n*2)
		v := int16(amp * 32768)
		for j := 0; j < n; j++ {
			binary.LittleEndian.PutUint16(data[j*2:], uint16(v))
		}
		frames = append(frames, audio.Frame{
			Data:       data,
			SampleRate: 16000,
			Timestamp:  time.Duration(i) * 30 * time.Millisecond,
		})
	}
	return frames
}

func TestRun_RecordsCompletedExchange(t *testing.T) {
	cfg := testConfig()

	src := &audiomock.Source{Frames: speechFrames(), HoldOpen: true}
	tr := &sttmock.Transcriber{Default: stt.Result{Text: "what is a goroutine?", Confidence: 0.9}}
	lp := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "A lightweight thread."},
		{FinishReason: "stop"},
	}}
	store := &historymock.Store{}
	emb := &embmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}}

	a, err := app.New(context.Background(), cfg, app.Providers{
		Source:      src,
		Transcriber: tr,
		Answerer:    lp,
		Embeddings:  emb,
		History:     store,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	if err := a.Orchestrator().Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for store.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if store.Len() != 1 {
		t.Fatalf("recorded %d exchanges, want 1", store.Len())
	}

	ex := store.Exchanges[0]
	if ex.Question != "What is a goroutine?" {
		t.Errorf("question = %q", ex.Question)
	}
	if ex.Answer != "A lightweight thread." {
		t.Errorf("answer = %q", ex.Answer)
	}
	if ex.InterviewType != "dsa" {
		t.Errorf("interview type = %q", ex.InterviewType)
	}
	if len(ex.Embedding) != 3 {
		t.Errorf("embedding = %v", ex.Embedding)
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not exit on cancel")
	}
}

func TestNew_RequiresProviders(t *testing.T) {
	_, err := app.New(context.Background(), testConfig(), app.Providers{})
	if err == nil {
		t.Fatal("New accepted empty providers")
	}
}

func TestApplyConfig_HotReload(t *testing.T) {
	cfg := testConfig()

	level := &slog.LevelVar{}
	level.Set(slog.LevelInfo)

	a, err := app.New(context.Background(), cfg, app.Providers{
		Source:      &audiomock.Source{HoldOpen: true},
		Transcriber: &sttmock.Transcriber{},
		Answerer:    &llmmock.Provider{},
	}, app.WithBus(bus.New()), app.WithLogLevel(level))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	updated := *cfg
	updated.Server.LogLevel = config.LogDebug
	updated.Question.TimeoutMs = 700
	updated.Answerer.Temperature = 0.9

	a.ApplyConfig(cfg, &updated)

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
}
