package segment_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/internal/segment"
	"github.com/auricle-ai/auricle/pkg/audio"
)

const testRate = 16000

func testConfig() segment.Config {
	return segment.Config{
		SampleRate:       testRate,
		SpeechThreshold:  0.02,
		SilenceThreshold: 0.01,
		GapMs:            90, // 3 silence frames of 30 ms
		MinSpeechMs:      60,
		MaxUtteranceMs:   0,
	}
}

// frame builds a 30 ms frame of constant amplitude (RMS == amp) at timestamp
// ts.
func frame(amp float64, ts time.Duration) audio.Frame {
	const n = testRate * 30 / 1000
	data := make([]byte, n*2)
	v := int16(amp * 32768)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	return audio.Frame{Data: data, SampleRate: testRate, Timestamp: ts}
}

// feed pushes frames in order, collecting all emitted utterances.
func feed(t *testing.T, s *segment.Segmenter, frames []audio.Frame) []segment.Utterance {
	t.Helper()
	var out []segment.Utterance
	for _, f := range frames {
		us, err := s.Push(f)
		if err != nil {
			t.Fatalf("Push: %v", err)
		}
		out = append(out, us...)
	}
	return out
}

// pattern builds a frame sequence from a string: 's' = speech (0.05),
// '.' = silence (0.001), 'b' = in-band level (0.015).
func pattern(p string) []audio.Frame {
	frames := make([]audio.Frame, 0, len(p))
	for i, c := range p {
		var amp float64
		switch c {
		case 's':
			amp = 0.05
		case 'b':
			amp = 0.015
		default:
			amp = 0.001
		}
		frames = append(frames, frame(amp, time.Duration(i)*30*time.Millisecond))
	}
	return frames
}

func TestSpeechThenGapEmitsUtterance(t *testing.T) {
	t.Parallel()

	s, err := segment.New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := feed(t, s, pattern("ssssss...."))
	if len(got) != 1 {
		t.Fatalf("got %d utterances, want 1", len(got))
	}
	u := got[0]
	if u.ID != 1 {
		t.Errorf("ID = %d, want 1", u.ID)
	}
	if u.Continued {
		t.Error("first utterance must not be a continuation")
	}
	// Six speech frames of 30 ms, trailing gap silence trimmed.
	if d := u.Duration(); d != 180*time.Millisecond {
		t.Errorf("Duration = %v, want 180ms", d)
	}
	if u.Start != 0 {
		t.Errorf("Start = %v, want 0", u.Start)
	}
}

func TestShortBurstDiscarded(t *testing.T) {
	t.Parallel()

	s, _ := segment.New(testConfig())

	// One 30 ms speech frame is below the 60 ms minimum.
	got := feed(t, s, pattern("s...."))
	if len(got) != 0 {
		t.Fatalf("got %d utterances, want 0 (below min_speech_ms)", len(got))
	}

	// The discarded burst must not consume a sequence number.
	got = feed(t, s, pattern("ssssss...."))
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("next utterance = %+v, want ID 1", got)
	}
}

func TestGapSplitsUtterances(t *testing.T) {
	t.Parallel()

	s, _ := segment.New(testConfig())

	got := feed(t, s, pattern("ssss....ssss...."))
	if len(got) != 2 {
		t.Fatalf("got %d utterances, want 2", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("IDs = %d, %d; want 1, 2", got[0].ID, got[1].ID)
	}
	if got[1].Start <= got[0].Start {
		t.Errorf("second utterance must start later: %v <= %v", got[1].Start, got[0].Start)
	}
}

func TestHysteresisBandContinuesUtterance(t *testing.T) {
	t.Parallel()

	s, _ := segment.New(testConfig())

	// In-band frames between speech bursts must not close the utterance,
	// and must reset nothing: one continuous utterance results.
	got := feed(t, s, pattern("ssbbbbss...."))
	if len(got) != 1 {
		t.Fatalf("got %d utterances, want 1 (band must not split)", len(got))
	}
	if d := got[0].Duration(); d != 8*30*time.Millisecond {
		t.Errorf("Duration = %v, want 240ms", d)
	}
}

func TestHysteresisBandDoesNotStartUtterance(t *testing.T) {
	t.Parallel()

	s, _ := segment.New(testConfig())

	got := feed(t, s, pattern("bbbbbbbbbb"))
	if len(got) != 0 {
		t.Fatalf("got %d utterances, want 0 (band alone is not speech)", len(got))
	}
	if u := s.Flush(); u != nil {
		t.Errorf("Flush returned %+v, want nil", u)
	}
}

func TestMaxUtteranceForcesContinuation(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxUtteranceMs = 120 // 4 frames
	s, _ := segment.New(cfg)

	got := feed(t, s, pattern("ssssssss...."))
	if len(got) != 2 {
		t.Fatalf("got %d utterances, want 2", len(got))
	}
	if got[0].Continued {
		t.Error("first utterance must not be flagged Continued")
	}
	if !got[1].Continued {
		t.Error("post-cap utterance must be flagged Continued")
	}
	if d := got[0].Duration(); d != 120*time.Millisecond {
		t.Errorf("capped Duration = %v, want 120ms", d)
	}
}

func TestFlushEmitsInProgressUtterance(t *testing.T) {
	t.Parallel()

	s, _ := segment.New(testConfig())

	if got := feed(t, s, pattern("ssss")); len(got) != 0 {
		t.Fatalf("nothing should close mid-speech, got %d", len(got))
	}
	u := s.Flush()
	if u == nil {
		t.Fatal("Flush returned nil, want in-progress utterance")
	}
	if d := u.Duration(); d != 120*time.Millisecond {
		t.Errorf("Duration = %v, want 120ms", d)
	}
	if again := s.Flush(); again != nil {
		t.Errorf("second Flush returned %+v, want nil", again)
	}
}

func TestInvalidSampleRate(t *testing.T) {
	t.Parallel()

	s, _ := segment.New(testConfig())

	f := frame(0.05, 0)
	f.SampleRate = 44100
	_, err := s.Push(f)
	if !errors.Is(err, segment.ErrInvalidSampleRate) {
		t.Fatalf("err = %v, want ErrInvalidSampleRate", err)
	}
}

func TestNewRejectsInvertedThresholds(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SilenceThreshold = 0.05
	if _, err := segment.New(cfg); err == nil {
		t.Fatal("expected error for inverted thresholds, got nil")
	}
}
