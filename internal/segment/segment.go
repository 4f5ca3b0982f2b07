// Package segment turns a stream of raw audio frames into discrete speech
// utterances using energy-based voice activity detection.
//
// The detector uses two-threshold hysteresis: a frame counts as speech only
// above the speech threshold and as silence only below the silence threshold;
// the band between the two continues whatever state the segmenter is in.
// This keeps breathy trailing syllables from chopping an utterance and keeps
// low-level room noise from starting one.
package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/auricle-ai/auricle/pkg/audio"
)

// ErrInvalidSampleRate is returned when a frame's sample rate does not match
// the rate the segmenter was configured with.
var ErrInvalidSampleRate = errors.New("segment: invalid sample rate")

// Utterance is one contiguous stretch of detected speech.
type Utterance struct {
	// ID is a monotonically increasing sequence number, starting at 1.
	// Downstream uses it to release transcripts in utterance order.
	ID uint64

	// Samples holds the utterance audio as normalized float32 mono samples
	// in [-1, 1], ready for the transcriber.
	Samples []float32

	// SampleRate is the rate of Samples in Hz.
	SampleRate int

	// Start is the capture timestamp of the utterance's first frame.
	Start time.Duration

	// Continued marks an utterance that is the tail of a previous one which
	// was force-closed at the maximum utterance length.
	Continued bool
}

// Duration returns the utterance length.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Config tunes a Segmenter. All durations are in milliseconds to mirror the
// YAML config.
type Config struct {
	// SampleRate is the expected rate of incoming frames in Hz.
	SampleRate int

	// SpeechThreshold is the RMS level at or above which a frame is speech.
	SpeechThreshold float64

	// SilenceThreshold is the RMS level at or below which a frame is
	// silence. Must not exceed SpeechThreshold.
	SilenceThreshold float64

	// GapMs closes the current utterance after this much contiguous silence.
	GapMs int

	// MinSpeechMs discards closed utterances shorter than this.
	MinSpeechMs int

	// MaxUtteranceMs force-closes an utterance at this length; the following
	// utterance is flagged Continued. Zero disables the cap.
	MaxUtteranceMs int
}

// Segmenter is the VAD state machine. It is fed frames one at a time via
// [Segmenter.Push] and emits utterances as they close. Not safe for
// concurrent use; the capture pump owns it.
type Segmenter struct {
	cfg Config

	nextID uint64

	// active utterance state
	inSpeech   bool
	samples    []float32
	start      time.Duration
	silenceRun time.Duration // contiguous trailing silence within the utterance
	continued  bool          // next emitted utterance is a continuation
}

// New creates a Segmenter. It returns an error when the thresholds are
// inverted or the sample rate is not positive.
func New(cfg Config) (*Segmenter, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("segment: sample rate %d must be positive", cfg.SampleRate)
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("segment: silence threshold %.4f exceeds speech threshold %.4f",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	return &Segmenter{cfg: cfg}, nil
}

// Push feeds one frame into the state machine and returns any utterances
// that closed as a result (usually zero or one; a forced close at the max
// length can coincide with a gap close on the next frame).
//
// Returns [ErrInvalidSampleRate] when f.SampleRate differs from the
// configured rate.
func (s *Segmenter) Push(f audio.Frame) ([]Utterance, error) {
	if f.SampleRate != s.cfg.SampleRate {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidSampleRate, f.SampleRate, s.cfg.SampleRate)
	}

	samples := decodePCM(f.Data)
	level := rms(samples)

	var out []Utterance

	switch {
	case !s.inSpeech:
		if level >= s.cfg.SpeechThreshold {
			s.inSpeech = true
			s.samples = append(s.samples[:0:0], samples...)
			s.start = f.Timestamp
			s.silenceRun = 0
		}
		// Below the speech threshold while idle: stay idle. The hysteresis
		// band does not start an utterance.

	default:
		s.samples = append(s.samples, samples...)
		if level <= s.cfg.SilenceThreshold {
			s.silenceRun += f.Duration()
		} else {
			// Speech or in-band level continues the utterance.
			s.silenceRun = 0
		}

		if s.cfg.GapMs > 0 && s.silenceRun >= time.Duration(s.cfg.GapMs)*time.Millisecond {
			if u, ok := s.close(false); ok {
				out = append(out, u)
			}
		} else if s.cfg.MaxUtteranceMs > 0 && s.activeDuration() >= time.Duration(s.cfg.MaxUtteranceMs)*time.Millisecond {
			if u, ok := s.close(true); ok {
				out = append(out, u)
			}
		}
	}

	return out, nil
}

// Flush force-closes any in-progress utterance, e.g. when the session stops
// mid-speech. Returns nil when there is nothing to emit.
func (s *Segmenter) Flush() *Utterance {
	if !s.inSpeech {
		return nil
	}
	if u, ok := s.close(false); ok {
		return &u
	}
	return nil
}

// close ends the active utterance. Trailing gap silence is trimmed off.
// forced marks a max-length close, which flags the next utterance as a
// continuation and keeps the segmenter in speech.
func (s *Segmenter) close(forced bool) (Utterance, bool) {
	// Trim the trailing silence that triggered the close.
	keep := len(s.samples) - int(s.silenceRun.Seconds()*float64(s.cfg.SampleRate))
	if keep < 0 {
		keep = 0
	}
	trimmed := s.samples[:keep]

	speechDur := time.Duration(len(trimmed)) * time.Second / time.Duration(s.cfg.SampleRate)
	tooShort := speechDur < time.Duration(s.cfg.MinSpeechMs)*time.Millisecond

	var u Utterance
	emitted := false
	if !tooShort && len(trimmed) > 0 {
		s.nextID++
		u = Utterance{
			ID:         s.nextID,
			Samples:    append([]float32(nil), trimmed...),
			SampleRate: s.cfg.SampleRate,
			Start:      s.start,
			Continued:  s.continued,
		}
		emitted = true
	}

	if forced {
		// Stay in speech: the tail keeps accumulating as a continuation.
		s.inSpeech = true
		s.samples = s.samples[:0]
		s.start += speechDur
		s.silenceRun = 0
		s.continued = emitted || s.continued
	} else {
		s.inSpeech = false
		s.samples = nil
		s.silenceRun = 0
		s.continued = false
	}

	return u, emitted
}

// activeDuration returns the length of the in-progress utterance.
func (s *Segmenter) activeDuration() time.Duration {
	return time.Duration(len(s.samples)) * time.Second / time.Duration(s.cfg.SampleRate)
}

// rms computes the root-mean-square level of normalized samples.
func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// decodePCM converts little-endian s16 mono bytes to normalized float32.
func decodePCM(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		out[i] = float32(v) / 32768
	}
	return out
}
