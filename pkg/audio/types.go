package audio

import "time"

// Frame represents a single fixed-size block of captured audio flowing through
// the pipeline. Frames are the atomic unit of audio transport — produced by a
// [Source], buffered in a [Ring], and consumed by the voice-activity segmenter.
//
// A Frame is immutable once produced. Ownership transfers to the consumer when
// the frame is handed over; no stage mutates a frame it did not create.
type Frame struct {
	// Data is raw 16-bit signed little-endian PCM, mono.
	Data []byte

	// SampleRate in Hz (16000 for Whisper-optimised capture).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	// Monotonic: strictly increasing across frames from the same Source.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame, derived from the PCM
// byte count and sample rate. Returns zero for an empty or misconfigured frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || len(f.Data) == 0 {
		return 0
	}
	samples := len(f.Data) / 2
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// DeviceConfig describes the capture device and audio format for a [Source].
type DeviceConfig struct {
	// Device is the OS-level source name (e.g., a PulseAudio/PipeWire monitor
	// source such as "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor").
	// Empty selects the platform default monitor source.
	Device string

	// SampleRate is the requested capture rate in Hz.
	SampleRate int

	// FrameMs is the duration of each emitted frame in milliseconds.
	FrameMs int
}
