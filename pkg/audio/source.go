// Package audio defines the capture-side primitives of the Auricle pipeline:
// the [Frame] transport type, the [Source] capture interface, and the bounded
// [Ring] buffer that decouples the real-time capture goroutine from the
// processing stage.
//
// A Source captures system audio (typically an OS monitor device, so that
// audio from conferencing apps can be heard) and emits fixed-size PCM frames
// at device cadence. The capture goroutine must never stall: frames are pushed
// into a Ring whose overflow policy drops the oldest frames instead of
// blocking the producer.
package audio

import (
	"context"
	"errors"
)

// Sentinel errors reported by Source implementations.
var (
	// ErrDeviceUnavailable indicates the configured capture device could not
	// be opened within the start timeout.
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

	// ErrDeviceDisconnected indicates the capture device vanished mid-stream.
	ErrDeviceDisconnected = errors.New("audio: capture device disconnected")
)

// Source is the capability interface for audio capture backends.
//
// Start opens the device and returns a channel of frames. The channel is
// closed when the stream ends — either because Stop was called or because the
// device failed. After the channel closes, Err reports why.
//
// Stop releases the device deterministically: no frames are emitted after
// Stop returns. Stop is idempotent.
//
// Implementations must never block indefinitely on a dead device: Start fails
// with [ErrDeviceUnavailable] if the device cannot be opened within a short
// timeout, and a stream terminates with [ErrDeviceDisconnected] if the device
// vanishes mid-capture.
type Source interface {
	// Start begins capture and returns the frame stream. The returned channel
	// is owned by the Source and closed when the stream ends. Calling Start
	// on an already-started source returns an error.
	Start(ctx context.Context, cfg DeviceConfig) (<-chan Frame, error)

	// Stop ends the stream and releases the device. Safe to call multiple
	// times; subsequent calls return nil.
	Stop() error

	// Err returns the terminal stream error after the frame channel closed:
	// nil for a clean Stop, [ErrDeviceDisconnected] (possibly wrapped) when
	// the device vanished.
	Err() error
}
