// Package pulse implements [audio.Source] for PulseAudio/PipeWire systems by
// spawning a parec subprocess attached to a monitor source. Capturing from a
// monitor source records what the machine is playing — the audio of a video
// call — rather than the microphone.
//
// parec writes raw s16le PCM to stdout at the requested rate; the Source
// slices that byte stream into fixed-size frames with monotonic timestamps.
// No CGO and no audio-server client library is required, which keeps the
// capture path trivial to deploy next to whatever audio stack the host runs.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/auricle-ai/auricle/pkg/audio"
)

const (
	// openTimeout bounds how long Start waits for the first byte from parec
	// before declaring the device unavailable.
	openTimeout = 3 * time.Second

	defaultSampleRate = 16000
	defaultFrameMs    = 30

	// frameChanDepth absorbs short consumer stalls without touching the
	// real-time read loop. Sustained backpressure is the Ring's job.
	frameChanDepth = 16
)

// Compile-time check that *Source satisfies [audio.Source].
var _ audio.Source = (*Source)(nil)

// Source captures system audio through a parec subprocess. A stopped Source
// can be started again; each Start spawns a fresh process.
type Source struct {
	binary string

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	frames   chan audio.Frame
	quit     chan struct{}
	running  bool
	stopping bool
	err      error

	wg sync.WaitGroup
}

// Option configures a [Source] during construction.
type Option func(*Source)

// WithBinary overrides the capture binary (default "parec"). Useful for tests
// and for hosts that ship pw-record with parec-compatible flags.
func WithBinary(path string) Option {
	return func(s *Source) { s.binary = path }
}

// New creates an unstarted Source.
func New(opts ...Option) *Source {
	s := &Source{binary: "parec"}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start spawns parec against the configured monitor source and begins
// streaming frames. It fails with [audio.ErrDeviceUnavailable] if the process
// cannot be spawned or produces no audio within the open timeout.
func (s *Source) Start(ctx context.Context, cfg audio.DeviceConfig) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, errors.New("pulse: source already started")
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	frameMs := cfg.FrameMs
	if frameMs <= 0 {
		frameMs = defaultFrameMs
	}

	args := []string{
		"--rate", strconv.Itoa(rate),
		"--channels", "1",
		"--format", "s16le",
		"--raw",
	}
	if cfg.Device != "" {
		args = append(args, "--device", cfg.Device)
	}

	cmd := exec.CommandContext(ctx, s.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pulse: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: spawn %s: %v", audio.ErrDeviceUnavailable, s.binary, err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.frames = make(chan audio.Frame, frameChanDepth)
	s.quit = make(chan struct{})
	s.running = true
	s.stopping = false
	s.err = nil

	frameBytes := rate * frameMs / 1000 * 2 // mono s16le

	s.wg.Add(1)
	go s.readLoop(stdout, s.frames, s.quit, rate, frameBytes)

	// Wait for the first frame before handing the stream to the caller, so a
	// dead or misnamed device surfaces as an immediate error rather than a
	// silent stream.
	select {
	case first, ok := <-s.frames:
		if !ok {
			s.teardownLocked()
			return nil, fmt.Errorf("%w: %s produced no audio", audio.ErrDeviceUnavailable, s.binary)
		}
		out := make(chan audio.Frame, frameChanDepth)
		s.wg.Add(1)
		go s.forward(first, s.frames, out, s.quit)
		return out, nil

	case <-time.After(openTimeout):
		s.teardownLocked()
		return nil, fmt.Errorf("%w: no audio within %v", audio.ErrDeviceUnavailable, openTimeout)

	case <-ctx.Done():
		s.teardownLocked()
		return nil, ctx.Err()
	}
}

// readLoop slices parec stdout into frames. Runs until EOF or Stop.
func (s *Source) readLoop(r io.Reader, frames chan<- audio.Frame, quit <-chan struct{}, rate, frameBytes int) {
	defer s.wg.Done()
	defer close(frames)

	var elapsed time.Duration
	frameDur := time.Duration(frameBytes/2) * time.Second / time.Duration(rate)
	buf := make([]byte, frameBytes)

	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			select {
			case <-quit:
				// Shutdown in progress; the read error is expected.
			default:
				s.mu.Lock()
				s.err = fmt.Errorf("%w: %v", audio.ErrDeviceDisconnected, err)
				s.mu.Unlock()
				slog.Warn("pulse capture ended unexpectedly", "error", err)
			}
			return
		}

		data := make([]byte, frameBytes)
		copy(data, buf)
		select {
		case frames <- audio.Frame{Data: data, SampleRate: rate, Timestamp: elapsed}:
		case <-quit:
			return
		}
		elapsed += frameDur
	}
}

// forward replays the buffered first frame and then relays the internal
// stream to the caller-facing channel. It never blocks past Stop: a consumer
// that stops draining cannot wedge shutdown.
func (s *Source) forward(first audio.Frame, in <-chan audio.Frame, out chan<- audio.Frame, quit <-chan struct{}) {
	defer s.wg.Done()
	defer close(out)

	select {
	case out <- first:
	case <-quit:
		return
	}
	for {
		select {
		case f, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- f:
			case <-quit:
				return
			}
		case <-quit:
			return
		}
	}
}

// Stop terminates the parec process and ends the frame stream. No frames are
// emitted after Stop returns. Safe to call multiple times; a later Start
// spawns a new capture process.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	quit := s.quit
	cmd := s.cmd
	stdout := s.stdout
	s.mu.Unlock()

	close(quit)
	if stdout != nil {
		stdout.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Err returns the terminal stream error, if any. Valid after the frame
// channel has closed.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// teardownLocked kills the subprocess during a failed Start and leaves the
// Source ready for another attempt. Caller must hold s.mu.
func (s *Source) teardownLocked() {
	s.stopping = true
	s.running = false
	close(s.quit)
	if s.stdout != nil {
		s.stdout.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
}
