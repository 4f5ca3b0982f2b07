package pulse_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/audio/pulse"
)

// fakeCapture writes a parec stand-in that streams endless zero-valued PCM.
func fakeCapture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parec")
	script := "#!/bin/sh\nexec cat /dev/zero\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write capture script: %v", err)
	}
	return path
}

func TestRestartAfterStop(t *testing.T) {
	t.Parallel()

	src := pulse.New(pulse.WithBinary(fakeCapture(t)))
	for i := 0; i < 2; i++ {
		frames, err := src.Start(context.Background(), audio.DeviceConfig{})
		if err != nil {
			t.Fatalf("Start #%d: %v", i+1, err)
		}
		f, ok := <-frames
		if !ok {
			t.Fatalf("Start #%d: stream closed before first frame", i+1)
		}
		// 30 ms of mono s16le at 16 kHz.
		if len(f.Data) != 960 {
			t.Fatalf("Start #%d: frame size = %d, want 960", i+1, len(f.Data))
		}
		if err := src.Stop(); err != nil {
			t.Fatalf("Stop #%d: %v", i+1, err)
		}
	}
}

func TestStartWhileRunning(t *testing.T) {
	t.Parallel()

	src := pulse.New(pulse.WithBinary(fakeCapture(t)))
	if _, err := src.Start(context.Background(), audio.DeviceConfig{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	if _, err := src.Start(context.Background(), audio.DeviceConfig{}); err == nil {
		t.Fatal("second Start on a running source did not fail")
	}
}

func TestStopWithoutDraining(t *testing.T) {
	t.Parallel()

	src := pulse.New(pulse.WithBinary(fakeCapture(t)))
	frames, err := src.Start(context.Background(), audio.DeviceConfig{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Take one frame, then abandon the stream and let the buffers fill.
	<-frames
	time.Sleep(50 * time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- src.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked while the consumer was not draining")
	}

	// The stream still terminates for anyone holding the channel.
	for range frames {
	}
}

func TestSpawnFailure(t *testing.T) {
	t.Parallel()

	src := pulse.New(pulse.WithBinary(filepath.Join(t.TempDir(), "missing")))
	_, err := src.Start(context.Background(), audio.DeviceConfig{})
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
}
