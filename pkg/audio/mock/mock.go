// Package mock provides an in-memory implementation of [audio.Source] for
// unit tests. The mock plays back a scripted frame sequence and records
// lifecycle calls so tests can assert on them.
//
// Typical usage:
//
//	src := &mock.Source{Frames: frames}
//	stream, _ := src.Start(ctx, audio.DeviceConfig{SampleRate: 16000})
//	for f := range stream { … }
package mock

import (
	"context"
	"sync"

	"github.com/auricle-ai/auricle/pkg/audio"
)

// Compile-time check that *Source satisfies [audio.Source].
var _ audio.Source = (*Source)(nil)

// Source is a scripted mock implementation of [audio.Source].
// Set the exported fields before use; inspect the Call* fields after.
type Source struct {
	mu sync.Mutex

	// Frames is the sequence emitted after Start. The stream closes once all
	// frames are delivered (or earlier on Stop).
	Frames []audio.Frame

	// StartError, when non-nil, is returned by Start.
	StartError error

	// StreamError is reported by Err after the stream ends. Use it to
	// simulate a device disconnect.
	StreamError error

	// HoldOpen keeps the stream open after the scripted frames are exhausted,
	// until Stop is called. Useful for tests that stop mid-capture.
	HoldOpen bool

	// CallCountStart and CallCountStop record lifecycle calls.
	CallCountStart int
	CallCountStop  int

	// StartConfig records the DeviceConfig passed to the last Start call.
	StartConfig audio.DeviceConfig

	stop    chan struct{}
	stopped bool
}

// Start implements [audio.Source]. It emits the scripted frames on a fresh
// channel from a background goroutine.
func (s *Source) Start(ctx context.Context, cfg audio.DeviceConfig) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCountStart++
	s.StartConfig = cfg
	if s.StartError != nil {
		return nil, s.StartError
	}

	s.stop = make(chan struct{})
	s.stopped = false
	out := make(chan audio.Frame)
	stop := s.stop
	frames := s.Frames
	hold := s.HoldOpen

	go func() {
		defer close(out)
		for _, f := range frames {
			select {
			case out <- f:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
		if hold {
			select {
			case <-stop:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// Stop implements [audio.Source]. It ends the stream; safe to call multiple
// times.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCountStop++
	if s.stop != nil && !s.stopped {
		close(s.stop)
		s.stopped = true
	}
	return nil
}

// Err implements [audio.Source].
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StreamError
}
