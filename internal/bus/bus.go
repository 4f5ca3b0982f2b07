// Package bus provides the in-process event stream that decouples the
// session pipeline from its observers (the viewer server, the history
// recorder, logging).
//
// Publishing never blocks: each subscriber has a bounded buffer and a slow
// subscriber loses its oldest events rather than stalling the audio path. A
// per-subscriber drop counter records how many events were discarded.
package bus

import (
	"sync"
	"time"
)

// Kind identifies the type of an event.
type Kind string

const (
	// KindSessionStarted fires when a session transitions out of Idle.
	KindSessionStarted Kind = "session.started"

	// KindSessionStopped fires when a session returns to Idle, whether by
	// request or by a fatal device error.
	KindSessionStopped Kind = "session.stopped"

	// KindSessionFailed fires before KindSessionStopped when a fatal device
	// error, not a request, ended the session.
	KindSessionFailed Kind = "session.failed"

	// KindStateChanged fires on every orchestrator state transition.
	KindStateChanged Kind = "state.changed"

	// KindUtterance fires when the segmenter closes a speech utterance.
	KindUtterance Kind = "utterance"

	// KindTranscript fires when a final transcript is released in order.
	KindTranscript Kind = "transcript"

	// KindTranscriptFailed fires when transcription of one utterance failed.
	// The pipeline continues with the next utterance.
	KindTranscriptFailed Kind = "transcript.failed"

	// KindQuestion fires when a final transcript is classified as a question
	// and an answer is (or will be) dispatched.
	KindQuestion Kind = "question"

	// KindAnswerStarted fires when an answer stream is dispatched.
	KindAnswerStarted Kind = "answer.started"

	// KindAnswerDelta fires for each streamed answer fragment.
	KindAnswerDelta Kind = "answer.delta"

	// KindAnswerDone fires when an answer finishes: completed, failed, or
	// cancelled (see the payload's Status).
	KindAnswerDone Kind = "answer.done"

	// KindFramesDropped fires once per overflow window when the capture ring
	// discarded frames.
	KindFramesDropped Kind = "frames.dropped"

	// KindDeviceError fires when the audio device fails. Fatal to the
	// session.
	KindDeviceError Kind = "device.error"
)

// Event is a single pipeline event. Payload holds a kind-specific value
// (e.g., session.TranscriptEvent); subscribers type-switch on it.
type Event struct {
	Kind      Kind
	SessionID string
	Time      time.Time
	Payload   any
}

// Subscription is a handle to a subscriber's event channel.
type Subscription struct {
	bus *Bus
	id  int

	// C delivers events in publish order. Closed by Unsubscribe or when the
	// bus is closed.
	C <-chan Event

	ch chan Event

	mu      sync.Mutex
	dropped uint64
}

// Dropped returns how many events were discarded because this subscriber's
// buffer was full.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Bus fans out events to subscribers. Safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*Subscription
	nextID int
	closed bool
}

// New returns a ready-to-use Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe registers a new subscriber with a buffer of size events.
// A size below 1 is treated as 1.
func (b *Bus) Subscribe(size int) *Subscription {
	if size < 1 {
		size = 1
	}
	ch := make(chan Event, size)

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{bus: b, id: b.nextID, C: ch, ch: ch}
	b.nextID++
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers ev to every subscriber without blocking. When a
// subscriber's buffer is full, its oldest buffered event is discarded to make
// room and its drop counter is incremented.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		for {
			select {
			case sub.ch <- ev:
			default:
				// Buffer full: evict the oldest event and retry.
				select {
				case <-sub.ch:
					sub.mu.Lock()
					sub.dropped++
					sub.mu.Unlock()
				default:
				}
				continue
			}
			break
		}
	}
}

// Close closes every subscriber channel and rejects further publishes.
// Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}
