package bus_test

import (
	"testing"
	"time"

	"github.com/auricle-ai/auricle/internal/bus"
)

func TestPublishDeliversInOrder(t *testing.T) {
	t.Parallel()

	b := bus.New()
	defer b.Close()

	sub := b.Subscribe(8)
	defer sub.Unsubscribe()

	for _, k := range []bus.Kind{bus.KindSessionStarted, bus.KindUtterance, bus.KindTranscript} {
		b.Publish(bus.Event{Kind: k, SessionID: "s1"})
	}

	for _, want := range []bus.Kind{bus.KindSessionStarted, bus.KindUtterance, bus.KindTranscript} {
		select {
		case ev := <-sub.C:
			if ev.Kind != want {
				t.Fatalf("got kind %q, want %q", ev.Kind, want)
			}
			if ev.Time.IsZero() {
				t.Error("event time not stamped")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	b := bus.New()
	defer b.Close()

	sub := b.Subscribe(2)
	defer sub.Unsubscribe()

	// Nobody reads sub: publishing far past the buffer must still return.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(bus.Event{Kind: bus.KindAnswerDelta})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if got := sub.Dropped(); got != 98 {
		t.Errorf("Dropped() = %d, want 98", got)
	}
}

func TestSlowSubscriberKeepsNewest(t *testing.T) {
	t.Parallel()

	b := bus.New()
	defer b.Close()

	sub := b.Subscribe(2)
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		b.Publish(bus.Event{Kind: bus.KindAnswerDelta, Payload: i})
	}

	// Oldest events were evicted; the buffer holds the last two.
	first := <-sub.C
	second := <-sub.C
	if first.Payload.(int) != 3 || second.Payload.(int) != 4 {
		t.Errorf("buffered payloads = %v, %v; want 3, 4", first.Payload, second.Payload)
	}
}

func TestSlowSubscriberDoesNotAffectOthers(t *testing.T) {
	t.Parallel()

	b := bus.New()
	defer b.Close()

	slow := b.Subscribe(1)
	defer slow.Unsubscribe()
	fast := b.Subscribe(16)
	defer fast.Unsubscribe()

	for i := 0; i < 10; i++ {
		b.Publish(bus.Event{Kind: bus.KindTranscript, Payload: i})
	}

	for i := 0; i < 10; i++ {
		select {
		case ev := <-fast.C:
			if ev.Payload.(int) != i {
				t.Fatalf("fast subscriber got %v at position %d", ev.Payload, i)
			}
		case <-time.After(time.Second):
			t.Fatal("fast subscriber missing events")
		}
	}
	if slow.Dropped() == 0 {
		t.Error("slow subscriber should have recorded drops")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := bus.New()
	defer b.Close()

	sub := b.Subscribe(4)
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(bus.Event{Kind: bus.KindTranscript})
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	t.Parallel()

	b := bus.New()
	s1 := b.Subscribe(4)
	s2 := b.Subscribe(4)

	b.Close()
	b.Close() // idempotent

	if _, ok := <-s1.C; ok {
		t.Error("s1 channel still open after Close")
	}
	if _, ok := <-s2.C; ok {
		t.Error("s2 channel still open after Close")
	}

	// Subscribing after close returns a closed channel.
	s3 := b.Subscribe(4)
	if _, ok := <-s3.C; ok {
		t.Error("post-Close subscription channel should be closed")
	}
}
