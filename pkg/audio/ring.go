package audio

import "sync"

// Ring is a bounded frame buffer between the capture goroutine and the
// processing stage. It follows a single-writer/single-reader discipline:
// exactly one goroutine calls Push, exactly one calls Pop.
//
// Push never blocks. When the buffer is full the oldest frame is evicted to
// make room, and the eviction is counted so the producer can surface a
// frames-dropped diagnostic. Bounded staleness is preferred over stalling the
// real-time capture thread.
type Ring struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frames []Frame
	head   int // index of oldest frame
	count  int
	closed bool
}

// NewRing creates a Ring holding at most capacity frames.
// capacity must be at least 1; smaller values are clamped.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring{frames: make([]Frame, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Push appends f to the ring, evicting the oldest frame if the ring is full.
// It returns the number of frames evicted by this call (0 or 1).
// Push on a closed ring is a no-op returning 0.
func (r *Ring) Push(f Frame) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0
	}

	dropped := 0
	if r.count == len(r.frames) {
		// Evict the oldest frame.
		r.frames[r.head] = Frame{}
		r.head = (r.head + 1) % len(r.frames)
		r.count--
		dropped = 1
	}

	tail := (r.head + r.count) % len(r.frames)
	r.frames[tail] = f
	r.count++
	r.cond.Signal()
	return dropped
}

// Pop removes and returns the oldest frame, blocking until a frame is
// available or the ring is closed. The second return value is false only when
// the ring is closed and drained.
func (r *Ring) Pop() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.count == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.count == 0 {
		return Frame{}, false
	}

	f := r.frames[r.head]
	r.frames[r.head] = Frame{}
	r.head = (r.head + 1) % len(r.frames)
	r.count--
	return f, true
}

// TryPop removes and returns the oldest frame without blocking.
// The second return value is false when the ring is currently empty.
func (r *Ring) TryPop() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return Frame{}, false
	}
	f := r.frames[r.head]
	r.frames[r.head] = Frame{}
	r.head = (r.head + 1) % len(r.frames)
	r.count--
	return f, true
}

// Len returns the number of frames currently buffered.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close marks the ring closed and wakes any blocked Pop. Frames already
// buffered remain readable; Push becomes a no-op. Safe to call multiple times.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cond.Broadcast()
}
