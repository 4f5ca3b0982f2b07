// Package transcribe runs utterances through a speech-to-text worker pool
// and releases transcripts strictly in utterance order.
//
// Several utterances may be in flight at once (a long one still processing
// while a short follow-up finishes first), so workers hand their results to a
// collector that buffers out-of-order completions and releases each
// transcript only once all earlier ones are out. A failed utterance is
// released in its slot with Err set rather than holding up the stream.
package transcribe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/auricle-ai/auricle/internal/segment"
	"github.com/auricle-ai/auricle/pkg/provider/stt"
)

// Transcript is the ordered output of the pool for one utterance.
type Transcript struct {
	// UtteranceID is the segmenter's sequence number for the source
	// utterance.
	UtteranceID uint64

	// Text is the recognised text. Empty when Err is set or when the
	// transcriber heard nothing.
	Text string

	// Confidence is the transcriber's confidence in [0, 1].
	Confidence float64

	// Continued carries the source utterance's continuation flag.
	Continued bool

	// Start is the capture timestamp of the source utterance.
	Start time.Duration

	// AudioDuration is the length of the source utterance audio.
	AudioDuration time.Duration

	// Err is non-nil when transcription of this utterance failed. The
	// utterance's slot in the order is still released.
	Err error
}

// Config tunes a Pool.
type Config struct {
	// Workers is the number of concurrent transcription workers. Values
	// below 1 are treated as 1.
	Workers int

	// QueueSize bounds the utterance queue. Submit blocks when it is full.
	// Values below 1 are treated as 1.
	QueueSize int
}

// Pool is the transcription worker pool. Create with New, start with Start,
// feed with Submit, and read ordered transcripts from Results. Close the
// input side with Shutdown; Results is closed once everything submitted has
// been released.
type Pool struct {
	tr  stt.Transcriber
	cfg Config

	queue   chan segment.Utterance
	results chan Transcript

	once     sync.Once
	shutOnce sync.Once
}

// New creates a Pool that transcribes with tr.
func New(tr stt.Transcriber, cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Pool{
		tr:      tr,
		cfg:     cfg,
		queue:   make(chan segment.Utterance, cfg.QueueSize),
		results: make(chan Transcript, cfg.QueueSize),
	}
}

// Results returns the ordered transcript stream. Closed after Shutdown once
// all submitted utterances have been released.
func (p *Pool) Results() <-chan Transcript {
	return p.results
}

// Submit queues an utterance for transcription. It blocks while the queue is
// full, propagating back-pressure to the caller, and returns ctx.Err() when
// the context ends first. Utterance IDs must arrive in ascending consecutive
// order — the segmenter guarantees this.
func (p *Pool) Submit(ctx context.Context, u segment.Utterance) error {
	select {
	case p.queue <- u:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("transcribe: submit: %w", ctx.Err())
	}
}

// Start launches the workers and the ordering collector. Must be called
// exactly once, before the first Submit. ctx cancellation aborts in-flight
// transcriptions.
func (p *Pool) Start(ctx context.Context) {
	p.once.Do(func() {
		collected := make(chan Transcript, p.cfg.Workers)

		var wg sync.WaitGroup
		wg.Add(p.cfg.Workers)
		for i := 0; i < p.cfg.Workers; i++ {
			go func() {
				defer wg.Done()
				p.worker(ctx, collected)
			}()
		}

		go func() {
			wg.Wait()
			close(collected)
		}()

		go p.collect(collected)
	})
}

// Shutdown closes the input queue. Pending utterances are still processed;
// Results closes when the last one is released. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.shutOnce.Do(func() {
		close(p.queue)
	})
}

// worker drains the queue, transcribing one utterance at a time.
func (p *Pool) worker(ctx context.Context, collected chan<- Transcript) {
	for u := range p.queue {
		t := Transcript{
			UtteranceID:   u.ID,
			Continued:     u.Continued,
			Start:         u.Start,
			AudioDuration: u.Duration(),
		}

		res, err := p.tr.Transcribe(ctx, u.Samples, u.SampleRate)
		if err != nil {
			t.Err = fmt.Errorf("transcribe: utterance %d: %w", u.ID, err)
		} else {
			t.Text = res.Text
			t.Confidence = res.Confidence
		}

		select {
		case collected <- t:
		case <-ctx.Done():
			return
		}
	}
}

// collect reorders worker output by utterance ID and releases transcripts
// consecutively, starting at 1 (the segmenter numbers utterances from 1).
func (p *Pool) collect(collected <-chan Transcript) {
	defer close(p.results)

	pending := make(map[uint64]Transcript)
	next := uint64(1)

	for t := range collected {
		pending[t.UtteranceID] = t

		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			p.results <- ready
			next++
		}
	}

	// Workers are gone; release whatever is left in ID order. This only
	// happens after a context cancellation left gaps in the sequence.
	for len(pending) > 0 {
		var min uint64
		for id := range pending {
			if min == 0 || id < min {
				min = id
			}
		}
		p.results <- pending[min]
		delete(pending, min)
	}
}
