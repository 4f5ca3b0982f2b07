package observe

import (
	"context"
	"time"

	"github.com/auricle-ai/auricle/internal/answer"
	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/session"
)

// Recorder turns pipeline events into metric observations. It subscribes to
// the event bus like any other collaborator, so the pipeline itself carries
// no metrics code.
type Recorder struct {
	m *Metrics

	// sealedAt remembers when each utterance was sealed so the transcript
	// event can be turned into a stage latency.
	sealedAt map[uint64]time.Time
}

// NewRecorder returns a Recorder recording into m.
func NewRecorder(m *Metrics) *Recorder {
	return &Recorder{m: m, sealedAt: make(map[uint64]time.Time)}
}

// Run consumes events from sub until the subscription closes or ctx is
// cancelled. Call it from its own goroutine.
func (r *Recorder) Run(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev bus.Event) {
	switch ev.Kind {
	case bus.KindSessionStarted:
		r.m.ActiveSessions.Add(ctx, 1)

	case bus.KindSessionStopped:
		r.m.ActiveSessions.Add(ctx, -1)
		clear(r.sealedAt)

	case bus.KindUtterance:
		r.m.Utterances.Add(ctx, 1)
		if p, ok := ev.Payload.(session.UtteranceEvent); ok {
			r.sealedAt[p.UtteranceID] = ev.Time
		}

	case bus.KindTranscript:
		r.m.RecordTranscript(ctx, "ok")
		if p, ok := ev.Payload.(session.TranscriptEvent); ok {
			if sealed, seen := r.sealedAt[p.UtteranceID]; seen {
				r.m.TranscriptionDuration.Record(ctx, ev.Time.Sub(sealed).Seconds())
				delete(r.sealedAt, p.UtteranceID)
			}
		}

	case bus.KindTranscriptFailed:
		r.m.RecordTranscript(ctx, "failed")
		if p, ok := ev.Payload.(session.TranscriptFailedEvent); ok {
			delete(r.sealedAt, p.UtteranceID)
		}
		r.m.RecordProviderError(ctx, "transcriber", "stt")

	case bus.KindQuestion:
		r.m.Questions.Add(ctx, 1)

	case bus.KindAnswerDone:
		if p, ok := ev.Payload.(answer.DoneEvent); ok {
			r.m.RecordAnswer(ctx, string(p.Status))
			r.m.AnswerDuration.Record(ctx, p.Duration.Seconds())
			if p.Status == answer.StatusFailed {
				r.m.RecordProviderError(ctx, "answerer", "llm")
			}
		}

	case bus.KindFramesDropped:
		if p, ok := ev.Payload.(session.FramesDroppedEvent); ok {
			r.m.FramesDropped.Add(ctx, int64(p.Count))
		}

	case bus.KindDeviceError:
		r.m.RecordProviderError(ctx, "audio", "capture")
	}
}
