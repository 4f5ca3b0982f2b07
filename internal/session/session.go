// Package session orchestrates one interview session: it owns the capture
// pipeline (source, ring, segmenter, transcription pool), accumulates final
// transcripts into questions, and hands sealed questions to the answer
// dispatcher — never more than one answer in flight.
package session

import (
	"time"

	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/pkg/history"
)

// State is the orchestrator's lifecycle state. Idle is the initial and only
// external resting state.
type State string

const (
	// StateIdle means no session is running.
	StateIdle State = "idle"

	// StateListening means audio is being captured and transcribed with no
	// answer in flight.
	StateListening State = "listening"

	// StateAwaitingAnswer means an answer is streaming; new speech
	// accumulates into the pending next-question buffer meanwhile.
	StateAwaitingAnswer State = "awaiting_answer"
)

// Session is one recording session's identity and ordered Q/A history.
// The orchestrator is its only writer.
type Session struct {
	ID            string
	InterviewType config.InterviewType
	StartedAt     time.Time
	Exchanges     []history.Exchange
}

// StartedEvent is the payload of [bus.KindSessionStarted].
type StartedEvent struct {
	SessionID     string
	InterviewType config.InterviewType
}

// StoppedEvent is the payload of [bus.KindSessionStopped].
type StoppedEvent struct {
	SessionID string

	// Reason is "requested" for a clean stop or "device failure".
	Reason string

	// Error carries the device failure cause, empty on a clean stop.
	Error string
}

// StateChangedEvent is the payload of [bus.KindStateChanged].
type StateChangedEvent struct {
	From State
	To   State
}

// UtteranceEvent is the payload of [bus.KindUtterance].
type UtteranceEvent struct {
	UtteranceID uint64
	Start       time.Duration
	Duration    time.Duration
	Continued   bool
}

// TranscriptEvent is the payload of [bus.KindTranscript].
type TranscriptEvent struct {
	UtteranceID uint64

	// Text is the normalized, term-corrected transcript.
	Text string

	// Raw is the transcriber output before post-processing.
	Raw string

	Confidence float64
	Continued  bool
}

// TranscriptFailedEvent is the payload of [bus.KindTranscriptFailed].
type TranscriptFailedEvent struct {
	UtteranceID uint64
	Error       string
}

// QuestionEvent is the payload of [bus.KindQuestion].
type QuestionEvent struct {
	QuestionID string
	Text       string
}

// FramesDroppedEvent is the payload of [bus.KindFramesDropped]: one event
// per overflow window, not per frame.
type FramesDroppedEvent struct {
	Count int
}

// DeviceErrorEvent is the payload of [bus.KindDeviceError]. Device errors
// are fatal to the session.
type DeviceErrorEvent struct {
	Error string
}
