package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auricle-ai/auricle/internal/answer"
	"github.com/auricle-ai/auricle/internal/bus"
	"github.com/auricle-ai/auricle/internal/config"
	"github.com/auricle-ai/auricle/internal/segment"
	"github.com/auricle-ai/auricle/internal/transcribe"
	"github.com/auricle-ai/auricle/internal/transcript"
	"github.com/auricle-ai/auricle/pkg/audio"
	"github.com/auricle-ai/auricle/pkg/history"
	"github.com/auricle-ai/auricle/pkg/provider/stt"
)

// dropReportWindow throttles FramesDropped events: at most one per window.
const dropReportWindow = time.Second

// stopGrace bounds how long Stop waits for in-flight transcription before
// cancelling it.
const stopGrace = 5 * time.Second

// Options configures an [Orchestrator]. Source, Transcriber, Dispatcher, and
// Bus are required.
type Options struct {
	Source      audio.Source
	Transcriber stt.Transcriber
	Dispatcher  *answer.Dispatcher
	Bus         *bus.Bus
	Logger      *slog.Logger

	Audio    config.AudioConfig
	VAD      config.VADConfig
	Question config.QuestionConfig

	// Workers and QueueSize size the transcription pool.
	Workers   int
	QueueSize int

	// InterviewType is the initial interview category.
	InterviewType config.InterviewType

	// ContextExchanges caps how many recent exchanges are sent to the LLM
	// as follow-up context.
	ContextExchanges int
}

// Orchestrator runs the Idle → Listening → AwaitingAnswer state machine.
// All exported methods are safe for concurrent use and idempotent.
type Orchestrator struct {
	src  audio.Source
	tr   stt.Transcriber
	disp *answer.Dispatcher
	bus  *bus.Bus
	log  *slog.Logger

	audioCfg         config.AudioConfig
	workers          int
	queueSize        int
	contextExchanges int

	mu            sync.Mutex
	state         State
	sess          *Session
	interviewType config.InterviewType

	vad        config.VADConfig
	question   config.QuestionConfig
	normalizer *transcript.Normalizer
	detector   *transcript.Detector
	corrector  *transcript.Corrector

	// per-run state, valid while state != StateIdle
	runCtx    context.Context
	runCancel context.CancelFunc
	current   *answer.Answer
	// cancelPending records a CancelAnswer that arrived before dispatch
	// registered the answer handle; dispatch applies it on registration.
	cancelPending bool
	pending       pendingQuestion
	qTimer    *time.Timer
	timerGen  uint64

	wg sync.WaitGroup
}

// pendingQuestion accumulates final transcripts until a seal trigger fires.
type pendingQuestion struct {
	text    string
	raw     string
	firstAt time.Time

	// ripe means a seal trigger fired while an answer was in flight; the
	// question dispatches as soon as the answer is terminal.
	ripe bool
}

func (p *pendingQuestion) reset() {
	*p = pendingQuestion{}
}

// New creates an Orchestrator in [StateIdle].
func New(opts Options) (*Orchestrator, error) {
	if opts.Source == nil || opts.Transcriber == nil || opts.Dispatcher == nil || opts.Bus == nil {
		return nil, fmt.Errorf("session: source, transcriber, dispatcher, and bus are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 8
	}
	it := opts.InterviewType
	if !it.IsValid() {
		it = config.InterviewDSA
	}

	o := &Orchestrator{
		src:              opts.Source,
		tr:               opts.Transcriber,
		disp:             opts.Dispatcher,
		bus:              opts.Bus,
		log:              opts.Logger,
		audioCfg:         opts.Audio,
		workers:          opts.Workers,
		queueSize:        opts.QueueSize,
		contextExchanges: opts.ContextExchanges,
		state:            StateIdle,
		interviewType:    it,
		vad:              opts.VAD,
	}
	o.applyQuestionLocked(opts.Question)
	return o, nil
}

// applyQuestionLocked rebuilds the text-processing stages from q.
func (o *Orchestrator) applyQuestionLocked(q config.QuestionConfig) {
	o.question = q
	o.normalizer = transcript.NewNormalizer()

	var dopts []transcript.DetectorOption
	if q.MinWords > 0 {
		dopts = append(dopts, transcript.WithMinWords(q.MinWords))
	}
	if q.RequireQuestion != nil && !*q.RequireQuestion {
		dopts = append(dopts, transcript.WithoutQuestionShape())
	}
	o.detector = transcript.NewDetector(dopts...)
	o.corrector = transcript.NewCorrector(q.ExtraTerms)
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SessionID returns the running session's id, or "" when idle.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return ""
	}
	return o.sess.ID
}

// Exchanges returns a copy of the running session's Q/A history in question
// order. Empty when idle.
func (o *Orchestrator) Exchanges() []history.Exchange {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return nil
	}
	out := make([]history.Exchange, len(o.sess.Exchanges))
	copy(out, o.sess.Exchanges)
	return out
}

// Start opens the capture pipeline and moves Idle → Listening. Calling Start
// while a session is running is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return nil
	}

	seg, err := segment.New(segment.Config{
		SampleRate:       o.audioCfg.SampleRate,
		SpeechThreshold:  o.vad.SpeechThreshold,
		SilenceThreshold: o.vad.SilenceThreshold,
		GapMs:            o.vad.GapMs,
		MinSpeechMs:      o.vad.MinSpeechMs,
		MaxUtteranceMs:   o.vad.MaxUtteranceMs,
	})
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("session: start: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	frames, err := o.src.Start(runCtx, audio.DeviceConfig{
		Device:     o.audioCfg.Device,
		SampleRate: o.audioCfg.SampleRate,
		FrameMs:    o.audioCfg.FrameMs,
	})
	if err != nil {
		cancel()
		o.mu.Unlock()
		return fmt.Errorf("session: start capture: %w", err)
	}

	o.sess = &Session{
		ID:            uuid.NewString(),
		InterviewType: o.interviewType,
		StartedAt:     time.Now(),
	}
	o.runCtx = runCtx
	o.runCancel = cancel
	ring := audio.NewRing(o.audioCfg.RingFrames)
	pool := transcribe.New(o.tr, transcribe.Config{Workers: o.workers, QueueSize: o.queueSize})
	pool.Start(runCtx)
	o.pending.reset()
	o.state = StateListening
	sessID := o.sess.ID
	it := o.sess.InterviewType
	o.mu.Unlock()

	o.bus.Publish(bus.Event{Kind: bus.KindSessionStarted, SessionID: sessID,
		Payload: StartedEvent{SessionID: sessID, InterviewType: it}})
	o.bus.Publish(bus.Event{Kind: bus.KindStateChanged, SessionID: sessID,
		Payload: StateChangedEvent{From: StateIdle, To: StateListening}})

	o.wg.Add(3)
	go o.capture(sessID, frames, ring)
	go o.process(runCtx, sessID, seg, ring, pool)
	go o.results(sessID, pool)

	o.log.Info("session started", "session_id", sessID, "interview_type", string(it))
	return nil
}

// Stop ends the session and returns to Idle: capture stops, in-flight work
// is cancelled after a short drain, partial state is sealed. Idempotent.
func (o *Orchestrator) Stop() error {
	return o.stop("requested", nil)
}

func (o *Orchestrator) stop(reason string, cause error) error {
	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		return nil
	}
	from := o.state
	o.state = StateIdle
	o.timerGen++
	timer := o.qTimer
	o.qTimer = nil
	cancel := o.runCancel
	cur := o.current
	if cur == nil && from == StateAwaitingAnswer {
		o.cancelPending = true
	}
	sessID := o.sess.ID
	o.pending.reset()
	o.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if cur != nil {
		cur.Cancel()
	}
	o.src.Stop()

	// Let queued utterances finish transcribing, then pull the plug.
	grace := time.AfterFunc(stopGrace, cancel)
	o.wg.Wait()
	grace.Stop()
	cancel()

	if cause != nil {
		o.bus.Publish(bus.Event{Kind: bus.KindSessionFailed, SessionID: sessID,
			Payload: StoppedEvent{SessionID: sessID, Reason: reason, Error: cause.Error()}})
	}
	o.bus.Publish(bus.Event{Kind: bus.KindStateChanged, SessionID: sessID,
		Payload: StateChangedEvent{From: from, To: StateIdle}})
	ev := StoppedEvent{SessionID: sessID, Reason: reason}
	if cause != nil {
		ev.Error = cause.Error()
	}
	o.bus.Publish(bus.Event{Kind: bus.KindSessionStopped, SessionID: sessID, Payload: ev})

	o.log.Info("session stopped", "session_id", sessID, "reason", reason)
	return nil
}

// SetInterviewType switches the interview category for subsequent questions.
func (o *Orchestrator) SetInterviewType(t config.InterviewType) error {
	if !t.IsValid() {
		return fmt.Errorf("session: invalid interview type %q", t)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.interviewType = t
	if o.sess != nil {
		o.sess.InterviewType = t
	}
	return nil
}

// CancelAnswer cancels the in-flight answer, if any. Already-streamed text
// is retained. No-op otherwise.
func (o *Orchestrator) CancelAnswer() {
	o.mu.Lock()
	cur := o.current
	if cur == nil && o.state == StateAwaitingAnswer {
		o.cancelPending = true
	}
	o.mu.Unlock()
	if cur != nil {
		cur.Cancel()
	}
}

// ApplyVAD stores new segmenter tuning; it takes effect at the next Start.
func (o *Orchestrator) ApplyVAD(v config.VADConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.vad = v
}

// ApplyQuestion applies new question detection tuning immediately.
func (o *Orchestrator) ApplyQuestion(q config.QuestionConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.applyQuestionLocked(q)
}

// capture pumps source frames into the ring at device cadence. It never
// blocks on downstream; overflow drops are reported at most once per window.
func (o *Orchestrator) capture(sessID string, frames <-chan audio.Frame, ring *audio.Ring) {
	defer o.wg.Done()

	var pendingDrops int
	var lastReport time.Time

	for f := range frames {
		if d := ring.Push(f); d > 0 {
			pendingDrops += d
			if time.Since(lastReport) >= dropReportWindow {
				o.bus.Publish(bus.Event{Kind: bus.KindFramesDropped, SessionID: sessID,
					Payload: FramesDroppedEvent{Count: pendingDrops}})
				o.log.Warn("capture ring overflow", "session_id", sessID, "dropped", pendingDrops)
				pendingDrops = 0
				lastReport = time.Now()
			}
		}
	}
	if pendingDrops > 0 {
		o.bus.Publish(bus.Event{Kind: bus.KindFramesDropped, SessionID: sessID,
			Payload: FramesDroppedEvent{Count: pendingDrops}})
	}
	ring.Close()

	if err := o.src.Err(); err != nil {
		o.log.Error("capture device failed", "session_id", sessID, "error", err)
		o.bus.Publish(bus.Event{Kind: bus.KindDeviceError, SessionID: sessID,
			Payload: DeviceErrorEvent{Error: err.Error()}})
		// Tear down from outside the pipeline goroutines; stop waits on wg.
		go o.stop("device failure", err)
	}
}

// process drains the ring through the segmenter and submits sealed
// utterances for transcription. On shutdown it flushes the in-progress
// utterance so speech up to the stop point is still transcribed.
func (o *Orchestrator) process(ctx context.Context, sessID string, seg *segment.Segmenter, ring *audio.Ring, pool *transcribe.Pool) {
	defer o.wg.Done()
	defer pool.Shutdown()

	for {
		f, ok := ring.Pop()
		if !ok {
			break
		}
		us, err := seg.Push(f)
		if err != nil {
			o.log.Warn("segmenter rejected frame", "session_id", sessID, "error", err)
			continue
		}
		o.submitUtterances(ctx, sessID, pool, us)
	}

	if u := seg.Flush(); u != nil {
		o.submitUtterances(ctx, sessID, pool, []segment.Utterance{*u})
	}
}

func (o *Orchestrator) submitUtterances(ctx context.Context, sessID string, pool *transcribe.Pool, us []segment.Utterance) {
	for _, u := range us {
		o.bus.Publish(bus.Event{Kind: bus.KindUtterance, SessionID: sessID, Payload: UtteranceEvent{
			UtteranceID: u.ID,
			Start:       u.Start,
			Duration:    u.Duration(),
			Continued:   u.Continued,
		}})
		if err := pool.Submit(ctx, u); err != nil {
			o.log.Warn("utterance dropped", "session_id", sessID, "utterance_id", u.ID, "error", err)
		}
	}
}

// results consumes in-order transcripts from the pool.
func (o *Orchestrator) results(sessID string, pool *transcribe.Pool) {
	defer o.wg.Done()
	for t := range pool.Results() {
		o.handleTranscript(sessID, t)
	}
}

func (o *Orchestrator) handleTranscript(sessID string, t transcribe.Transcript) {
	if t.Err != nil {
		o.log.Warn("transcription failed", "session_id", sessID, "utterance_id", t.UtteranceID, "error", t.Err)
		o.bus.Publish(bus.Event{Kind: bus.KindTranscriptFailed, SessionID: sessID,
			Payload: TranscriptFailedEvent{UtteranceID: t.UtteranceID, Error: t.Err.Error()}})
		return
	}

	o.mu.Lock()
	text := o.normalizer.Normalize(t.Text)
	text, corrections := o.corrector.Correct(text)
	for _, c := range corrections {
		o.log.Debug("term corrected", "session_id", sessID,
			"from", c.Original, "to", c.Corrected, "confidence", c.Confidence)
	}

	o.bus.Publish(bus.Event{Kind: bus.KindTranscript, SessionID: sessID, Payload: TranscriptEvent{
		UtteranceID: t.UtteranceID,
		Text:        text,
		Raw:         t.Text,
		Confidence:  t.Confidence,
		Continued:   t.Continued,
	}})

	if o.state == StateIdle || strings.TrimSpace(text) == "" {
		o.mu.Unlock()
		return
	}

	// Accumulate into the pending question buffer.
	if o.pending.text == "" {
		o.pending.firstAt = time.Now()
		o.pending.text = text
		o.pending.raw = t.Text
	} else {
		o.pending.text += " " + text
		o.pending.raw += " " + t.Text
	}

	if o.detector.Complete(o.pending.text) {
		o.sealLocked()
	} else {
		o.armTimerLocked()
	}
	o.mu.Unlock()
}

// armTimerLocked (re)starts the question timeout for the pending buffer.
func (o *Orchestrator) armTimerLocked() {
	if o.qTimer != nil {
		o.qTimer.Stop()
	}
	o.timerGen++
	gen := o.timerGen
	timeout := time.Duration(o.question.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	o.qTimer = time.AfterFunc(timeout, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if gen != o.timerGen || o.state == StateIdle {
			return
		}
		o.sealLocked()
	})
}

// sealLocked evaluates the pending buffer against the question gate and,
// when the session is Listening, dispatches it. While AwaitingAnswer the
// buffer is only marked ripe; dispatch happens when the answer is terminal.
func (o *Orchestrator) sealLocked() {
	o.timerGen++
	if o.qTimer != nil {
		o.qTimer.Stop()
		o.qTimer = nil
	}

	text := strings.TrimSpace(o.pending.text)
	if text == "" {
		return
	}
	if !o.detector.IsQuestion(text) {
		o.log.Debug("pending buffer discarded, not a question", "session_id", o.sess.ID, "text", text)
		o.pending.reset()
		return
	}

	if o.state == StateAwaitingAnswer {
		o.pending.ripe = true
		return
	}

	q := answer.Question{
		ID:            uuid.NewString(),
		SessionID:     o.sess.ID,
		Text:          o.detector.Extract(text),
		RawTranscript: o.pending.raw,
		InterviewType: o.sess.InterviewType,
		AskedAt:       o.pending.firstAt,
	}
	o.pending.reset()

	o.sess.Exchanges = append(o.sess.Exchanges, history.Exchange{
		ID:            q.ID,
		SessionID:     q.SessionID,
		InterviewType: string(q.InterviewType),
		Question:      q.Text,
		RawTranscript: q.RawTranscript,
		AskedAt:       q.AskedAt,
	})
	exIdx := len(o.sess.Exchanges) - 1

	hist := o.contextLocked()
	o.state = StateAwaitingAnswer
	ctx := o.runCtx

	o.bus.Publish(bus.Event{Kind: bus.KindQuestion, SessionID: q.SessionID,
		Payload: QuestionEvent{QuestionID: q.ID, Text: q.Text}})
	o.bus.Publish(bus.Event{Kind: bus.KindStateChanged, SessionID: q.SessionID,
		Payload: StateChangedEvent{From: StateListening, To: StateAwaitingAnswer}})

	go o.dispatch(ctx, q, hist, exIdx)
}

// contextLocked returns the most recent answered exchanges, oldest first.
func (o *Orchestrator) contextLocked() []history.Exchange {
	if o.contextExchanges <= 0 {
		return nil
	}
	exs := o.sess.Exchanges
	start := len(exs) - o.contextExchanges
	if start < 0 {
		start = 0
	}
	out := make([]history.Exchange, len(exs)-start)
	copy(out, exs[start:])
	return out
}

// dispatch streams one answer and returns the session to Listening when it
// is terminal. A ripe pending buffer re-seals immediately.
func (o *Orchestrator) dispatch(ctx context.Context, q answer.Question, hist []history.Exchange, exIdx int) {
	a, err := o.disp.Ask(ctx, q, hist)
	if err != nil {
		o.log.Error("answer dispatch failed", "session_id", q.SessionID, "question_id", q.ID, "error", err)
		o.bus.Publish(bus.Event{Kind: bus.KindAnswerDone, SessionID: q.SessionID, Payload: answer.DoneEvent{
			QuestionID: q.ID,
			Status:     answer.StatusFailed,
			Error:      err.Error(),
		}})
		o.answerTerminal(q, exIdx, "", 0)
		return
	}

	o.mu.Lock()
	o.current = a
	cancelled := o.cancelPending
	o.cancelPending = false
	o.mu.Unlock()
	if cancelled {
		a.Cancel()
	}

	<-a.Done()
	o.answerTerminal(q, exIdx, a.Text(), a.Duration())
}

// answerTerminal records the answer outcome and resumes listening.
func (o *Orchestrator) answerTerminal(q answer.Question, exIdx int, text string, dur time.Duration) {
	o.mu.Lock()
	o.current = nil
	o.cancelPending = false
	if o.sess != nil && o.sess.ID == q.SessionID && exIdx < len(o.sess.Exchanges) {
		o.sess.Exchanges[exIdx].Answer = text
		o.sess.Exchanges[exIdx].AnswerDuration = dur
	}
	if o.state != StateAwaitingAnswer {
		o.mu.Unlock()
		return
	}
	o.state = StateListening
	sessID := q.SessionID
	ripe := o.pending.ripe
	if ripe {
		o.pending.ripe = false
	}
	o.bus.Publish(bus.Event{Kind: bus.KindStateChanged, SessionID: sessID,
		Payload: StateChangedEvent{From: StateAwaitingAnswer, To: StateListening}})
	if ripe {
		o.sealLocked()
	}
	o.mu.Unlock()
}
