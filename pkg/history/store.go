// Package history defines the Store interface for persisting interview
// question/answer exchanges across sessions.
//
// The orchestrator records every completed exchange; later questions can then
// be answered with context from earlier ones, either by recency (the last few
// exchanges of the current session) or by similarity (full-text or semantic
// search over everything the candidate has been asked before).
//
// Implementations must be safe for concurrent use.
package history

import (
	"context"
	"time"
)

// Exchange is one question/answer pair recorded during an interview session.
type Exchange struct {
	// ID uniquely identifies the exchange. Assigned by the store on Record
	// when empty.
	ID string

	// SessionID identifies the interview session this exchange belongs to.
	SessionID string

	// InterviewType is the session's interview category at the time of the
	// exchange ("dsa", "system_design", "behavioral").
	InterviewType string

	// Question is the normalized question text extracted from the transcript.
	Question string

	// RawTranscript is the unnormalized transcript the question was detected
	// in. Useful for debugging question extraction.
	RawTranscript string

	// Answer is the full answer text. Empty when the answer failed or was
	// cancelled before any content arrived.
	Answer string

	// Embedding is an optional dense vector for the question, used for
	// semantic similarity search. Nil when no embeddings provider is
	// configured.
	Embedding []float32

	// AskedAt is when the question was detected.
	AskedAt time.Time

	// AnswerDuration is how long the answer stream took from dispatch to
	// completion.
	AnswerDuration time.Duration
}

// SearchOpts narrows a text search over recorded exchanges.
type SearchOpts struct {
	// SessionID limits results to one session when non-empty.
	SessionID string

	// InterviewType limits results to one interview category when non-empty.
	InterviewType string

	// After and Before bound AskedAt when non-zero.
	After  time.Time
	Before time.Time

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// SimilarResult pairs an exchange with its cosine distance from the query
// embedding. Smaller distance means more similar.
type SimilarResult struct {
	Exchange Exchange
	Distance float64
}

// Store persists and retrieves interview exchanges.
type Store interface {
	// Record appends an exchange. When ex.ID is empty the store assigns one
	// and the assigned value is not reported back; pre-assign an ID if the
	// caller needs it.
	Record(ctx context.Context, ex Exchange) error

	// Recent returns the most recent n exchanges for sessionID, ordered
	// oldest first so they can be fed to an LLM as conversation history.
	Recent(ctx context.Context, sessionID string, n int) ([]Exchange, error)

	// SearchText performs a full-text search over question and answer text.
	// Results are ordered chronologically.
	SearchText(ctx context.Context, query string, opts SearchOpts) ([]Exchange, error)

	// SearchSimilar returns the topK exchanges whose question embeddings are
	// closest to embedding, most similar first. Exchanges recorded without an
	// embedding are never returned.
	SearchSimilar(ctx context.Context, embedding []float32, topK int) ([]SimilarResult, error)
}
