package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/auricle-ai/auricle/pkg/history"
)

// Compile-time interface check.
var _ history.Store = (*Store)(nil)

// Store is the PostgreSQL-backed exchange store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so vector columns can
	// be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Record implements [history.Store].
func (s *Store) Record(ctx context.Context, ex history.Exchange) error {
	const q = `
		INSERT INTO exchanges
		    (id, session_id, interview_type, question, raw_transcript, answer, embedding, asked_at, answer_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
		    answer    = EXCLUDED.answer,
		    answer_ns = EXCLUDED.answer_ns`

	id := ex.ID
	if id == "" {
		id = uuid.NewString()
	}
	askedAt := ex.AskedAt
	if askedAt.IsZero() {
		askedAt = time.Now()
	}

	var vec any
	if ex.Embedding != nil {
		vec = pgvector.NewVector(ex.Embedding)
	}

	_, err := s.pool.Exec(ctx, q,
		id,
		ex.SessionID,
		ex.InterviewType,
		ex.Question,
		ex.RawTranscript,
		ex.Answer,
		vec,
		askedAt,
		ex.AnswerDuration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("history store: record: %w", err)
	}
	return nil
}

// Recent implements [history.Store]. It selects the n newest exchanges for
// sessionID and returns them oldest first.
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]history.Exchange, error) {
	const q = `
		SELECT id, session_id, interview_type, question, raw_transcript, answer, asked_at, answer_ns
		FROM   exchanges
		WHERE  session_id = $1
		ORDER  BY asked_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}
	exchanges, err := collectExchanges(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

// SearchText implements [history.Store]. It performs a PostgreSQL full-text
// search over question and answer text; the query goes through
// plainto_tsquery so no operator syntax is required.
func (s *Store) SearchText(ctx context.Context, query string, opts history.SearchOpts) ([]history.Exchange, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', question || ' ' || answer) @@ plainto_tsquery('english', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if opts.InterviewType != "" {
		conditions = append(conditions, "interview_type = "+next(opts.InterviewType))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "asked_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "asked_at < "+next(opts.Before))
	}

	q := "SELECT id, session_id, interview_type, question, raw_transcript, answer, asked_at, answer_ns\n" +
		"FROM   exchanges\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY asked_at"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: search text: %w", err)
	}
	return collectExchanges(rows)
}

// SearchSimilar implements [history.Store]. It finds the topK exchanges whose
// question embeddings are closest (cosine distance) to the supplied vector.
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, topK int) ([]history.SimilarResult, error) {
	const q = `
		SELECT id, session_id, interview_type, question, raw_transcript, answer, asked_at, answer_ns,
		       embedding <=> $1 AS distance
		FROM   exchanges
		WHERE  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("history store: search similar: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.SimilarResult, error) {
		var (
			sr       history.SimilarResult
			answerNS int64
		)
		if err := row.Scan(
			&sr.Exchange.ID,
			&sr.Exchange.SessionID,
			&sr.Exchange.InterviewType,
			&sr.Exchange.Question,
			&sr.Exchange.RawTranscript,
			&sr.Exchange.Answer,
			&sr.Exchange.AskedAt,
			&answerNS,
			&sr.Distance,
		); err != nil {
			return history.SimilarResult{}, err
		}
		sr.Exchange.AnswerDuration = time.Duration(answerNS)
		return sr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if results == nil {
		results = []history.SimilarResult{}
	}
	return results, nil
}

// collectExchanges scans pgx rows into a slice of Exchange values.
func collectExchanges(rows pgx.Rows) ([]history.Exchange, error) {
	exchanges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Exchange, error) {
		var (
			e        history.Exchange
			answerNS int64
		)
		if err := row.Scan(
			&e.ID,
			&e.SessionID,
			&e.InterviewType,
			&e.Question,
			&e.RawTranscript,
			&e.Answer,
			&e.AskedAt,
			&answerNS,
		); err != nil {
			return history.Exchange{}, err
		}
		e.AnswerDuration = time.Duration(answerNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if exchanges == nil {
		exchanges = []history.Exchange{}
	}
	return exchanges, nil
}
