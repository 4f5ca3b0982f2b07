// Package postgres provides a PostgreSQL-backed implementation of
// [history.Store].
//
// Exchanges live in a single table with a GIN full-text index over question
// and answer text plus an optional pgvector HNSW index for semantic question
// similarity. The pgvector extension must be available in the target
// database; [Migrate] installs it via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Record(ctx, ex)
//	recent, _ := store.Recent(ctx, sessionID, 10)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlExchanges returns the exchanges DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlExchanges(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS exchanges (
    id              TEXT         PRIMARY KEY,
    session_id      TEXT         NOT NULL,
    interview_type  TEXT         NOT NULL DEFAULT '',
    question        TEXT         NOT NULL,
    raw_transcript  TEXT         NOT NULL DEFAULT '',
    answer          TEXT         NOT NULL DEFAULT '',
    embedding       vector(%d),
    asked_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    answer_ns       BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_exchanges_session_id
    ON exchanges (session_id);

CREATE INDEX IF NOT EXISTS idx_exchanges_asked_at
    ON exchanges (asked_at);

CREATE INDEX IF NOT EXISTS idx_exchanges_session_asked
    ON exchanges (session_id, asked_at);

CREATE INDEX IF NOT EXISTS idx_exchanges_fts
    ON exchanges USING GIN (to_tsvector('english', question || ' ' || answer));

CREATE INDEX IF NOT EXISTS idx_exchanges_embedding
    ON exchanges USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent and safe to call on every application start.
//
// embeddingDimensions must match the configured embedding model (e.g., 1536
// for OpenAI text-embedding-3-small, 768 for nomic-embed-text). Changing it
// after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlExchanges(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
