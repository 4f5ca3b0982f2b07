package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/auricle-ai/auricle/pkg/history"
	"github.com/auricle-ai/auricle/pkg/history/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if AURICLE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("AURICLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AURICLE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema and
// registers cleanup to close it.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS exchanges"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, q := range []string{"reverse a linked list", "design a URL shortener", "tell me about a conflict"} {
		err := store.Record(ctx, history.Exchange{
			SessionID: "sess-1",
			Question:  q,
			Answer:    "answer " + q,
			AskedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := store.Record(ctx, history.Exchange{SessionID: "sess-2", Question: "other session"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Recent(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent: got %d exchanges, want 2", len(got))
	}
	// Oldest first, and only the newest two.
	if got[0].Question != "design a URL shortener" || got[1].Question != "tell me about a conflict" {
		t.Errorf("wrong exchanges or order: %q, %q", got[0].Question, got[1].Question)
	}
}

func TestSearchText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exchanges := []history.Exchange{
		{SessionID: "s1", InterviewType: "dsa", Question: "how do you balance a binary tree"},
		{SessionID: "s1", InterviewType: "system_design", Question: "design a message queue"},
		{SessionID: "s2", InterviewType: "dsa", Question: "find cycles in a binary tree"},
	}
	for _, ex := range exchanges {
		if err := store.Record(ctx, ex); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.SearchText(ctx, "binary tree", history.SearchOpts{SessionID: "s1"})
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("SearchText: got %d results, want 1", len(got))
	}
	if got[0].Question != "how do you balance a binary tree" {
		t.Errorf("unexpected result: %q", got[0].Question)
	}
}

func TestSearchSimilar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exchanges := []history.Exchange{
		{SessionID: "s1", Question: "north", Embedding: []float32{1, 0, 0, 0}},
		{SessionID: "s1", Question: "east", Embedding: []float32{0, 1, 0, 0}},
		{SessionID: "s1", Question: "no vector"},
	}
	for _, ex := range exchanges {
		if err := store.Record(ctx, ex); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.SearchSimilar(ctx, []float32{0.9, 0.1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("SearchSimilar: got %d results, want 2 (unembedded row must be excluded)", len(got))
	}
	if got[0].Exchange.Question != "north" {
		t.Errorf("most similar = %q, want %q", got[0].Exchange.Question, "north")
	}
	if got[0].Distance >= got[1].Distance {
		t.Errorf("distances not ascending: %v >= %v", got[0].Distance, got[1].Distance)
	}
}

func TestRecord_UpsertAnswer(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ex := history.Exchange{ID: "fixed-id", SessionID: "s1", Question: "q"}
	if err := store.Record(ctx, ex); err != nil {
		t.Fatalf("Record: %v", err)
	}
	ex.Answer = "final answer"
	ex.AnswerDuration = 3 * time.Second
	if err := store.Record(ctx, ex); err != nil {
		t.Fatalf("Record (upsert): %v", err)
	}

	got, err := store.Recent(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d exchanges, want 1", len(got))
	}
	if got[0].Answer != "final answer" || got[0].AnswerDuration != 3*time.Second {
		t.Errorf("upsert did not update answer: %+v", got[0])
	}
}
