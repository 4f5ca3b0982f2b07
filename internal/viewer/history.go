package viewer

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/auricle-ai/auricle/pkg/history"
)

// defaultSearchLimit caps history search results when the client does not
// pass one.
const defaultSearchLimit = 20

// searchHit is one history search result. Distance is set only for semantic
// searches.
type searchHit struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id,omitempty"`
	InterviewType string    `json:"interview_type,omitempty"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer,omitempty"`
	AskedAt       time.Time `json:"asked_at"`
	Distance      *float64  `json:"distance,omitempty"`
}

type searchResults struct {
	Results []searchHit `json:"results"`
}

// handleHistorySearch serves GET /api/history/search. ?q= is required;
// ?semantic=true embeds the query and ranks by vector distance, otherwise a
// full-text search runs. ?session_id=, ?interview_type=, and ?limit= narrow
// the results.
func (s *Server) handleHistorySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("viewer: query parameter q is required"))
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("viewer: invalid limit %q", raw))
			return
		}
		limit = n
	}

	if r.URL.Query().Get("semantic") == "true" {
		s.searchSemantic(w, r, q, limit)
		return
	}

	exs, err := s.store.SearchText(r.Context(), q, history.SearchOpts{
		SessionID:     r.URL.Query().Get("session_id"),
		InterviewType: r.URL.Query().Get("interview_type"),
		Limit:         limit,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	out := searchResults{Results: make([]searchHit, 0, len(exs))}
	for _, ex := range exs {
		out.Results = append(out.Results, exchangeHit(ex, nil))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) searchSemantic(w http.ResponseWriter, r *http.Request, q string, limit int) {
	if s.embedder == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("viewer: semantic search requires an embeddings provider"))
		return
	}
	emb, err := s.embedder.Embed(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Errorf("viewer: embed query: %w", err))
		return
	}
	results, err := s.store.SearchSimilar(r.Context(), emb, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	out := searchResults{Results: make([]searchHit, 0, len(results))}
	for _, res := range results {
		d := res.Distance
		out.Results = append(out.Results, exchangeHit(res.Exchange, &d))
	}
	writeJSON(w, http.StatusOK, out)
}

func exchangeHit(ex history.Exchange, distance *float64) searchHit {
	return searchHit{
		ID:            ex.ID,
		SessionID:     ex.SessionID,
		InterviewType: ex.InterviewType,
		Question:      ex.Question,
		Answer:        ex.Answer,
		AskedAt:       ex.AskedAt,
		Distance:      distance,
	}
}
