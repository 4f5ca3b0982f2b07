// Package mock provides an in-memory test double for [history.Store].
//
// Recorded exchanges are kept in a slice in call order. Search methods apply
// simple substring and filter matching — enough to verify orchestrator wiring
// without a live database.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/auricle-ai/auricle/pkg/history"
)

// Compile-time interface check.
var _ history.Store = (*Store)(nil)

// Store is an in-memory implementation of [history.Store].
// Set the Err fields to inject failures. Safe for concurrent use.
type Store struct {
	mu sync.Mutex

	// Exchanges holds every recorded exchange in call order.
	Exchanges []history.Exchange

	// RecordErr, if non-nil, is returned from Record.
	RecordErr error

	// RecentErr, if non-nil, is returned from Recent.
	RecentErr error

	// SimilarResults is returned verbatim from SearchSimilar.
	SimilarResults []history.SimilarResult
}

// Record implements [history.Store].
func (s *Store) Record(_ context.Context, ex history.Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	if ex.ID == "" {
		ex.ID = fmt.Sprintf("mock-%d", len(s.Exchanges)+1)
	}
	s.Exchanges = append(s.Exchanges, ex)
	return nil
}

// Recent implements [history.Store].
func (s *Store) Recent(_ context.Context, sessionID string, n int) ([]history.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	var matched []history.Exchange
	for _, ex := range s.Exchanges {
		if ex.SessionID == sessionID {
			matched = append(matched, ex)
		}
	}
	if len(matched) > n {
		matched = matched[len(matched)-n:]
	}
	return matched, nil
}

// SearchText implements [history.Store] with substring matching.
func (s *Store) SearchText(_ context.Context, query string, opts history.SearchOpts) ([]history.Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lower := strings.ToLower(query)
	var matched []history.Exchange
	for _, ex := range s.Exchanges {
		if opts.SessionID != "" && ex.SessionID != opts.SessionID {
			continue
		}
		if opts.InterviewType != "" && ex.InterviewType != opts.InterviewType {
			continue
		}
		if !strings.Contains(strings.ToLower(ex.Question+" "+ex.Answer), lower) {
			continue
		}
		matched = append(matched, ex)
		if opts.Limit > 0 && len(matched) >= opts.Limit {
			break
		}
	}
	return matched, nil
}

// SearchSimilar implements [history.Store] by returning SimilarResults,
// truncated to topK.
func (s *Store) SearchSimilar(_ context.Context, _ []float32, topK int) ([]history.SimilarResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := s.SimilarResults
	if len(results) > topK {
		results = results[:topK]
	}
	cp := make([]history.SimilarResult, len(results))
	copy(cp, results)
	return cp, nil
}

// Len returns the number of recorded exchanges.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Exchanges)
}
