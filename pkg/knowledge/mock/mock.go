// Package mock provides a scriptable in-memory test double for the
// knowledge.Store interface.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/attercap/sennet/pkg/knowledge"
)

// Ensure Store implements knowledge.Store at compile time.
var _ knowledge.Store = (*Store)(nil)

// Store is a mock knowledge base. Results returned by Search are the
// scripted Results sorted by distance; indexed documents are recorded for
// inspection. Zero value is ready to use.
type Store struct {
	mu sync.Mutex

	// Results is the canned search result set.
	Results []knowledge.Result

	// SearchErr, if non-nil, is returned by every Search call.
	SearchErr error

	// IndexErr, if non-nil, is returned by every Index and
	// SaveConversation call.
	IndexErr error

	// --- Call records (read after test) ---

	SearchQueries []string
	Indexed       []IndexedDoc
	Conversations []string
}

// IndexedDoc records one Index invocation.
type IndexedDoc struct {
	Collection knowledge.Collection
	ID         string
	Document   string
	Metadata   map[string]any
}

// Search returns the scripted results sorted ascending by distance,
// bounded to k.
func (s *Store) Search(_ context.Context, query string, k int) ([]knowledge.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchQueries = append(s.SearchQueries, query)
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	out := make([]knowledge.Result, len(s.Results))
	copy(out, s.Results)
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Index records the document.
func (s *Store) Index(_ context.Context, collection knowledge.Collection, id, document string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IndexErr != nil {
		return s.IndexErr
	}
	s.Indexed = append(s.Indexed, IndexedDoc{
		Collection: collection,
		ID:         id,
		Document:   document,
		Metadata:   metadata,
	})
	return nil
}

// SaveConversation records the summary.
func (s *Store) SaveConversation(_ context.Context, summary, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IndexErr != nil {
		return s.IndexErr
	}
	s.Conversations = append(s.Conversations, summary)
	return nil
}

// Stats reports counts over the scripted results and indexed documents.
func (s *Store) Stats(_ context.Context) (knowledge.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := knowledge.Stats{ByCollection: make(map[knowledge.Collection]int)}
	for _, r := range s.Results {
		stats.ByCollection[r.Collection]++
		stats.Total++
	}
	for _, d := range s.Indexed {
		stats.ByCollection[d.Collection]++
		stats.Total++
	}
	return stats, nil
}
