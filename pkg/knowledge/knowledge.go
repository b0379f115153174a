// Package knowledge defines the retrieval-augmented knowledge base behind
// the orchestrator's answer tiers. Documents live in named collections
// (task snapshots, context notes, conversation summaries, indexed docs)
// and are retrieved by embedding similarity: lower distance is better, and
// a search merges all collections re-sorted ascending.
//
// The interfaces are public so alternative backends can be supplied; the
// canonical implementation is Postgres with pgvector in the postgres
// subpackage, and a scriptable fake lives in mock.
//
// Every implementation must be safe for concurrent use.
package knowledge

import "context"

// Collection names a document namespace within the store.
type Collection string

const (
	CollectionTasks         Collection = "tasks"
	CollectionContext       Collection = "context"
	CollectionConversations Collection = "conversations"
	CollectionDocs          Collection = "docs"
)

// IsValid reports whether c is one of the known collections.
func (c Collection) IsValid() bool {
	switch c {
	case CollectionTasks, CollectionContext, CollectionConversations, CollectionDocs:
		return true
	}
	return false
}

// Collections lists every known collection.
func Collections() []Collection {
	return []Collection{CollectionTasks, CollectionContext, CollectionConversations, CollectionDocs}
}

// Result is one retrieved document.
type Result struct {
	ID         string
	Document   string
	Metadata   map[string]any
	Collection Collection

	// Distance is the cosine distance between the query and the document
	// embedding. Lower is more similar.
	Distance float64
}

// Stats summarises the store's contents.
type Stats struct {
	Total        int
	ByCollection map[Collection]int
}

// Store is the knowledge-base abstraction.
type Store interface {
	// Search returns the k documents nearest to query across all
	// collections, ordered by ascending distance.
	Search(ctx context.Context, query string, k int) ([]Result, error)

	// Index upserts a document into a collection. metadata may be nil.
	Index(ctx context.Context, collection Collection, id, document string, metadata map[string]any) error

	// SaveConversation stores a conversation summary. An empty id lets the
	// store assign one.
	SaveConversation(ctx context.Context, summary, id string) error

	// Stats reports document counts per collection.
	Stats(ctx context.Context) (Stats, error)
}
